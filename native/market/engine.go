package market

import (
	"fmt"
	"math/big"
	"sync"

	"shardmarket/core/events"
)

// TokenLedger is the external shard ledger the engine moves reserve tokens
// through.
type TokenLedger interface {
	BalanceOf(addr [20]byte) (*big.Int, error)
	Transfer(from, to [20]byte, amount *big.Int) error
}

// PayoutSink moves withdrawn native currency to the owner. When it fails the
// whole withdrawal rolls back: the treasury slot is never zeroed unless the
// payout actually happened.
type PayoutSink interface {
	Pay(to [20]byte, amount *big.Int) error
}

// PayoutFunc adapts a plain function to the PayoutSink interface.
type PayoutFunc func(to [20]byte, amount *big.Int) error

// Pay implements PayoutSink.
func (f PayoutFunc) Pay(to [20]byte, amount *big.Int) error { return f(to, amount) }

type engineState interface {
	TreasuryBalance() (*big.Int, error)
	SetTreasuryBalance(*big.Int) error
	Owner() ([20]byte, bool, error)
	SetOwner([20]byte) error
}

// Engine is the conversion-and-purchase core. Every public operation runs
// under the instance mutex end to end, so callers observe each buy or
// withdrawal as a single atomic step: it either fully commits or leaves no
// trace.
type Engine struct {
	mu sync.Mutex

	address   [20]byte
	ledger    TokenLedger
	state     engineState
	ethFeed   PriceFeed
	maticFeed PriceFeed
	payout    PayoutSink
	emitter   events.Emitter
}

// NewEngine creates an engine with a no-op emitter. Collaborators are wired
// through the setters before first use.
func NewEngine(address [20]byte) *Engine {
	return &Engine{
		address: address,
		emitter: events.NoopEmitter{},
	}
}

// SetLedger configures the shard token ledger.
func (e *Engine) SetLedger(ledger TokenLedger) { e.ledger = ledger }

// SetState configures the storage backend holding treasury and owner slots.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetFeeds configures the two price feeds. Both quotes used within one call
// are fetched inside that call; nothing is cached across calls.
func (e *Engine) SetFeeds(eth, matic PriceFeed) {
	e.ethFeed = eth
	e.maticFeed = matic
}

// SetPayout configures the sink that settles owner withdrawals.
func (e *Engine) SetPayout(sink PayoutSink) { e.payout = sink }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Address returns the ledger identity whose balance is the sale reserve.
func (e *Engine) Address() [20]byte { return e.address }

func (e *Engine) emit(event events.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(event)
}

// TransferOwnership assigns the owner identity. Deployment configuration may
// do this exactly once; any later attempt fails.
func (e *Engine) TransferOwnership(owner [20]byte) error {
	if e == nil || e.state == nil {
		return fmt.Errorf("market: engine not configured")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, set, err := e.state.Owner()
	if err != nil {
		return err
	}
	if set {
		return ErrOwnerAlreadySet
	}
	if err := e.state.SetOwner(owner); err != nil {
		return err
	}
	e.emit(events.OwnershipTransferred{Owner: owner})
	return nil
}

// Owner returns the configured owner identity.
func (e *Engine) Owner() ([20]byte, error) {
	var zero [20]byte
	if e == nil || e.state == nil {
		return zero, fmt.Errorf("market: engine not configured")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	owner, set, err := e.state.Owner()
	if err != nil {
		return zero, err
	}
	if !set {
		return zero, ErrOwnerNotSet
	}
	return owner, nil
}

// ReserveBalance reports the shards currently held by the market and
// available for sale.
func (e *Engine) ReserveBalance() (*big.Int, error) {
	if e == nil || e.ledger == nil {
		return nil, fmt.Errorf("market: engine not configured")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.BalanceOf(e.address)
}

// TreasuryBalance reports the accrued native-currency balance awaiting
// withdrawal.
func (e *Engine) TreasuryBalance() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, fmt.Errorf("market: engine not configured")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.TreasuryBalance()
}

// --- Conversions (read-only passthroughs, live quotes) ---

// ConvertETHInUSD quotes the USD value of an 18dp ETH amount at 26dp scale.
func (e *Engine) ConvertETHInUSD(amount *big.Int) (*big.Int, error) {
	price, err := e.fetchPrice(e.ethFeed)
	if err != nil {
		return nil, err
	}
	return CurrencyToUSD(amount, price)
}

// ConvertUSDInETH quotes the 18dp ETH amount required for a plain USD amount.
func (e *Engine) ConvertUSDInETH(usdAmount *big.Int) (*big.Int, error) {
	price, err := e.fetchPrice(e.ethFeed)
	if err != nil {
		return nil, err
	}
	return USDToCurrency(usdAmount, price)
}

// ConvertMATICInUSD quotes the USD value of an 18dp MATIC amount at 26dp
// scale.
func (e *Engine) ConvertMATICInUSD(amount *big.Int) (*big.Int, error) {
	price, err := e.fetchPrice(e.maticFeed)
	if err != nil {
		return nil, err
	}
	return CurrencyToUSD(amount, price)
}

// ConvertUSDInMATIC quotes the 18dp MATIC amount required for a plain USD
// amount.
func (e *Engine) ConvertUSDInMATIC(usdAmount *big.Int) (*big.Int, error) {
	price, err := e.fetchPrice(e.maticFeed)
	if err != nil {
		return nil, err
	}
	return USDToCurrency(usdAmount, price)
}

// ConvertETHInMATIC quotes an 18dp ETH amount in MATIC via USD. Both oracle
// reads happen inside this single call.
func (e *Engine) ConvertETHInMATIC(amount *big.Int) (*big.Int, error) {
	ethPrice, err := e.fetchPrice(e.ethFeed)
	if err != nil {
		return nil, err
	}
	maticPrice, err := e.fetchPrice(e.maticFeed)
	if err != nil {
		return nil, err
	}
	return CurrencyAToCurrencyB(amount, ethPrice, maticPrice)
}

func (e *Engine) fetchPrice(feed PriceFeed) (*big.Int, error) {
	if e == nil || feed == nil {
		return nil, fmt.Errorf("market: price feed not configured")
	}
	price, err := feed.LatestPrice()
	if err != nil {
		return nil, fmt.Errorf("market: oracle read: %w", err)
	}
	if price == nil || price.Sign() < 0 {
		return nil, ErrInvalidPrice
	}
	return price, nil
}

// --- Purchases ---

// BuyShardsInETH sells quantity shards against an ETH payment. The attached
// payment must equal the quoted price exactly.
func (e *Engine) BuyShardsInETH(buyer [20]byte, quantity, paid *big.Int) error {
	return e.buy(buyer, quantity, paid, currencyETH)
}

// BuyShardsInMATIC sells quantity shards against a MATIC payment. MATIC is
// the market's native accounting currency, so the payment accrues to the
// treasury.
func (e *Engine) BuyShardsInMATIC(buyer [20]byte, quantity, paid *big.Int) error {
	return e.buy(buyer, quantity, paid, currencyMATIC)
}

// BuyShardsInUSD sells quantity shards against a USD-denominated payment. The
// quantity is treated directly as the USD amount due.
func (e *Engine) BuyShardsInUSD(buyer [20]byte, quantity, paid *big.Int) error {
	return e.buy(buyer, quantity, paid, currencyUSD)
}

type payCurrency int

const (
	currencyETH payCurrency = iota
	currencyMATIC
	currencyUSD
)

func (e *Engine) buy(buyer [20]byte, quantity, paid *big.Int, currency payCurrency) error {
	if e == nil || e.ledger == nil || e.state == nil {
		return fmt.Errorf("market: engine not configured")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if quantity == nil || quantity.Sign() <= 0 {
		return ErrInvalidQuantity
	}
	if paid == nil || paid.Sign() < 0 {
		return ErrInvalidAmount
	}

	reserve, err := e.ledger.BalanceOf(e.address)
	if err != nil {
		return err
	}
	if reserve.Cmp(quantity) < 0 {
		return ErrInsufficientReserve
	}

	required, err := e.requiredPayment(quantity, currency)
	if err != nil {
		return err
	}
	if paid.Cmp(required) != 0 {
		return ErrPaymentMismatch
	}

	// The MATIC payment banks into the treasury; stage the new balance before
	// touching the ledger so a storage fault aborts with nothing mutated.
	var newTreasury *big.Int
	if currency == currencyMATIC {
		current, err := e.state.TreasuryBalance()
		if err != nil {
			return err
		}
		newTreasury = new(big.Int).Add(current, paid)
	}

	if err := e.ledger.Transfer(e.address, buyer, quantity); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if newTreasury != nil {
		if err := e.state.SetTreasuryBalance(newTreasury); err != nil {
			// Compensate the reserve transfer so no partial effect survives.
			if undoErr := e.ledger.Transfer(buyer, e.address, quantity); undoErr != nil {
				return fmt.Errorf("market: treasury credit failed (%v) and reserve rollback failed: %w", err, undoErr)
			}
			return err
		}
	}

	switch currency {
	case currencyETH:
		e.emit(events.ShardsPurchasedETH{Buyer: buyer, Paid: new(big.Int).Set(paid), Quantity: new(big.Int).Set(quantity)})
	case currencyMATIC:
		e.emit(events.ShardsPurchasedMATIC{Buyer: buyer, Paid: new(big.Int).Set(paid), Quantity: new(big.Int).Set(quantity)})
	case currencyUSD:
		e.emit(events.ShardsPurchasedUSD{Buyer: buyer, Paid: new(big.Int).Set(paid), Quantity: new(big.Int).Set(quantity)})
	}
	return nil
}

func (e *Engine) requiredPayment(quantity *big.Int, currency payCurrency) (*big.Int, error) {
	switch currency {
	case currencyETH:
		price, err := e.fetchPrice(e.ethFeed)
		if err != nil {
			return nil, err
		}
		return USDToCurrency(quantity, price)
	case currencyMATIC:
		price, err := e.fetchPrice(e.maticFeed)
		if err != nil {
			return nil, err
		}
		return USDToCurrency(quantity, price)
	case currencyUSD:
		return new(big.Int).Set(quantity), nil
	}
	return nil, fmt.Errorf("market: unknown payment currency %d", currency)
}

// --- Withdrawal ---

// Withdraw pays the full treasury balance to the owner. Only the owner may
// call it. The treasury slot is zeroed strictly after the payout succeeds, so
// a rejected transfer leaves the balance untouched.
func (e *Engine) Withdraw(caller [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, fmt.Errorf("market: engine not configured")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	owner, set, err := e.state.Owner()
	if err != nil {
		return nil, err
	}
	if !set {
		return nil, ErrOwnerNotSet
	}
	if caller != owner {
		return nil, ErrUnauthorized
	}

	balance, err := e.state.TreasuryBalance()
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if e.payout == nil {
		return nil, fmt.Errorf("market: payout sink not configured")
	}
	if err := e.payout.Pay(owner, new(big.Int).Set(balance)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.state.SetTreasuryBalance(big.NewInt(0)); err != nil {
		return nil, fmt.Errorf("market: zero treasury after payout: %w", err)
	}
	e.emit(events.TreasuryWithdrawn{Owner: owner, Amount: new(big.Int).Set(balance)})
	return balance, nil
}
