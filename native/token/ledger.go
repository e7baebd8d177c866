package token

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"shardmarket/core/types"
	"shardmarket/storage"
)

var (
	// ErrInsufficientBalance indicates the sender cannot cover the transfer.
	ErrInsufficientBalance = errors.New("token: insufficient shard balance")
	// ErrAlreadyInitialised indicates genesis has already minted the supply.
	ErrAlreadyInitialised = errors.New("token: supply already initialised")
	// ErrInvalidAmount indicates a nil or negative transfer amount.
	ErrInvalidAmount = errors.New("token: amount must be a non-negative integer")
)

var (
	accountPrefix  = []byte("shard-account:")
	totalSupplyKey = ethcrypto.Keccak256([]byte("shard-total-supply"))
)

func accountKey(addr [20]byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr[:])
	return ethcrypto.Keccak256(buf)
}

// Ledger tracks shard balances for every holder. The supply is fixed at
// genesis; afterwards the only mutation is Transfer, which the market engine
// invokes while holding its call-level lock.
type Ledger struct {
	db storage.Database
}

// NewLedger wires the ledger to its backing store.
func NewLedger(db storage.Database) *Ledger {
	return &Ledger{db: db}
}

// InitGenesis mints the full fixed supply to the holder account. It fails if
// the supply has already been minted so a restart never double-funds.
func (l *Ledger) InitGenesis(holder [20]byte, supply *big.Int) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("token: ledger not configured")
	}
	if supply == nil || supply.Sign() < 0 {
		return ErrInvalidAmount
	}
	exists, err := l.db.Has(totalSupplyKey)
	if err != nil {
		return fmt.Errorf("token: check supply: %w", err)
	}
	if exists {
		return ErrAlreadyInitialised
	}
	account := &types.Account{Balance: new(big.Int).Set(supply)}
	if err := l.putAccount(holder, account); err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(supply)
	if err != nil {
		return fmt.Errorf("token: encode supply: %w", err)
	}
	return l.db.Put(totalSupplyKey, encoded)
}

// Initialised reports whether genesis has run against this store.
func (l *Ledger) Initialised() (bool, error) {
	if l == nil || l.db == nil {
		return false, fmt.Errorf("token: ledger not configured")
	}
	return l.db.Has(totalSupplyKey)
}

// TotalSupply returns the fixed supply minted at genesis.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	if l == nil || l.db == nil {
		return nil, fmt.Errorf("token: ledger not configured")
	}
	exists, err := l.db.Has(totalSupplyKey)
	if err != nil {
		return nil, err
	}
	if !exists {
		return big.NewInt(0), nil
	}
	raw, err := l.db.Get(totalSupplyKey)
	if err != nil {
		return nil, fmt.Errorf("token: load supply: %w", err)
	}
	supply := new(big.Int)
	if err := rlp.DecodeBytes(raw, supply); err != nil {
		return nil, fmt.Errorf("token: decode supply: %w", err)
	}
	return supply, nil
}

// BalanceOf returns the current balance for the address. Unknown accounts
// report zero.
func (l *Ledger) BalanceOf(addr [20]byte) (*big.Int, error) {
	account, err := l.getAccount(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(account.Balance), nil
}

// Transfer moves amount from one holder to another. Either both balances are
// rewritten or neither: validation happens before the first write, and the
// sender row is only persisted once the receiver row committed.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("token: ledger not configured")
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	sender, err := l.getAccount(from)
	if err != nil {
		return err
	}
	if sender.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	receiver, err := l.getAccount(to)
	if err != nil {
		return err
	}
	receiver.Balance = new(big.Int).Add(receiver.Balance, amount)
	if err := l.putAccount(to, receiver); err != nil {
		return err
	}
	sender.Balance = new(big.Int).Sub(sender.Balance, amount)
	if err := l.putAccount(from, sender); err != nil {
		// Undo the receiver credit so a storage fault cannot inflate supply.
		receiver.Balance = new(big.Int).Sub(receiver.Balance, amount)
		if undoErr := l.putAccount(to, receiver); undoErr != nil {
			return fmt.Errorf("token: rollback receiver after %v: %w", err, undoErr)
		}
		return err
	}
	return nil
}

func (l *Ledger) getAccount(addr [20]byte) (*types.Account, error) {
	key := accountKey(addr)
	exists, err := l.db.Has(key)
	if err != nil {
		return nil, fmt.Errorf("token: check account: %w", err)
	}
	account := &types.Account{}
	if exists {
		raw, err := l.db.Get(key)
		if err != nil {
			return nil, fmt.Errorf("token: load account: %w", err)
		}
		if err := rlp.DecodeBytes(raw, account); err != nil {
			return nil, fmt.Errorf("token: decode account: %w", err)
		}
	}
	account.EnsureDefaults()
	return account, nil
}

func (l *Ledger) putAccount(addr [20]byte, account *types.Account) error {
	account.EnsureDefaults()
	encoded, err := rlp.EncodeToBytes(account)
	if err != nil {
		return fmt.Errorf("token: encode account: %w", err)
	}
	return l.db.Put(accountKey(addr), encoded)
}
