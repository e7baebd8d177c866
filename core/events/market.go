package events

import (
	"math/big"

	"shardmarket/core/types"
	"shardmarket/crypto"
)

const (
	TypeShardsPurchasedETH   = "market.purchase.eth"
	TypeShardsPurchasedMATIC = "market.purchase.matic"
	TypeShardsPurchasedUSD   = "market.purchase.usd"
	TypeTreasuryWithdrawn    = "market.treasury.withdrawn"
	TypeOwnershipTransferred = "market.ownership.transferred"
)

// ShardsPurchasedETH records a purchase settled in ETH. One event is emitted
// per successful buy; the engine never reads it back.
type ShardsPurchasedETH struct {
	Buyer    [20]byte
	Paid     *big.Int
	Quantity *big.Int
}

func (ShardsPurchasedETH) EventType() string { return TypeShardsPurchasedETH }

func (e ShardsPurchasedETH) Event() *types.Event {
	return purchaseEvent(TypeShardsPurchasedETH, e.Buyer, e.Paid, e.Quantity)
}

// ShardsPurchasedMATIC records a purchase settled in MATIC, the market's
// native accounting currency.
type ShardsPurchasedMATIC struct {
	Buyer    [20]byte
	Paid     *big.Int
	Quantity *big.Int
}

func (ShardsPurchasedMATIC) EventType() string { return TypeShardsPurchasedMATIC }

func (e ShardsPurchasedMATIC) Event() *types.Event {
	return purchaseEvent(TypeShardsPurchasedMATIC, e.Buyer, e.Paid, e.Quantity)
}

// ShardsPurchasedUSD records a purchase settled against a USD-denominated
// payment.
type ShardsPurchasedUSD struct {
	Buyer    [20]byte
	Paid     *big.Int
	Quantity *big.Int
}

func (ShardsPurchasedUSD) EventType() string { return TypeShardsPurchasedUSD }

func (e ShardsPurchasedUSD) Event() *types.Event {
	return purchaseEvent(TypeShardsPurchasedUSD, e.Buyer, e.Paid, e.Quantity)
}

// TreasuryWithdrawn is emitted when the owner drains the accrued native
// currency balance.
type TreasuryWithdrawn struct {
	Owner  [20]byte
	Amount *big.Int
}

func (TreasuryWithdrawn) EventType() string { return TypeTreasuryWithdrawn }

func (e TreasuryWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeTreasuryWithdrawn,
		Attributes: map[string]string{
			"owner":  crypto.MustNewAddress(e.Owner[:]).String(),
			"amount": formatAmount(e.Amount),
		},
	}
}

// OwnershipTransferred is emitted exactly once, when the deployment flow
// assigns the market owner.
type OwnershipTransferred struct {
	Owner [20]byte
}

func (OwnershipTransferred) EventType() string { return TypeOwnershipTransferred }

func (e OwnershipTransferred) Event() *types.Event {
	return &types.Event{
		Type: TypeOwnershipTransferred,
		Attributes: map[string]string{
			"owner": crypto.MustNewAddress(e.Owner[:]).String(),
		},
	}
}

func purchaseEvent(kind string, buyer [20]byte, paid, quantity *big.Int) *types.Event {
	return &types.Event{
		Type: kind,
		Attributes: map[string]string{
			"buyer":    crypto.MustNewAddress(buyer[:]).String(),
			"paid":     formatAmount(paid),
			"quantity": formatAmount(quantity),
		},
	}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
