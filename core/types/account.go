package types

import "math/big"

// Account stores the ledger state for a single shard holder. Balances are
// expressed in the token's smallest denomination (18 decimals).
type Account struct {
	Nonce   uint64
	Balance *big.Int
}

// EnsureDefaults normalises a freshly decoded or zero-value account so the
// balance pointer is always usable.
func (a *Account) EnsureDefaults() {
	if a.Balance == nil {
		a.Balance = big.NewInt(0)
	}
}
