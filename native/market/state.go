package market

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"shardmarket/storage"
)

var (
	treasuryKey = ethcrypto.Keccak256([]byte("market-treasury"))
	ownerKey    = ethcrypto.Keccak256([]byte("market-owner"))
)

// Store persists the engine's own storage slots — the treasury balance and
// the owner identity — through the generic key-value database.
type Store struct {
	db storage.Database
}

// NewStore wires the store to its backing database.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

// TreasuryBalance loads the accrued native-currency balance. A missing slot
// reports zero.
func (s *Store) TreasuryBalance() (*big.Int, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("market: store not configured")
	}
	exists, err := s.db.Has(treasuryKey)
	if err != nil {
		return nil, fmt.Errorf("market: check treasury: %w", err)
	}
	if !exists {
		return big.NewInt(0), nil
	}
	raw, err := s.db.Get(treasuryKey)
	if err != nil {
		return nil, fmt.Errorf("market: load treasury: %w", err)
	}
	balance := new(big.Int)
	if err := rlp.DecodeBytes(raw, balance); err != nil {
		return nil, fmt.Errorf("market: decode treasury: %w", err)
	}
	return balance, nil
}

// SetTreasuryBalance overwrites the treasury slot.
func (s *Store) SetTreasuryBalance(balance *big.Int) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("market: store not configured")
	}
	if balance == nil || balance.Sign() < 0 {
		return ErrInvalidAmount
	}
	encoded, err := rlp.EncodeToBytes(balance)
	if err != nil {
		return fmt.Errorf("market: encode treasury: %w", err)
	}
	return s.db.Put(treasuryKey, encoded)
}

// Owner loads the owner identity. The boolean reports whether ownership has
// been assigned yet.
func (s *Store) Owner() ([20]byte, bool, error) {
	var owner [20]byte
	if s == nil || s.db == nil {
		return owner, false, fmt.Errorf("market: store not configured")
	}
	exists, err := s.db.Has(ownerKey)
	if err != nil {
		return owner, false, fmt.Errorf("market: check owner: %w", err)
	}
	if !exists {
		return owner, false, nil
	}
	raw, err := s.db.Get(ownerKey)
	if err != nil {
		return owner, false, fmt.Errorf("market: load owner: %w", err)
	}
	if len(raw) != len(owner) {
		return owner, false, fmt.Errorf("market: malformed owner slot (%d bytes)", len(raw))
	}
	copy(owner[:], raw)
	return owner, true, nil
}

// SetOwner writes the owner slot.
func (s *Store) SetOwner(owner [20]byte) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("market: store not configured")
	}
	return s.db.Put(ownerKey, owner[:])
}
