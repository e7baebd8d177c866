package market

import (
	"errors"
	"math/big"
	"testing"

	"shardmarket/storage"
)

func TestStoreTreasuryDefaultsToZero(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	balance, err := store.TreasuryBalance()
	if err != nil {
		t.Fatalf("treasury balance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("expected zero balance on fresh store, got %s", balance)
	}
}

func TestStoreTreasuryRoundTrip(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	want, _ := new(big.Int).SetString("3636363636363636363636363636", 10)
	if err := store.SetTreasuryBalance(want); err != nil {
		t.Fatalf("set treasury: %v", err)
	}
	got, err := store.TreasuryBalance()
	if err != nil {
		t.Fatalf("treasury balance: %v", err)
	}
	if got.Cmp(want) != 0 {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestStoreOwnerRoundTrip(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	if _, set, err := store.Owner(); err != nil || set {
		t.Fatalf("expected unset owner, got set=%v err=%v", set, err)
	}
	owner := [20]byte{0x0B, 0x0E, 0x0E, 0x0F}
	if err := store.SetOwner(owner); err != nil {
		t.Fatalf("set owner: %v", err)
	}
	got, set, err := store.Owner()
	if err != nil {
		t.Fatalf("owner: %v", err)
	}
	if !set || got != owner {
		t.Fatalf("expected owner %x, got %x (set=%v)", owner, got, set)
	}
}

func TestPayoutJournalAppendsInSequence(t *testing.T) {
	journal := NewPayoutJournal(storage.NewMemDB())
	journal.SetNowFunc(func() int64 { return 1767225600 })
	to := [20]byte{0x01}

	for i := int64(1); i <= 3; i++ {
		if err := journal.Pay(to, big.NewInt(i*100)); err != nil {
			t.Fatalf("pay %d: %v", i, err)
		}
	}
	records, err := journal.Payouts()
	if err != nil {
		t.Fatalf("payouts: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, record := range records {
		if record.Sequence != uint64(i+1) {
			t.Fatalf("expected sequence %d, got %d", i+1, record.Sequence)
		}
		if record.To != to || record.Timestamp != 1767225600 {
			t.Fatalf("unexpected record: %+v", record)
		}
		if record.Amount.Cmp(big.NewInt(int64(i+1)*100)) != 0 {
			t.Fatalf("unexpected amount %s at %d", record.Amount, i)
		}
	}
}

func TestPayoutJournalRejectsInvalidAmount(t *testing.T) {
	journal := NewPayoutJournal(storage.NewMemDB())
	if err := journal.Pay([20]byte{}, nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for nil, got %v", err)
	}
	if err := journal.Pay([20]byte{}, big.NewInt(-1)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative, got %v", err)
	}
}
