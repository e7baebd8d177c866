package market

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"shardmarket/storage"
)

var (
	payoutSeqKey    = ethcrypto.Keccak256([]byte("market-payout-seq"))
	payoutRowPrefix = []byte("market-payout:")
)

// PayoutRecord captures one settled owner withdrawal for off-engine
// reconciliation against the external fund movement.
type PayoutRecord struct {
	Sequence  uint64
	To        [20]byte
	Amount    *big.Int
	Timestamp uint64
}

// PayoutJournal is a PayoutSink that appends every settlement to the backing
// store. It stands in for the native-currency transfer executed by the host
// environment: the journal row is the durable instruction to settle.
type PayoutJournal struct {
	db    storage.Database
	nowFn func() int64
}

// NewPayoutJournal wires the journal to its backing store.
func NewPayoutJournal(db storage.Database) *PayoutJournal {
	return &PayoutJournal{
		db:    db,
		nowFn: func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the time source, for deterministic tests.
func (j *PayoutJournal) SetNowFunc(now func() int64) {
	if j == nil {
		return
	}
	if now == nil {
		j.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	j.nowFn = now
}

// Pay implements PayoutSink. The row is written before the sequence counter
// advances so a torn write surfaces as an error to the caller, which rolls
// the withdrawal back.
func (j *PayoutJournal) Pay(to [20]byte, amount *big.Int) error {
	if j == nil || j.db == nil {
		return fmt.Errorf("market: payout journal not configured")
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	seq, err := j.nextSequence()
	if err != nil {
		return err
	}
	record := PayoutRecord{
		Sequence:  seq,
		To:        to,
		Amount:    new(big.Int).Set(amount),
		Timestamp: uint64(j.nowFn()),
	}
	encoded, err := rlp.EncodeToBytes(&record)
	if err != nil {
		return fmt.Errorf("market: encode payout: %w", err)
	}
	if err := j.db.Put(payoutRowKey(seq), encoded); err != nil {
		return fmt.Errorf("market: persist payout: %w", err)
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	if err := j.db.Put(payoutSeqKey, buf[:]); err != nil {
		return fmt.Errorf("market: advance payout sequence: %w", err)
	}
	return nil
}

// Payouts returns every journalled settlement in sequence order.
func (j *PayoutJournal) Payouts() ([]PayoutRecord, error) {
	if j == nil || j.db == nil {
		return nil, fmt.Errorf("market: payout journal not configured")
	}
	last, err := j.lastSequence()
	if err != nil {
		return nil, err
	}
	records := make([]PayoutRecord, 0, last)
	for seq := uint64(1); seq <= last; seq++ {
		raw, err := j.db.Get(payoutRowKey(seq))
		if err != nil {
			return nil, fmt.Errorf("market: load payout %d: %w", seq, err)
		}
		var record PayoutRecord
		if err := rlp.DecodeBytes(raw, &record); err != nil {
			return nil, fmt.Errorf("market: decode payout %d: %w", seq, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func (j *PayoutJournal) lastSequence() (uint64, error) {
	exists, err := j.db.Has(payoutSeqKey)
	if err != nil {
		return 0, fmt.Errorf("market: check payout sequence: %w", err)
	}
	if !exists {
		return 0, nil
	}
	raw, err := j.db.Get(payoutSeqKey)
	if err != nil {
		return 0, fmt.Errorf("market: load payout sequence: %w", err)
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("market: malformed payout sequence (%d bytes)", len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (j *PayoutJournal) nextSequence() (uint64, error) {
	last, err := j.lastSequence()
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

func payoutRowKey(seq uint64) []byte {
	buf := make([]byte, len(payoutRowPrefix)+8)
	copy(buf, payoutRowPrefix)
	binary.BigEndian.PutUint64(buf[len(payoutRowPrefix):], seq)
	return ethcrypto.Keccak256(buf)
}
