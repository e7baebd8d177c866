package market

import "errors"

var (
	// ErrInvalidQuantity indicates a zero or negative shard quantity.
	ErrInvalidQuantity = errors.New("market: quantity must be positive")
	// ErrInsufficientReserve indicates the request exceeds the shards held by
	// the market.
	ErrInsufficientReserve = errors.New("market: insufficient shard reserve")
	// ErrPaymentMismatch indicates the attached payment does not equal the
	// quoted price exactly. There is no overpayment refund and no partial
	// fill.
	ErrPaymentMismatch = errors.New("market: incorrect payment amount")
	// ErrUnauthorized indicates a privileged call from a non-owner identity.
	ErrUnauthorized = errors.New("market: caller is not the owner")
	// ErrTransferFailed wraps a downstream token or fund movement failure. The
	// enclosing operation rolls back fully when it occurs.
	ErrTransferFailed = errors.New("market: transfer failed")
	// ErrOwnerAlreadySet indicates ownership was assigned a second time.
	ErrOwnerAlreadySet = errors.New("market: owner already set")
	// ErrOwnerNotSet indicates a privileged call before deployment configured
	// the owner.
	ErrOwnerNotSet = errors.New("market: owner not set")

	// ErrDivisionByZero indicates a conversion against a zero price quote.
	ErrDivisionByZero = errors.New("market: price must be non-zero")
	// ErrInvalidAmount indicates a nil or negative conversion operand.
	ErrInvalidAmount = errors.New("market: amount must be a non-negative integer")
	// ErrInvalidPrice indicates a nil or negative oracle quote.
	ErrInvalidPrice = errors.New("market: price must be a non-negative integer")
)
