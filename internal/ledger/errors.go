package ledger

import "errors"

var (
	ErrInvalidPrice           = errors.New("invalid price")
	ErrNoPriceForAsset        = errors.New("no price for asset")
	ErrBelowMinimumInvestment = errors.New("below minimum investment")
	ErrInsufficientSupply     = errors.New("insufficient unsold supply")
	ErrPaymentTransferFailed  = errors.New("payment transfer failed")
	ErrPayoutTransferFailed   = errors.New("payout transfer failed")
	ErrInsufficientBalance    = errors.New("insufficient share balance")
	ErrNotOwner               = errors.New("caller is not the owner")
	ErrFeeTooHigh             = errors.New("fee too high")
	ErrInvalidMinAmount       = errors.New("min amount must be positive")
	ErrInvalidAmount          = errors.New("amount must not be negative")
	ErrInvalidRecipient       = errors.New("invalid recipient")
	ErrDivisionByZero         = errors.New("division by zero")
	ErrInvalidSnapshot        = errors.New("invalid snapshot")
)

// ErrNoSharesIssued is returned when a distribution finds new funds but no shares exist.
var ErrNoSharesIssued = noSharesIssued{}

type noSharesIssued struct{}

func (noSharesIssued) Error() string { return "no shares issued" }

func (noSharesIssued) Unwrap() error { return ErrDivisionByZero }
