package ledger

import "errors"

// Transaction and entry errors
var (
	ErrUnbalanced              = errors.New("transaction debits and credits do not balance")
	ErrTooFewEntries           = errors.New("transaction requires at least two entries")
	ErrDuplicateAccount        = errors.New("transaction references the same account twice")
	ErrNonPositiveAmount       = errors.New("amount must be positive")
	ErrInvalidDirection        = errors.New("invalid entry direction")
	ErrInvalidStatus           = errors.New("invalid status")
	ErrIllegalTransition       = errors.New("illegal status transition")
	ErrMixedCurrencies         = errors.New("entries in one transaction must share a currency")
	ErrInvalidCurrency         = errors.New("invalid currency code")
	ErrInvalidCurrencyExponent = errors.New("currency exponent must be in [0, 18]")
)

// Account errors
var (
	ErrInvalidNormalBalance = errors.New("invalid normal balance")
	ErrMissingName          = errors.New("name is required")
	ErrMissingOrganization  = errors.New("organization id is required")
	ErrMissingLedger        = errors.New("ledger id is required")
	ErrMissingAccount       = errors.New("account id is required")
)

// Settlement errors
var (
	ErrSameAccount = errors.New("settled and contra accounts must differ")
)

// Statement errors
var (
	ErrInvalidStatementWindow = errors.New("statement start must be before end")
)

// Monitor errors
var (
	ErrInvalidConditionField    = errors.New("invalid alert condition field")
	ErrInvalidConditionOperator = errors.New("invalid alert condition operator")
	ErrNoConditions             = errors.New("monitor requires at least one alert condition")
)
