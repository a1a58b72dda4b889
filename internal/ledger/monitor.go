package ledger

import "time"

// Alert condition fields and operators.
const (
	ConditionFieldBalance = "balance"
	ConditionFieldCreated = "created"
	ConditionFieldUpdated = "updated"
)

var conditionOperators = map[string]struct{}{
	"=": {}, "<": {}, ">": {}, "<=": {}, ">=": {}, "!=": {},
}

// AlertCondition compares one account field against a threshold value.
// Timestamp fields compare against Unix seconds.
type AlertCondition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    int64  `json:"value"`
}

// Validate checks field and operator membership.
func (c AlertCondition) Validate() error {
	switch c.Field {
	case ConditionFieldBalance, ConditionFieldCreated, ConditionFieldUpdated:
	default:
		return ErrInvalidConditionField
	}
	if _, ok := conditionOperators[c.Operator]; !ok {
		return ErrInvalidConditionOperator
	}
	return nil
}

// Evaluate applies the condition to a live account. The balance field
// compares against the available amount.
func (c AlertCondition) Evaluate(a Account) bool {
	var left int64
	switch c.Field {
	case ConditionFieldBalance:
		left = a.Balances.AvailableAmount
	case ConditionFieldCreated:
		left = a.CreatedAt.Unix()
	case ConditionFieldUpdated:
		left = a.UpdatedAt.Unix()
	}

	switch c.Operator {
	case "=":
		return left == c.Value
	case "<":
		return left < c.Value
	case ">":
		return left > c.Value
	case "<=":
		return left <= c.Value
	case ">=":
		return left >= c.Value
	case "!=":
		return left != c.Value
	}
	return false
}

// BalanceMonitor watches one account's balances against alert conditions.
// Monitors use the same optimistic lock-version scheme as accounts.
type BalanceMonitor struct {
	ID              string
	OrganizationID  string
	AccountID       string
	AlertConditions []AlertCondition
	Description     string
	Metadata        map[string]any
	LockVersion     int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewBalanceMonitor validates and constructs a BalanceMonitor.
func NewBalanceMonitor(id, organizationID, accountID, description string, conditions []AlertCondition, metadata map[string]any) (BalanceMonitor, error) {
	if organizationID == "" {
		return BalanceMonitor{}, ErrMissingOrganization
	}
	if accountID == "" {
		return BalanceMonitor{}, ErrMissingAccount
	}
	if len(conditions) == 0 {
		return BalanceMonitor{}, ErrNoConditions
	}
	for _, c := range conditions {
		if err := c.Validate(); err != nil {
			return BalanceMonitor{}, err
		}
	}

	return BalanceMonitor{
		ID:              id,
		OrganizationID:  organizationID,
		AccountID:       accountID,
		AlertConditions: conditions,
		Description:     description,
		Metadata:        metadata,
	}, nil
}

// Evaluate returns the per-condition results against a live account.
func (m BalanceMonitor) Evaluate(a Account) []bool {
	results := make([]bool, len(m.AlertConditions))
	for i, c := range m.AlertConditions {
		results[i] = c.Evaluate(a)
	}
	return results
}
