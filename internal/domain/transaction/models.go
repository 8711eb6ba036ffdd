package transaction

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	TypeCredit = "CREDIT"
	TypeDebit  = "DEBIT"
)

// Transaction is a booked movement imported from the provider.
// (AccountID, ExternalID) identifies it; re-imports update in place.
type Transaction struct {
	ID              string          `json:"id"`
	AccountID       string          `json:"accountId"`
	ExternalID      string          `json:"externalId"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Description     string          `json:"description"`
	BookingDate     *time.Time      `json:"bookingDate"`
	CreditDebitType string          `json:"creditDebitType"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// UpsertParams is used for syncing transactions from the provider
type UpsertParams struct {
	AccountID       string
	ExternalID      string
	Amount          decimal.Decimal
	Currency        string
	Description     string
	BookingDate     *time.Time
	CreditDebitType string
}

func (p UpsertParams) Validate() error {
	if p.AccountID == "" {
		return errors.New("account ID is required")
	}
	if strings.TrimSpace(p.ExternalID) == "" {
		return errors.New("external transaction ID is required")
	}
	if p.CreditDebitType != TypeCredit && p.CreditDebitType != TypeDebit {
		return errors.New("credit/debit type must be CREDIT or DEBIT")
	}
	return nil
}
