package account

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type SyncStatus string

const (
	SyncStatusNeverSynced SyncStatus = "NEVER_SYNCED"
	SyncStatusSyncing     SyncStatus = "SYNCING"
	SyncStatusSynced      SyncStatus = "SYNCED"
	SyncStatusFailed      SyncStatus = "FAILED"
)

// Domain errors
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidInput    = errors.New("invalid input")
)

// ConnectedAccount is a bank account reachable through a consent.
// Accounts are never deleted; revoking the consent disables them.
type ConnectedAccount struct {
	ID                string          `json:"id"`
	UserID            int64           `json:"userId"`
	ConsentID         string          `json:"consentId"`
	InstitutionCode   string          `json:"institutionCode"`
	ExternalAccountID string          `json:"externalAccountId"`
	AccountType       string          `json:"accountType"`
	MaskedNumber      string          `json:"maskedNumber"`
	Branch            string          `json:"branch"`
	HolderName        string          `json:"holderName"`
	Currency          string          `json:"currency"`
	Balance           decimal.Decimal `json:"balance"`
	BalanceUpdatedAt  *time.Time      `json:"balanceUpdatedAt"`
	LastSyncedAt      *time.Time      `json:"lastSyncedAt"`
	SyncStatus        SyncStatus      `json:"syncStatus"`
	Enabled           bool            `json:"enabled"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// UpsertParams describes an account discovered from a consent.
type UpsertParams struct {
	UserID            int64
	ConsentID         string
	InstitutionCode   string
	ExternalAccountID string
	AccountType       string
	Number            string
	Branch            string
	HolderName        string
	Currency          string
}

func (p UpsertParams) Validate() error {
	if p.UserID <= 0 {
		return errors.New("valid user ID is required")
	}
	if p.ConsentID == "" {
		return errors.New("consent ID is required")
	}
	if strings.TrimSpace(p.ExternalAccountID) == "" {
		return errors.New("external account ID is required")
	}
	return nil
}

// MaskNumber keeps the last four characters of an account number.
func MaskNumber(number string) string {
	number = strings.TrimSpace(number)
	if number == "" {
		return ""
	}
	runes := []rune(number)
	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-4:])
}
