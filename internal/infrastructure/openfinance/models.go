package openfinance

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultCurrency = "BRL"
	DefaultPageSize = 100

	CreditDebitCredit = "CREDIT"
	CreditDebitDebit  = "DEBIT"
)

// Account is a provider account normalized to a single shape.
type Account struct {
	AccountID     string
	AccountType   string
	AccountNumber string
	Branch        string
	HolderName    string
	Currency      string
}

type AccountBalance struct {
	AccountID      string
	Amount         decimal.Decimal
	Currency       string
	UpdateDateTime *time.Time
}

type Transaction struct {
	TransactionID   string
	Amount          decimal.Decimal
	Currency        string
	Description     string
	BookingDate     *time.Time
	CreditDebitType string
}

type TransactionPage struct {
	Transactions []Transaction
	TotalPages   int
	CurrentPage  int
}

// TransactionQuery selects a booking-date window and page. Zero values use defaults.
type TransactionQuery struct {
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusAccepted  PaymentStatus = "ACCEPTED"
	PaymentStatusRejected  PaymentStatus = "REJECTED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
	PaymentStatusUnknown   PaymentStatus = "UNKNOWN"
)

func ParsePaymentStatus(s string, fallback PaymentStatus) PaymentStatus {
	switch PaymentStatus(s) {
	case PaymentStatusPending, PaymentStatusAccepted, PaymentStatusRejected, PaymentStatusCancelled, PaymentStatusUnknown:
		return PaymentStatus(s)
	default:
		return fallback
	}
}

type PaymentRequest struct {
	EndToEndID      string
	Amount          decimal.Decimal
	Currency        string
	DebtorAccount   string
	CreditorAccount string
	PaymentType     string
}

type PaymentResponse struct {
	PaymentID  string
	EndToEndID string
	Status     PaymentStatus
}
