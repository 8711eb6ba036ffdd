package openfinance

import (
	"context"
)

// AccountInformationGateway reads accounts, balances and transactions for one consent's token.
type AccountInformationGateway interface {
	ListAccounts(ctx context.Context, token string) ([]Account, error)
	GetAccountDetails(ctx context.Context, token, accountID string) (*Account, error)
	GetBalance(ctx context.Context, token, accountID string) (*AccountBalance, error)
	GetTransactions(ctx context.Context, token, accountID string, query TransactionQuery) (*TransactionPage, error)
}

// PaymentInitiationGateway initiates and tracks payments.
type PaymentInitiationGateway interface {
	InitiatePayment(ctx context.Context, token string, req PaymentRequest) (*PaymentResponse, error)
	GetPaymentStatus(ctx context.Context, token, paymentID string) (PaymentStatus, error)
	CancelPayment(ctx context.Context, token, paymentID string) error
}
