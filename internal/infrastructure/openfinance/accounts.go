package openfinance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ListAccounts never fails on a malformed or empty body; it logs and returns no accounts.
func (c *Client) ListAccounts(ctx context.Context, token string) ([]Account, error) {
	body, err := c.do(ctx, "list_accounts", http.MethodGet, "/accounts", token, nil, nil, nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data []object `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.logger.WarnContext(ctx, "malformed accounts response, treating as empty", "error", err)
		return []Account{}, nil
	}

	accounts := make([]Account, 0, len(envelope.Data))
	for _, item := range envelope.Data {
		acc := toAccount(item)
		if acc.AccountID == "" {
			c.logger.WarnContext(ctx, "skipping account without id")
			continue
		}
		accounts = append(accounts, acc)
	}
	return accounts, nil
}

func (c *Client) GetAccountDetails(ctx context.Context, token, accountID string) (*Account, error) {
	path := "/accounts/" + url.PathEscape(accountID)
	body, err := c.do(ctx, "get_account_details", http.MethodGet, path, token, nil, nil, nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data object `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.logger.WarnContext(ctx, "malformed account details response", "account_id", accountID, "error", err)
	}

	acc := toAccount(envelope.Data)
	if acc.AccountID == "" {
		acc.AccountID = accountID
	}
	return &acc, nil
}

// GetBalance defaults a missing amount to zero and a missing currency to BRL.
func (c *Client) GetBalance(ctx context.Context, token, accountID string) (*AccountBalance, error) {
	path := "/balances/" + url.PathEscape(accountID)
	body, err := c.do(ctx, "get_balance", http.MethodGet, path, token, nil, nil, nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data object `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.logger.WarnContext(ctx, "malformed balance response", "account_id", accountID, "error", err)
	}
	data := envelope.Data

	amount, ok := parseAmount(data.raw("amount", "availableAmount", "balance"))
	if !ok {
		c.logger.WarnContext(ctx, "balance without amount, defaulting to zero", "account_id", accountID)
	}

	currency := data.str("currency")
	if currency == "" {
		currency = data.obj("availableAmount").str("currency")
	}
	if currency == "" {
		currency = DefaultCurrency
	}

	return &AccountBalance{
		AccountID:      accountID,
		Amount:         amount,
		Currency:       currency,
		UpdateDateTime: parseTime(data.str("updateDateTime")),
	}, nil
}

func (c *Client) GetTransactions(ctx context.Context, token, accountID string, query TransactionQuery) (*TransactionPage, error) {
	if query.Page <= 0 {
		query.Page = 1
	}
	if query.PageSize <= 0 {
		query.PageSize = c.pageSize
	}

	params := url.Values{}
	params.Set("page", strconv.Itoa(query.Page))
	params.Set("page-size", strconv.Itoa(query.PageSize))
	if query.From != nil {
		params.Set("fromBookingDateTime", query.From.UTC().Format(time.RFC3339))
	}
	if query.To != nil {
		params.Set("toBookingDateTime", query.To.UTC().Format(time.RFC3339))
	}

	path := "/transactions/" + url.PathEscape(accountID)
	body, err := c.do(ctx, "get_transactions", http.MethodGet, path, token, params, nil, nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data []object `json:"data"`
		Meta object   `json:"meta"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.logger.WarnContext(ctx, "malformed transactions response, treating as empty page",
			"account_id", accountID, "page", query.Page, "error", err)
		return &TransactionPage{Transactions: []Transaction{}, TotalPages: query.Page, CurrentPage: query.Page}, nil
	}

	page := &TransactionPage{
		Transactions: make([]Transaction, 0, len(envelope.Data)),
		TotalPages:   envelope.Meta.integer("totalPages"),
		CurrentPage:  envelope.Meta.integer("currentPage"),
	}
	if page.CurrentPage <= 0 {
		page.CurrentPage = query.Page
	}
	if page.TotalPages <= 0 {
		// no paging meta: a full page means there may be more
		page.TotalPages = page.CurrentPage
		if len(envelope.Data) >= query.PageSize {
			page.TotalPages = page.CurrentPage + 1
		}
	}

	for _, item := range envelope.Data {
		page.Transactions = append(page.Transactions, c.toTransaction(ctx, accountID, item))
	}
	return page, nil
}

func toAccount(item object) Account {
	return Account{
		AccountID:     item.str("accountId", "id"),
		AccountType:   item.str("type", "accountType"),
		AccountNumber: item.str("number", "accountNumber"),
		Branch:        item.str("branchCode", "branch"),
		HolderName:    item.str("holderName", "name"),
		Currency:      item.str("currency"),
	}
}

func (c *Client) toTransaction(ctx context.Context, accountID string, item object) Transaction {
	tx := Transaction{
		TransactionID:   item.str("transactionId", "id"),
		Description:     item.str("description", "transactionName"),
		CreditDebitType: normalizeCreditDebit(item.str("creditDebitType", "type")),
	}

	amountRaw := item.raw("amount", "transactionAmount")
	amount, ok := parseAmount(amountRaw)
	if !ok {
		c.logger.WarnContext(ctx, "transaction amount unparsable, defaulting to zero",
			"account_id", accountID, "transaction_id", tx.TransactionID)
	}
	tx.Amount = amount

	tx.Currency = item.str("currency")
	if tx.Currency == "" {
		tx.Currency = item.obj("transactionAmount").str("currency")
	}

	dateStr := item.str("bookingDateTime", "bookingDate", "transactionDate")
	tx.BookingDate = parseTime(dateStr)
	if tx.BookingDate == nil && dateStr != "" {
		c.logger.WarnContext(ctx, "unparsable booking date",
			"account_id", accountID, "transaction_id", tx.TransactionID, "value", dateStr)
	}
	return tx
}
