package openfinance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const idempotencyKeyHeader = "x-idempotency-key"

type paymentAccount struct {
	Account string `json:"account"`
}

type paymentPayload struct {
	EndToEndID  string         `json:"endToEndId"`
	Amount      string         `json:"amount"`
	Currency    string         `json:"currency"`
	Debtor      paymentAccount `json:"debtor"`
	Creditor    paymentAccount `json:"creditor"`
	PaymentType string         `json:"paymentType,omitempty"`
}

type paymentEnvelope struct {
	Data struct {
		Payment paymentPayload `json:"payment"`
	} `json:"data"`
}

// ValidatePayment rejects requests that would need rounding or lack identifiers.
func ValidatePayment(req PaymentRequest) error {
	if strings.TrimSpace(req.EndToEndID) == "" {
		return fmt.Errorf("%w: endToEndId is required", ErrInvalidPayment)
	}
	if !req.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidPayment)
	}
	if !req.Amount.Equal(req.Amount.Truncate(2)) {
		return fmt.Errorf("%w: amount %s has more than 2 decimal places", ErrInvalidPayment, req.Amount.String())
	}
	if req.DebtorAccount == "" || req.CreditorAccount == "" {
		return fmt.Errorf("%w: debtor and creditor accounts are required", ErrInvalidPayment)
	}
	return nil
}

// InitiatePayment sends the amount as a two-decimal string literal built from the decimal value.
func (c *Client) InitiatePayment(ctx context.Context, token string, req PaymentRequest) (*PaymentResponse, error) {
	if err := ValidatePayment(req); err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	var payload paymentEnvelope
	payload.Data.Payment = paymentPayload{
		EndToEndID:  req.EndToEndID,
		Amount:      req.Amount.StringFixed(2),
		Currency:    currency,
		Debtor:      paymentAccount{Account: req.DebtorAccount},
		Creditor:    paymentAccount{Account: req.CreditorAccount},
		PaymentType: req.PaymentType,
	}

	// retried POSTs carry the same key, so the bank can drop duplicates
	header := http.Header{}
	header.Set(idempotencyKeyHeader, req.EndToEndID)

	body, err := c.do(ctx, "initiate_payment", http.MethodPost, "/payments", token, nil, payload, header)
	if err != nil {
		return nil, err
	}

	data := paymentData(body)
	resp := &PaymentResponse{
		PaymentID:  data.str("paymentId", "id"),
		EndToEndID: data.str("endToEndId"),
		Status:     ParsePaymentStatus(data.str("status"), PaymentStatusPending),
	}
	if resp.EndToEndID == "" {
		resp.EndToEndID = req.EndToEndID
	}
	return resp, nil
}

func (c *Client) GetPaymentStatus(ctx context.Context, token, paymentID string) (PaymentStatus, error) {
	path := "/payments/" + url.PathEscape(paymentID)
	body, err := c.do(ctx, "get_payment_status", http.MethodGet, path, token, nil, nil, nil)
	if err != nil {
		return PaymentStatusUnknown, err
	}
	return ParsePaymentStatus(paymentData(body).str("status"), PaymentStatusUnknown), nil
}

func (c *Client) CancelPayment(ctx context.Context, token, paymentID string) error {
	path := "/payments/" + url.PathEscape(paymentID)
	_, err := c.do(ctx, "cancel_payment", http.MethodDelete, path, token, nil, nil, nil)
	return err
}

// paymentData accepts {data:{...}}, {data:{payment:{...}}} or a bare object.
func paymentData(body []byte) object {
	var root object
	if err := json.Unmarshal(body, &root); err != nil {
		return object{}
	}
	data := root.obj("data")
	if data == nil {
		return root
	}
	if p := data.obj("payment"); p != nil {
		for k, v := range p {
			if _, exists := data[k]; !exists {
				data[k] = v
			}
		}
	}
	return data
}
