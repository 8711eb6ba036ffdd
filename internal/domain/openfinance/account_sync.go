package openfinance

import (
	"context"
	"errors"
	"fmt"

	"ofsync/internal/domain/account"
	"ofsync/internal/domain/consent"
	ofclient "ofsync/internal/infrastructure/openfinance"
)

// DiscoveryResult contains the results of enumerating a consent's accounts
type DiscoveryResult struct {
	ConsentID     string   `json:"consentId"`
	AccountsFound int      `json:"accountsFound"`
	Created       int      `json:"created"`
	Updated       int      `json:"updated"`
	Errors        []string `json:"errors,omitempty"`
}

// DiscoverAccounts lists the accounts a consent grants access to and upserts them as
// connected accounts. Safe to repeat: existing accounts are updated in place.
func (o *Orchestrator) DiscoverAccounts(ctx context.Context, consentID string) (*DiscoveryResult, error) {
	result := &DiscoveryResult{ConsentID: consentID}

	c, err := o.consents.Get(ctx, consentID)
	if err != nil {
		return result, err
	}

	token, err := o.consents.AccessToken(ctx, consentID, consent.ScopeAccounts)
	if err != nil {
		return result, err
	}

	found, err := o.gateway.ListAccounts(ctx, token)
	if err != nil {
		if errors.Is(err, ofclient.ErrUnauthorized) {
			if ferr := o.consents.FlagForRefresh(ctx, consentID); ferr != nil {
				o.logger.WarnContext(ctx, "failed to flag consent for refresh", "consent_id", consentID, "error", ferr)
			}
		}
		return result, fmt.Errorf("failed to list accounts: %w", err)
	}
	result.AccountsFound = len(found)

	for _, a := range found {
		currency := a.Currency
		if currency == "" {
			currency = ofclient.DefaultCurrency
		}

		_, created, err := o.accounts.Upsert(ctx, account.UpsertParams{
			UserID:            c.UserID,
			ConsentID:         c.ID,
			InstitutionCode:   c.InstitutionCode,
			ExternalAccountID: a.AccountID,
			AccountType:       a.AccountType,
			Number:            a.AccountNumber,
			Branch:            a.Branch,
			HolderName:        a.HolderName,
			Currency:          currency,
		})
		if err != nil {
			msg := fmt.Sprintf("failed to upsert account %s: %v", a.AccountID, err)
			result.Errors = append(result.Errors, msg)
			o.logger.ErrorContext(ctx, "account discovery upsert failed", "consent_id", consentID, "external_account_id", a.AccountID, "error", err)
			continue
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}

	o.logger.InfoContext(ctx, "accounts discovered",
		"consent_id", consentID,
		"found", result.AccountsFound,
		"created", result.Created,
		"updated", result.Updated,
		"errors", len(result.Errors),
	)
	return result, nil
}
