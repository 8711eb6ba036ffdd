package openfinance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ofsync/internal/domain/account"
	"ofsync/internal/domain/consent"
	"ofsync/internal/domain/synclog"
	"ofsync/internal/domain/transaction"
	"ofsync/internal/infrastructure/retry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type instantTimer struct {
	ch chan time.Time
}

func (t *instantTimer) Start(d time.Duration) { t.ch <- time.Now() }
func (t *instantTimer) Stop()                 {}
func (t *instantTimer) C() <-chan time.Time   { return t.ch }

func instantExecutor() *retry.Executor {
	return retry.New(retry.Config{}, testLogger(), retry.WithTimer(func() backoff.Timer {
		return &instantTimer{ch: make(chan time.Time, 1)}
	}))
}

// fakeConsents hands out "token-<consentID>" unless a func field overrides it.
type fakeConsents struct {
	mu          sync.Mutex
	consents    map[string]*consent.Consent
	flagged     []string
	tokenErr    map[string]error
	RefreshFunc func(ctx context.Context) (consent.RefreshResult, error)
}

func newFakeConsents(cs ...*consent.Consent) *fakeConsents {
	f := &fakeConsents{consents: map[string]*consent.Consent{}, tokenErr: map[string]error{}}
	for _, c := range cs {
		f.consents[c.ID] = c
	}
	return f
}

func (f *fakeConsents) Get(ctx context.Context, consentID string) (*consent.Consent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.consents[consentID]
	if !ok {
		return nil, consent.ErrNotFound
	}
	return c, nil
}

func (f *fakeConsents) AccessToken(ctx context.Context, consentID, scope string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.tokenErr[consentID]; err != nil {
		return "", err
	}
	return "token-" + consentID, nil
}

func (f *fakeConsents) FlagForRefresh(ctx context.Context, consentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flagged = append(f.flagged, consentID)
	return nil
}

func (f *fakeConsents) RefreshExpiringTokens(ctx context.Context) (consent.RefreshResult, error) {
	if f.RefreshFunc != nil {
		return f.RefreshFunc(ctx)
	}
	return consent.RefreshResult{}, nil
}

type memAccounts struct {
	mu       sync.Mutex
	accounts map[string]*account.ConnectedAccount
	statuses map[string][]account.SyncStatus
}

func newMemAccounts(accs ...*account.ConnectedAccount) *memAccounts {
	m := &memAccounts{accounts: map[string]*account.ConnectedAccount{}, statuses: map[string][]account.SyncStatus{}}
	for _, a := range accs {
		if a.SyncStatus == "" {
			a.SyncStatus = account.SyncStatusNeverSynced
		}
		m.accounts[a.ID] = a
	}
	return m
}

func (m *memAccounts) get(id string) *account.ConnectedAccount {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.accounts[id]
	return &cp
}

func (m *memAccounts) Upsert(ctx context.Context, p account.UpsertParams) (*account.ConnectedAccount, bool, error) {
	if err := p.Validate(); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.ConsentID == p.ConsentID && a.ExternalAccountID == p.ExternalAccountID {
			a.AccountType, a.Branch, a.HolderName, a.Currency = p.AccountType, p.Branch, p.HolderName, p.Currency
			a.MaskedNumber = account.MaskNumber(p.Number)
			a.Enabled = true
			cp := *a
			return &cp, false, nil
		}
	}
	a := &account.ConnectedAccount{
		ID:                uuid.NewString(),
		UserID:            p.UserID,
		ConsentID:         p.ConsentID,
		InstitutionCode:   p.InstitutionCode,
		ExternalAccountID: p.ExternalAccountID,
		AccountType:       p.AccountType,
		MaskedNumber:      account.MaskNumber(p.Number),
		Branch:            p.Branch,
		HolderName:        p.HolderName,
		Currency:          p.Currency,
		SyncStatus:        account.SyncStatusNeverSynced,
		Enabled:           true,
	}
	m.accounts[a.ID] = a
	cp := *a
	return &cp, true, nil
}

func (m *memAccounts) GetByID(ctx context.Context, id string) (*account.ConnectedAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *memAccounts) ListEnabled(ctx context.Context) ([]*account.ConnectedAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*account.ConnectedAccount
	for _, a := range m.accounts {
		if a.Enabled {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memAccounts) ListByConsent(ctx context.Context, consentID string) ([]*account.ConnectedAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*account.ConnectedAccount
	for _, a := range m.accounts {
		if a.ConsentID == consentID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memAccounts) setStatus(id string, status account.SyncStatus) error {
	a, ok := m.accounts[id]
	if !ok {
		return account.ErrAccountNotFound
	}
	a.SyncStatus = status
	m.statuses[id] = append(m.statuses[id], status)
	return nil
}

func (m *memAccounts) SetSyncStatus(ctx context.Context, id string, status account.SyncStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setStatus(id, status)
}

func (m *memAccounts) MarkBalanceSynced(ctx context.Context, id string, amount decimal.Decimal, currency string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.setStatus(id, account.SyncStatusSynced); err != nil {
		return err
	}
	a := m.accounts[id]
	a.Balance, a.Currency, a.BalanceUpdatedAt = amount, currency, &at
	return nil
}

func (m *memAccounts) MarkTransactionsSynced(ctx context.Context, id string, windowEnd time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.setStatus(id, account.SyncStatusSynced); err != nil {
		return err
	}
	m.accounts[id].LastSyncedAt = &windowEnd
	return nil
}

func (m *memAccounts) MarkFailed(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setStatus(id, account.SyncStatusFailed)
}

func (m *memAccounts) DisableByConsent(ctx context.Context, consentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.accounts {
		if a.ConsentID == consentID && a.Enabled {
			a.Enabled = false
			n++
		}
	}
	return n, nil
}

type memTransactions struct {
	mu  sync.Mutex
	txs map[string]*transaction.Transaction
}

func newMemTransactions() *memTransactions {
	return &memTransactions{txs: map[string]*transaction.Transaction{}}
}

func (m *memTransactions) Upsert(ctx context.Context, p transaction.UpsertParams) (*transaction.Transaction, bool, error) {
	if err := p.Validate(); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := p.AccountID + "/" + p.ExternalID
	tx, exists := m.txs[key]
	if !exists {
		tx = &transaction.Transaction{ID: uuid.NewString(), AccountID: p.AccountID, ExternalID: p.ExternalID}
		m.txs[key] = tx
	}
	tx.Amount, tx.Currency, tx.Description = p.Amount, p.Currency, p.Description
	tx.BookingDate, tx.CreditDebitType = p.BookingDate, p.CreditDebitType
	cp := *tx
	return &cp, !exists, nil
}

func (m *memTransactions) GetByExternalID(ctx context.Context, accountID, externalID string) (*transaction.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[accountID+"/"+externalID]
	if !ok {
		return nil, nil
	}
	cp := *tx
	return &cp, nil
}

func (m *memTransactions) CountByAccount(ctx context.Context, accountID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, tx := range m.txs {
		if tx.AccountID == accountID {
			n++
		}
	}
	return n, nil
}

// memSyncLogs backs a real synclog.Recorder.
type memSyncLogs struct {
	mu   sync.Mutex
	logs []*synclog.SyncLog
}

func (m *memSyncLogs) Create(ctx context.Context, log *synclog.SyncLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *log
	m.logs = append(m.logs, &cp)
	return nil
}

func (m *memSyncLogs) Finish(ctx context.Context, id string, status synclog.Status, records int, msg string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.logs {
		if l.ID == id {
			if l.Status != synclog.StatusSyncing {
				return false, nil
			}
			l.Status, l.RecordsImported, l.ErrorMessage, l.FinishedAt = status, records, msg, &at
			return true, nil
		}
	}
	return false, errors.New("sync log not found")
}

func (m *memSyncLogs) Latest(ctx context.Context, accountID string, syncType synclog.SyncType) (*synclog.SyncLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.logs) - 1; i >= 0; i-- {
		if m.logs[i].AccountID == accountID && m.logs[i].SyncType == syncType {
			cp := *m.logs[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memSyncLogs) ListStaleAccountIDs(ctx context.Context, since time.Time) ([]string, error) {
	return nil, nil
}

func (m *memSyncLogs) forAccount(accountID string) []synclog.SyncLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []synclog.SyncLog
	for _, l := range m.logs {
		if l.AccountID == accountID {
			out = append(out, *l)
		}
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []SyncEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event SyncEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func testConsent(id string) *consent.Consent {
	return &consent.Consent{
		ID:              id,
		UserID:          7,
		InstitutionCode: "bank-" + id,
		Scopes:          []string{consent.ScopeAccounts, consent.ScopeBalances, consent.ScopeTransactions},
		Status:          consent.StatusActive,
	}
}

func testAccount(id, consentID string) *account.ConnectedAccount {
	return &account.ConnectedAccount{
		ID:                id,
		UserID:            7,
		ConsentID:         consentID,
		ExternalAccountID: "ext-" + id,
		Currency:          "BRL",
		Enabled:           true,
	}
}
