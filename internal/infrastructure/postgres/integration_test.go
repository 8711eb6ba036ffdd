//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"ofsync/internal/domain/account"
	"ofsync/internal/domain/consent"
	"ofsync/internal/domain/institution"
	"ofsync/internal/domain/notification"
	"ofsync/internal/domain/synclog"
	"ofsync/internal/domain/transaction"
	"ofsync/internal/infrastructure/crypto"
)

const testKey = "0123456789abcdef0123456789abcdef"

type RepositorySuite struct {
	suite.Suite

	container *tcpostgres.PostgresContainer
	connStr   string
	db        *DB

	consents      *ConsentRepository
	accounts      *AccountRepository
	transactions  *TransactionRepository
	syncLogs      *SyncLogRepository
	institutions  *InstitutionRepository
	notifications *NotificationRepository
}

func (s *RepositorySuite) SetupSuite() {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("ofsync"),
		tcpostgres.WithUsername("ofsync"),
		tcpostgres.WithPassword("ofsync"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	s.connStr, err = container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.db, err = New(s.connStr)
	s.Require().NoError(err)
	s.Require().NoError(s.db.Migrate(ctx))
	// a second run must be a no-op
	s.Require().NoError(s.db.Migrate(ctx))

	enc, err := crypto.NewEncryptor(testKey)
	s.Require().NoError(err)

	s.consents = NewConsentRepository(s.db, enc)
	s.accounts = NewAccountRepository(s.db)
	s.transactions = NewTransactionRepository(s.db)
	s.syncLogs = NewSyncLogRepository(s.db)
	s.institutions = NewInstitutionRepository(s.db)
	s.notifications = NewNotificationRepository(s.db)
}

func (s *RepositorySuite) TearDownSuite() {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
}

func (s *RepositorySuite) SetupTest() {
	_, err := s.db.ExecContext(context.Background(), `
		TRUNCATE notifications, fcm_device_tokens, transactions, account_sync_logs,
		         connected_accounts, consents, institutions CASCADE
	`)
	s.Require().NoError(err)
}

func (s *RepositorySuite) seedConsent(ctx context.Context) *consent.Consent {
	_, err := s.institutions.Upsert(ctx, institution.Institution{Code: "itau", Name: "Itaú"})
	s.Require().NoError(err)

	c, err := s.consents.Create(ctx, consent.GrantParams{
		UserID:          7,
		InstitutionCode: "itau",
		Scopes:          []string{consent.ScopeAccounts, consent.ScopeBalances},
		AccessToken:     "access-1",
		RefreshToken:    "refresh-1",
		ExpiresAt:       time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond),
	})
	s.Require().NoError(err)
	return c
}

func (s *RepositorySuite) seedAccount(ctx context.Context, c *consent.Consent, external string) *account.ConnectedAccount {
	acc, created, err := s.accounts.Upsert(ctx, account.UpsertParams{
		UserID:            c.UserID,
		ConsentID:         c.ID,
		InstitutionCode:   c.InstitutionCode,
		ExternalAccountID: external,
		Number:            "12345678",
		Currency:          "BRL",
	})
	s.Require().NoError(err)
	s.Require().True(created)
	return acc
}

func (s *RepositorySuite) TestConsentTokensAreEncryptedAtRest() {
	ctx := context.Background()
	c := s.seedConsent(ctx)

	var rawAccess string
	s.Require().NoError(s.db.QueryRowContext(ctx, `SELECT access_token FROM consents WHERE id = $1`, c.ID).Scan(&rawAccess))
	s.NotEqual("access-1", rawAccess)

	got, err := s.consents.GetByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal("access-1", got.AccessToken)
	s.Equal("refresh-1", got.RefreshToken)
	s.Equal([]string{consent.ScopeAccounts, consent.ScopeBalances}, got.Scopes)
	s.Equal(consent.StatusActive, got.Status)
}

func (s *RepositorySuite) TestConsentLifecycleUpdates() {
	ctx := context.Background()
	c := s.seedConsent(ctx)

	expiry := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.consents.UpdateTokens(ctx, c.ID, consent.TokenSet{AccessToken: "a2", RefreshToken: "r2", ExpiresAt: expiry}))

	expiring, err := s.consents.ListActiveExpiringBefore(ctx, time.Now().Add(3*time.Hour))
	s.Require().NoError(err)
	s.Require().Len(expiring, 1)
	s.Equal("a2", expiring[0].AccessToken)
	s.True(expiry.Equal(expiring[0].ExpiresAt))

	at := time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.consents.UpdateStatus(ctx, c.ID, consent.StatusRevoked, at))

	got, err := s.consents.GetByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(consent.StatusRevoked, got.Status)
	s.Require().NotNil(got.RevokedAt)

	expiring, err = s.consents.ListActiveExpiringBefore(ctx, time.Now().Add(3*time.Hour))
	s.Require().NoError(err)
	s.Empty(expiring)

	s.ErrorIs(s.consents.SetExpiresAt(ctx, "00000000-0000-0000-0000-000000000000", at), consent.ErrNotFound)

	missing, err := s.consents.GetByID(ctx, "00000000-0000-0000-0000-000000000000")
	s.Require().NoError(err)
	s.Nil(missing)
}

func (s *RepositorySuite) TestAccountUpsertAndSyncFields() {
	ctx := context.Background()
	c := s.seedConsent(ctx)
	acc := s.seedAccount(ctx, c, "ext-1")
	s.Equal("****5678", acc.MaskedNumber)
	s.Equal(account.SyncStatusNeverSynced, acc.SyncStatus)

	again, created, err := s.accounts.Upsert(ctx, account.UpsertParams{
		UserID: c.UserID, ConsentID: c.ID, InstitutionCode: "itau", ExternalAccountID: "ext-1", HolderName: "Ana", Currency: "BRL",
	})
	s.Require().NoError(err)
	s.False(created)
	s.Equal(acc.ID, again.ID)
	s.Equal("Ana", again.HolderName)

	at := time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.accounts.MarkBalanceSynced(ctx, acc.ID, decimal.RequireFromString("1234.56"), "BRL", at))

	later := at.Add(time.Hour)
	s.Require().NoError(s.accounts.MarkTransactionsSynced(ctx, acc.ID, later))
	s.Require().NoError(s.accounts.MarkTransactionsSynced(ctx, acc.ID, at))

	got, err := s.accounts.GetByID(ctx, acc.ID)
	s.Require().NoError(err)
	s.True(decimal.RequireFromString("1234.56").Equal(got.Balance))
	s.Equal(account.SyncStatusSynced, got.SyncStatus)
	s.Require().NotNil(got.LastSyncedAt)
	s.True(later.Equal(*got.LastSyncedAt), "last_synced_at never moves backwards")

	s.ErrorIs(s.accounts.MarkFailed(ctx, "00000000-0000-0000-0000-000000000000"), account.ErrAccountNotFound)

	n, err := s.accounts.DisableByConsent(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(1, n)

	enabled, err := s.accounts.ListEnabled(ctx)
	s.Require().NoError(err)
	s.Empty(enabled)
}

func (s *RepositorySuite) TestTransactionUpsertIsIdempotent() {
	ctx := context.Background()
	acc := s.seedAccount(ctx, s.seedConsent(ctx), "ext-1")
	booked := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)

	params := transaction.UpsertParams{
		AccountID:       acc.ID,
		ExternalID:      "tx-1",
		Amount:          decimal.RequireFromString("99.90"),
		Currency:        "BRL",
		Description:     "Mercado",
		BookingDate:     &booked,
		CreditDebitType: transaction.TypeDebit,
	}

	first, created, err := s.transactions.Upsert(ctx, params)
	s.Require().NoError(err)
	s.True(created)

	params.Description = "Mercado Central"
	params.BookingDate = nil
	second, created, err := s.transactions.Upsert(ctx, params)
	s.Require().NoError(err)
	s.False(created)
	s.Equal(first.ID, second.ID)
	s.Equal("Mercado Central", second.Description)
	s.Require().NotNil(second.BookingDate, "a re-import without a date keeps the stored one")

	count, err := s.transactions.CountByAccount(ctx, acc.ID)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *RepositorySuite) TestSyncLogFinishOnce() {
	ctx := context.Background()
	acc := s.seedAccount(ctx, s.seedConsent(ctx), "ext-1")
	start := time.Now().UTC().Truncate(time.Microsecond)

	log := &synclog.SyncLog{ID: "6f1c1d2e-8a0b-4c55-9a51-3c1f0e0d9b11", AccountID: acc.ID, SyncType: synclog.SyncTypeBalance, Status: synclog.StatusSyncing, SyncedAt: start}
	s.Require().NoError(s.syncLogs.Create(ctx, log))

	updated, err := s.syncLogs.Finish(ctx, log.ID, synclog.StatusSuccess, 1, "", start.Add(time.Second))
	s.Require().NoError(err)
	s.True(updated)

	updated, err = s.syncLogs.Finish(ctx, log.ID, synclog.StatusFailed, 0, "late", start.Add(2*time.Second))
	s.Require().NoError(err)
	s.False(updated)

	latest, err := s.syncLogs.Latest(ctx, acc.ID, synclog.SyncTypeBalance)
	s.Require().NoError(err)
	s.Equal(synclog.StatusSuccess, latest.Status)
	s.Require().NotNil(latest.FinishedAt)

	none, err := s.syncLogs.Latest(ctx, acc.ID, synclog.SyncTypeTransactions)
	s.Require().NoError(err)
	s.Nil(none)

	stale, err := s.syncLogs.ListStaleAccountIDs(ctx, start.Add(-time.Hour))
	s.Require().NoError(err)
	s.Empty(stale)

	stale, err = s.syncLogs.ListStaleAccountIDs(ctx, start.Add(time.Hour))
	s.Require().NoError(err)
	s.Equal([]string{acc.ID}, stale)
}

func (s *RepositorySuite) TestNotifications() {
	ctx := context.Background()

	dt, err := s.notifications.UpsertDeviceToken(ctx, notification.CreateDeviceTokenParams{UserID: 7, Token: "fcm-1", DeviceType: "ios"})
	s.Require().NoError(err)
	s.True(dt.IsActive)

	_, err = s.notifications.UpsertDeviceToken(ctx, notification.CreateDeviceTokenParams{UserID: 8, Token: "fcm-1", DeviceType: "ios"})
	s.Require().NoError(err)

	tokens, err := s.notifications.GetActiveTokensByUserID(ctx, 7)
	s.Require().NoError(err)
	s.Empty(tokens, "token was reassigned to user 8")

	s.Require().NoError(s.notifications.DeactivateToken(ctx, "fcm-1"))
	tokens, err = s.notifications.GetActiveTokensByUserID(ctx, 8)
	s.Require().NoError(err)
	s.Empty(tokens)

	n, err := s.notifications.CreateNotification(ctx, notification.CreateNotificationParams{
		UserID: 8, Title: "t", Message: "m", Category: notification.CategoryConsent, Data: map[string]string{"consentId": "c"},
	})
	s.Require().NoError(err)
	s.Equal("c", n.Data["consentId"])
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}
