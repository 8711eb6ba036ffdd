package consent

import (
	"testing"
	"time"
)

func TestConsent_EffectiveStatus(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	revokedAt := now.Add(-time.Hour)

	tests := []struct {
		name    string
		consent Consent
		want    Status
	}{
		{"active before expiry", Consent{Status: StatusActive, ExpiresAt: now.Add(time.Hour)}, StatusActive},
		{"past expiry with refresh token", Consent{Status: StatusActive, ExpiresAt: now.Add(-time.Hour), RefreshToken: "r"}, StatusActive},
		{"past expiry without refresh token", Consent{Status: StatusActive, ExpiresAt: now.Add(-time.Hour)}, StatusExpired},
		{"stored expired", Consent{Status: StatusExpired, ExpiresAt: now.Add(time.Hour), RefreshToken: "r"}, StatusExpired},
		{"revoked", Consent{Status: StatusRevoked, ExpiresAt: now.Add(time.Hour)}, StatusRevoked},
		{"revoked timestamp wins", Consent{Status: StatusActive, RevokedAt: &revokedAt, ExpiresAt: now.Add(time.Hour)}, StatusRevoked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.consent.EffectiveStatus(now); got != tt.want {
				t.Errorf("EffectiveStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConsent_NeedsRefresh(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresIn time.Duration
		status    Status
		want      bool
	}{
		{"inside threshold", 5 * time.Minute, StatusActive, true},
		{"already expired", -time.Minute, StatusActive, true},
		{"outside threshold", 15 * time.Minute, StatusActive, false},
		{"exactly at threshold", 10 * time.Minute, StatusActive, false},
		{"expired consent", time.Minute, StatusExpired, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Consent{Status: tt.status, ExpiresAt: now.Add(tt.expiresIn)}
			if got := c.NeedsRefresh(now, 10*time.Minute); got != tt.want {
				t.Errorf("NeedsRefresh() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGrantParams_Validate(t *testing.T) {
	valid := GrantParams{
		UserID:          1,
		InstitutionCode: "bank-x",
		Scopes:          []string{ScopeAccounts, ScopeTransactions},
		AccessToken:     "a",
		ExpiresAt:       time.Now().Add(time.Hour),
	}

	tests := []struct {
		name    string
		mutate  func(p *GrantParams)
		wantErr bool
	}{
		{"valid", func(p *GrantParams) {}, false},
		{"missing user", func(p *GrantParams) { p.UserID = 0 }, true},
		{"missing institution", func(p *GrantParams) { p.InstitutionCode = " " }, true},
		{"missing token", func(p *GrantParams) { p.AccessToken = "" }, true},
		{"missing expiry", func(p *GrantParams) { p.ExpiresAt = time.Time{} }, true},
		{"no scopes", func(p *GrantParams) { p.Scopes = nil }, true},
		{"unknown scope", func(p *GrantParams) { p.Scopes = []string{"loans"} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			p.Scopes = append([]string(nil), valid.Scopes...)
			tt.mutate(&p)
			err := p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
