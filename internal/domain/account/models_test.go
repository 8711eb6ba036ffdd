package account

import (
	"testing"
)

func TestMaskNumber(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"12345-6", "***45-6"},
		{"0001234567", "******4567"},
		{"1234", "****"},
		{"12", "**"},
		{"", ""},
		{"  98765 ", "*8765"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := MaskNumber(tt.input); got != tt.want {
				t.Errorf("MaskNumber(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestUpsertParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		params  UpsertParams
		wantErr bool
	}{
		{"valid", UpsertParams{UserID: 1, ConsentID: "c", ExternalAccountID: "x"}, false},
		{"missing user", UpsertParams{ConsentID: "c", ExternalAccountID: "x"}, true},
		{"missing consent", UpsertParams{UserID: 1, ExternalAccountID: "x"}, true},
		{"blank external id", UpsertParams{UserID: 1, ConsentID: "c", ExternalAccountID: "  "}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
