package messages

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

type MessageText struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Messages holds push notification texts. "{institution}" is replaced with the
// institution code of the consent.
type Messages struct {
	ConsentExpired MessageText `json:"consent_expired"`
	ConsentRevoked MessageText `json:"consent_revoked"`
}

var (
	loaded   *Messages
	loadOnce sync.Once
	loadErr  error
)

// Defaults returns the built-in texts used when no messages file is configured.
func Defaults() *Messages {
	return &Messages{
		ConsentExpired: MessageText{
			Title: "Bank connection expired",
			Body:  "Your connection to {institution} has expired. Reconnect to keep your accounts up to date.",
		},
		ConsentRevoked: MessageText{
			Title: "Bank connection removed",
			Body:  "Your connection to {institution} was revoked and its accounts will no longer sync.",
		},
	}
}

// Load reads the notifications JSON file and caches the result.
// Safe to call from multiple goroutines.
func Load(path string) (*Messages, error) {
	loadOnce.Do(func() {
		data, err := os.ReadFile(path)
		if err != nil {
			loadErr = fmt.Errorf("failed to read messages file: %w", err)
			return
		}
		loaded, loadErr = Parse(data)
	})
	if loadErr != nil {
		return nil, loadErr
	}
	return loaded, nil
}

// Parse decodes a messages document. Texts missing from it keep their defaults.
func Parse(data []byte) (*Messages, error) {
	msgs := Defaults()
	if err := json.Unmarshal(data, msgs); err != nil {
		return nil, fmt.Errorf("failed to parse messages file: %w", err)
	}
	return msgs, nil
}
