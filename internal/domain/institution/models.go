package institution

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("institution not found")
	ErrInvalidInput = errors.New("invalid institution")
)

// Institution is a bank reachable through Open Finance. Read-only to sync.
type Institution struct {
	Code      string    `json:"code" yaml:"code"`
	Name      string    `json:"name" yaml:"name"`
	CreatedAt time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"-"`
}

func (i Institution) Validate() error {
	if strings.TrimSpace(i.Code) == "" {
		return errors.New("institution code is required")
	}
	if strings.TrimSpace(i.Name) == "" {
		return errors.New("institution name is required")
	}
	return nil
}
