package openfinance

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Providers disagree on field names and number encodings; everything below is best effort.

var bookingDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime returns nil when s matches none of the known layouts.
func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range bookingDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// parseAmount accepts a JSON number, a numeric string, or an object with an "amount" field.
func parseAmount(raw json.RawMessage) (decimal.Decimal, bool) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 || string(raw) == "null" {
		return decimal.Zero, false
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case '{':
		var obj struct {
			Amount json.RawMessage `json:"amount"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return decimal.Zero, false
		}
		return parseAmount(obj.Amount)
	default:
		d, err := decimal.NewFromString(string(raw))
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	}
}

// object is a loosely typed JSON object.
type object map[string]json.RawMessage

// str returns the first key holding a non-empty string (or number) value.
func (o object) str(keys ...string) string {
	for _, k := range keys {
		raw, ok := o[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil && n != "" {
			return n.String()
		}
	}
	return ""
}

func (o object) raw(keys ...string) json.RawMessage {
	for _, k := range keys {
		if raw, ok := o[k]; ok && string(raw) != "null" {
			return raw
		}
	}
	return nil
}

func (o object) obj(key string) object {
	var nested object
	if raw, ok := o[key]; ok {
		_ = json.Unmarshal(raw, &nested)
	}
	return nested
}

func (o object) integer(key string) int {
	var n int
	if raw, ok := o[key]; ok {
		if err := json.Unmarshal(raw, &n); err != nil {
			var s string
			if json.Unmarshal(raw, &s) == nil {
				parsed := json.Number(strings.TrimSpace(s))
				if v, err := parsed.Int64(); err == nil {
					n = int(v)
				}
			}
		}
	}
	return n
}

func normalizeCreditDebit(s string) string {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CREDIT", "CREDITO", "CRÉDITO":
		return CreditDebitCredit
	default:
		return CreditDebitDebit
	}
}
