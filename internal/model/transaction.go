package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Scale is the number of minor units per major currency unit in the ledger
// API (milliunits: 1000 = 1.00).
const Scale = 1000

// Milliunits converts a balance in major units to the ledger's integer
// minor-unit scale. All reconciliation arithmetic happens on the result, so
// the float leaves scope here.
func Milliunits(amount float64) int64 {
	return decimal.NewFromFloat(amount).Mul(decimal.NewFromInt(Scale)).Round(0).IntPart()
}

const dateLayout = "2006-01-02"

// Date is a calendar day, serialized as YYYY-MM-DD the way the ledger API
// expects. The time-of-day component is always midnight UTC.
type Date struct {
	time.Time
}

// NewDate returns the Date for a year/month/day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a time to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

// FirstOfMonth reports whether the date falls on the first day of a month.
func (d Date) FirstOfMonth() bool {
	return d.Day() == 1
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("parsing date: %w", err)
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return fmt.Errorf("parsing date %q: %w", s, err)
	}
	d.Time = t
	return nil
}

// Transaction is one ledger transaction. The reconciliation engine inspects
// only ID, Date, Amount and PayeeID; every other field the API returns is
// carried in Extra and written back unchanged on amendment, since the ledger
// owns those fields.
type Transaction struct {
	ID      string
	Date    Date
	Amount  int64 // minor units
	PayeeID string
	Extra   map[string]json.RawMessage
}

func (t Transaction) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(t.Extra)+4)
	for k, v := range t.Extra {
		fields[k] = v
	}
	set := func(key string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshaling transaction %s: %w", key, err)
		}
		fields[key] = raw
		return nil
	}
	if t.ID != "" {
		if err := set("id", t.ID); err != nil {
			return nil, err
		}
	}
	if err := set("date", t.Date); err != nil {
		return nil, err
	}
	if err := set("amount", t.Amount); err != nil {
		return nil, err
	}
	if err := set("payee_id", t.PayeeID); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

func (t *Transaction) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("parsing transaction: %w", err)
	}
	take := func(key string, dst any) error {
		raw, ok := fields[key]
		if !ok {
			return nil
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("parsing transaction %s: %w", key, err)
		}
		delete(fields, key)
		return nil
	}
	if err := take("id", &t.ID); err != nil {
		return err
	}
	if err := take("date", &t.Date); err != nil {
		return err
	}
	if err := take("amount", &t.Amount); err != nil {
		return err
	}
	if err := take("payee_id", &t.PayeeID); err != nil {
		return err
	}
	t.Extra = fields
	return nil
}
