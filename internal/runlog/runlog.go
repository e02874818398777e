// Package runlog keeps an append-only CSV audit trail of reconciliation
// runs: what was observed, what the ledger said, and what was written.
package runlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Entry is one row in the run log.
type Entry struct {
	Timestamp     time.Time
	Account       string
	Observed      int64 // minor units
	LedgerBalance int64 // minor units
	Decision      string
	TransactionID string
	Error         string
}

// Header is the CSV header for run-log.csv.
const Header = "timestamp,account,observed,ledger_balance,decision,transaction_id,error"

const (
	numFields        = 7
	logDir           = "logs"
	logFile          = "logs/run-log.csv"
	colTimestamp     = 0
	colAccount       = 1
	colObserved      = 2
	colLedgerBalance = 3
	colDecision      = 4
	colTransactionID = 5
	colError         = 6
)

// MarshalEntry converts an Entry to a CSV row.
func MarshalEntry(e Entry) []string {
	row := make([]string, numFields)
	row[colTimestamp] = e.Timestamp.Format(time.RFC3339)
	row[colAccount] = e.Account
	row[colObserved] = strconv.FormatInt(e.Observed, 10)
	row[colLedgerBalance] = strconv.FormatInt(e.LedgerBalance, 10)
	row[colDecision] = e.Decision
	row[colTransactionID] = e.TransactionID
	row[colError] = e.Error
	return row
}

// UnmarshalEntry converts a CSV row to an Entry.
func UnmarshalEntry(record []string) (Entry, error) {
	if len(record) != numFields {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(time.RFC3339, record[colTimestamp])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}
	observed, err := strconv.ParseInt(record[colObserved], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing observed %q: %w", record[colObserved], err)
	}
	ledgerBalance, err := strconv.ParseInt(record[colLedgerBalance], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("parsing ledger balance %q: %w", record[colLedgerBalance], err)
	}

	return Entry{
		Timestamp:     ts,
		Account:       record[colAccount],
		Observed:      observed,
		LedgerBalance: ledgerBalance,
		Decision:      record[colDecision],
		TransactionID: record[colTransactionID],
		Error:         record[colError],
	}, nil
}

// Append writes entries to <root>/logs/run-log.csv, creating the file and
// header if needed.
func Append(root string, entries []Entry) error {
	dir := filepath.Join(root, logDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}

	path := filepath.Join(root, logFile)
	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening run log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	defer cw.Flush()

	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	for i, e := range entries {
		if err := cw.Write(MarshalEntry(e)); err != nil {
			return fmt.Errorf("writing entry %d: %w", i, err)
		}
	}

	return cw.Error()
}

// Read returns all entries from <root>/logs/run-log.csv.
// Returns an empty slice if the file does not exist.
func Read(root string) ([]Entry, error) {
	path := filepath.Join(root, logFile)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening run log: %w", err)
	}
	defer f.Close()

	return readEntries(f)
}

func readEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading run log CSV: %w", err)
	}

	if len(records) <= 1 {
		return nil, nil
	}

	var entries []Entry
	for i, rec := range records[1:] {
		e, err := UnmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
