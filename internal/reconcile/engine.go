// Package reconcile decides how to bring a ledger account's recorded balance
// in line with an observed real-world balance: do nothing, amend the previous
// reconciliation transaction, or create a new one.
package reconcile

import (
	"encoding/json"
	"fmt"

	"github.com/reconciled-dev/reconciled/internal/model"
)

// Op tags the decision variant.
type Op string

const (
	OpNone   Op = "none"
	OpAmend  Op = "amend"
	OpCreate Op = "create"
)

// Decision is the engine's verdict for one run. For OpAmend and OpCreate the
// Transaction field carries the exact write to apply: on amend it is the last
// transaction with only amount and date changed, on create it is a fully
// populated new transaction.
type Decision struct {
	Op          Op
	Reason      string
	Transaction *model.Transaction
}

func (d Decision) String() string {
	switch d.Op {
	case OpAmend:
		return fmt.Sprintf("amend %s to %d on %s", d.Transaction.ID, d.Transaction.Amount, d.Transaction.Date)
	case OpCreate:
		return fmt.Sprintf("create %d on %s", d.Transaction.Amount, d.Transaction.Date)
	default:
		return "no-op: " + d.Reason
	}
}

// Fixed metadata stamped onto a created reconciliation transaction, matching
// what the budgeting service writes for its own balance adjustments.
const (
	createdMemo      = "Entered automatically by reconciled"
	createdPayeeName = "Reconciliation Balance Adjustment"
	createdCategory  = "Uncategorized"
	createdCleared   = "reconciled"
)

// Decide compares the observed balance (major units) against the ledger
// balance (minor units) and the account's most recent transaction.
//
// Rules, in priority order:
//  1. Balances equal after conversion: nothing to do.
//  2. Today and the last transaction both fall on the 1st: nothing to do.
//     The 1st-of-month reconciliation is kept as an anchor recording the
//     account's value over time; without this guard a second run on the 1st
//     would amend the anchor away.
//  3. The last transaction is a reconciliation not dated the 1st: amend it so
//     it absorbs the new delta, dated today. Every other field rides along
//     unchanged.
//  4. Otherwise create a new reconciliation transaction for the delta.
//
// An account with no transaction history falls through to rule 4.
func Decide(observed float64, ledgerBalance int64, last *model.Transaction, payeeID, accountID string, today model.Date) Decision {
	target := model.Milliunits(observed)
	delta := target - ledgerBalance

	if delta == 0 {
		return Decision{Op: OpNone, Reason: "ledger matches observed balance"}
	}

	if last != nil && today.FirstOfMonth() && last.Date.FirstOfMonth() {
		return Decision{Op: OpNone, Reason: "month-start anchor transaction preserved"}
	}

	if last != nil && last.PayeeID == payeeID && !last.Date.FirstOfMonth() {
		amended := *last
		amended.Amount = last.Amount + delta
		amended.Date = today
		return Decision{Op: OpAmend, Transaction: &amended}
	}

	return Decision{
		Op: OpCreate,
		Transaction: &model.Transaction{
			Date:    today,
			Amount:  delta,
			PayeeID: payeeID,
			Extra: map[string]json.RawMessage{
				"account_id":    rawString(accountID),
				"approved":      json.RawMessage("true"),
				"cleared":       rawString(createdCleared),
				"category_name": rawString(createdCategory),
				"memo":          rawString(createdMemo),
				"payee_name":    rawString(createdPayeeName),
			},
		},
	}
}

func rawString(s string) json.RawMessage {
	raw, _ := json.Marshal(s)
	return raw
}
