package repository

import (
	"time"

	"github.com/fiscalhost/ledger/internal/hcbcode"
)

// Event is an organization owning a sub-ledger.
type Event struct {
	ID        string
	Name      string
	Slug      string
	CreatedAt time.Time
}

// Card is an issued card; the intermediate entity between a card charge
// and its owning event.
type Card struct {
	ID         string
	ExternalID string
	EventID    string
	Last4      *string
	CreatedAt  time.Time
}

// RawRecord is the stored snapshot of one external record. Payload is
// kept verbatim for lineage; the engines only read the common columns.
type RawRecord struct {
	ID               string
	SourceType       hcbcode.Source
	SourceIdentifier string
	AmountCents      int64
	Date             time.Time
	Payload          map[string]any
	Declined         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Pending transaction lifecycle states. Declined is terminal.
const (
	StatePending  = "pending"
	StateSettled  = "settled"
	StateDeclined = "declined"
)

// PendingTransaction is a canonical pending-ledger row: money authorized
// but not yet final. Never deleted, retained for audit after settlement.
type PendingTransaction struct {
	ID               int64
	HcbCode          string
	EventID          *string
	SourceType       hcbcode.Source
	SourceIdentifier string
	AmountCents      int64
	Date             time.Time
	Memo             string
	State            string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CanonicalTransaction is a settled-ledger row: finalized money movement.
// PendingTransactionID back-references the pending row it fulfills, when
// one exists; the link is permanent once set.
type CanonicalTransaction struct {
	ID                   int64
	HcbCode              string
	EventID              *string
	SourceType           hcbcode.Source
	SourceIdentifier     string
	AmountCents          int64
	Date                 time.Time
	Memo                 string
	PendingTransactionID *int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
