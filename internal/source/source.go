// Package source defines the contract between the reconciliation core and
// the per-provider ingestion feeds. The core never talks to a provider's
// API; it only consumes already-parsed RawRecord payloads.
package source

import (
	"context"
	"time"

	"github.com/fiscalhost/ledger/internal/hcbcode"
)

// RawRecord is the common shape every ingestion source produces. The
// engines depend only on this contract; the payload carries the
// source-specific leftovers for lineage and debugging.
type RawRecord interface {
	SourceType() hcbcode.Source
	// SourceIdentifier is unique within the source. Re-ingesting the same
	// identifier updates the stored snapshot in place.
	SourceIdentifier() string
	AmountCents() int64
	// Date is the timestamp the source considers authoritative.
	Date() time.Time
	Payload() map[string]any
}

// Declinable is implemented by pending sources that can report a
// reversal or decline after the authorization was first seen.
type Declinable interface {
	Declined() bool
}

// Feed is one provider's incremental pull interface. Checkpoints are
// opaque to the core; repeated calls may overlap previously returned
// records and the caller must tolerate duplicates.
type Feed interface {
	Source() hcbcode.Source
	FetchNewRecords(ctx context.Context, sinceCheckpoint string) (records []RawRecord, nextCheckpoint string, err error)
}

// Record is the plain implementation of RawRecord used by feeds and by
// the raw-record store when rehydrating rows.
type Record struct {
	Source     hcbcode.Source
	Identifier string
	Amount     int64
	PostedAt   time.Time
	Extra      map[string]any
	IsDeclined bool
}

func (r Record) SourceType() hcbcode.Source { return r.Source }
func (r Record) SourceIdentifier() string   { return r.Identifier }
func (r Record) AmountCents() int64         { return r.Amount }
func (r Record) Date() time.Time            { return r.PostedAt }
func (r Record) Payload() map[string]any    { return r.Extra }
func (r Record) Declined() bool             { return r.IsDeclined }

// OutgoingCheck is a mailed check awaiting clearance.
type OutgoingCheck struct {
	CheckID     string
	Amount      int64
	MailedAt    time.Time
	RecipientID string
	Memo        string
	Voided      bool
}

func (c OutgoingCheck) SourceType() hcbcode.Source { return hcbcode.SourceOutgoingCheck }
func (c OutgoingCheck) SourceIdentifier() string   { return c.CheckID }
func (c OutgoingCheck) AmountCents() int64         { return c.Amount }
func (c OutgoingCheck) Date() time.Time            { return c.MailedAt }
func (c OutgoingCheck) Declined() bool             { return c.Voided }
func (c OutgoingCheck) Payload() map[string]any {
	return map[string]any{"recipient_id": c.RecipientID, "memo": c.Memo}
}

// AchTransfer is an ACH credit or debit submitted to the network.
type AchTransfer struct {
	TransferID  string
	Amount      int64
	ScheduledAt time.Time
	EventID     string
	Rejected    bool
}

func (a AchTransfer) SourceType() hcbcode.Source { return hcbcode.SourceAchTransfer }
func (a AchTransfer) SourceIdentifier() string   { return a.TransferID }
func (a AchTransfer) AmountCents() int64         { return a.Amount }
func (a AchTransfer) Date() time.Time            { return a.ScheduledAt }
func (a AchTransfer) Declined() bool             { return a.Rejected }
func (a AchTransfer) Payload() map[string]any {
	return map[string]any{"event_id": a.EventID}
}

// Invoice is a receivable that becomes pending money once sent.
type Invoice struct {
	InvoiceID string
	AmountDue int64
	CreatedAt time.Time
	EventID   string
}

func (i Invoice) SourceType() hcbcode.Source { return hcbcode.SourceInvoice }
func (i Invoice) SourceIdentifier() string   { return i.InvoiceID }
func (i Invoice) AmountCents() int64         { return i.AmountDue }
func (i Invoice) Date() time.Time            { return i.CreatedAt }
func (i Invoice) Payload() map[string]any {
	return map[string]any{"event_id": i.EventID}
}

// Donation is an inbound gift, pending until the processor settles it.
type Donation struct {
	DonationID string
	Amount     int64
	ReceivedAt time.Time
	EventID    string
	Refunded   bool
}

func (d Donation) SourceType() hcbcode.Source { return hcbcode.SourceDonation }
func (d Donation) SourceIdentifier() string   { return d.DonationID }
func (d Donation) AmountCents() int64         { return d.Amount }
func (d Donation) Date() time.Time            { return d.ReceivedAt }
func (d Donation) Declined() bool             { return d.Refunded }
func (d Donation) Payload() map[string]any {
	return map[string]any{"event_id": d.EventID}
}

// CardCharge is a card authorization from the card processor. CardID
// points at the issued card, which knows its owning event.
type CardCharge struct {
	ChargeID   string
	Amount     int64
	AuthedAt   time.Time
	CardID     string
	Merchant   string
	IsDeclined bool
}

func (c CardCharge) SourceType() hcbcode.Source { return hcbcode.SourceCardCharge }
func (c CardCharge) SourceIdentifier() string   { return c.ChargeID }
func (c CardCharge) AmountCents() int64         { return c.Amount }
func (c CardCharge) Date() time.Time            { return c.AuthedAt }
func (c CardCharge) Declined() bool             { return c.IsDeclined }
func (c CardCharge) Payload() map[string]any {
	return map[string]any{"card_id": c.CardID, "merchant": c.Merchant}
}

// BankFeedTransaction is a settled line from the bank feed. Reference
// keys, when the feed manages to attach them, point back at the source
// record the line fulfills.
type BankFeedTransaction struct {
	FeedID   string
	Amount   int64
	PostedAt time.Time
	Memo     string
	// Refs maps a reference kind (e.g. "check_id") to the upstream
	// identifier. Empty when the line could not be cross-referenced.
	Refs map[string]string
}

func (b BankFeedTransaction) SourceType() hcbcode.Source { return hcbcode.SourceBankFeed }
func (b BankFeedTransaction) SourceIdentifier() string   { return b.FeedID }
func (b BankFeedTransaction) AmountCents() int64         { return b.Amount }
func (b BankFeedTransaction) Date() time.Time            { return b.PostedAt }
func (b BankFeedTransaction) Payload() map[string]any {
	p := map[string]any{"memo": b.Memo}
	for k, v := range b.Refs {
		p[k] = v
	}
	return p
}

// Disbursement moves money between two events inside the platform.
type Disbursement struct {
	DisbursementID string
	Amount         int64
	ApprovedAt     time.Time
	ToEventID      string
	Memo           string
}

func (d Disbursement) SourceType() hcbcode.Source { return hcbcode.SourceDisbursement }
func (d Disbursement) SourceIdentifier() string   { return d.DisbursementID }
func (d Disbursement) AmountCents() int64         { return d.Amount }
func (d Disbursement) Date() time.Time            { return d.ApprovedAt }
func (d Disbursement) Payload() map[string]any {
	return map[string]any{"event_id": d.ToEventID, "memo": d.Memo}
}
