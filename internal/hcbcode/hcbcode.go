// Package hcbcode derives the stable grouping key shared by every raw
// record that describes the same real-world money movement. The code is
// the join key between the pending and settled ledgers.
package hcbcode

import (
	"fmt"
	"strings"
)

// Prefix starts every code. The full form is HCB-<source code>-<discriminator>.
const Prefix = "HCB"

// Source identifies where a raw record was ingested from.
type Source string

const (
	SourceUnknown       Source = "unknown"
	SourceInvoice       Source = "invoice"
	SourceDonation      Source = "donation"
	SourceAchTransfer   Source = "ach_transfer"
	SourceOutgoingCheck Source = "outgoing_check"
	SourceCardCharge    Source = "card_charge"
	SourceBankFeed      Source = "bank_feed"
	SourceDisbursement  Source = "disbursement"
)

// sourceCodes is append-only. Codes are persisted inside HCB codes, so a
// mapping must never change once released.
var sourceCodes = map[Source]string{
	SourceUnknown:       "000",
	SourceInvoice:       "100",
	SourceDonation:      "200",
	SourceAchTransfer:   "300",
	SourceOutgoingCheck: "400",
	SourceDisbursement:  "500",
	SourceCardCharge:    "600",
	// Bank-feed lines carry no code of their own: referenced lines reuse
	// the pending side's code and unreferenced ones get a minted 000 code.
	SourceBankFeed: "000",
}

// Code returns the three-digit ledger code for a source, falling back to
// the unknown code for sources this build does not recognize.
func (s Source) Code() string {
	if c, ok := sourceCodes[s]; ok {
		return c
	}
	return sourceCodes[SourceUnknown]
}

// Valid reports whether s is a recognized source.
func (s Source) Valid() bool {
	_, ok := sourceCodes[s]
	return ok
}

// Derive computes the HCB code for a record that carries a natural
// cross-referenceable identifier. It is pure: identical inputs always
// produce the identical code.
func Derive(source Source, sourceIdentifier string) string {
	return fmt.Sprintf("%s-%s-%s", Prefix, source.Code(), strings.TrimSpace(sourceIdentifier))
}

// MintSequence builds a code for records with no natural identifier, such
// as bank-feed lines matched only by amount and memo heuristics. The
// caller supplies n from a durable sequence; linkage to other records is
// the settlement matcher's job, not the code's.
func MintSequence(n int64) string {
	return fmt.Sprintf("%s-%s-%d", Prefix, sourceCodes[SourceUnknown], n)
}
