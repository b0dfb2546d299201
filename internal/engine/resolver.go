package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/fiscalhost/ledger/internal/database/repository"
)

// disbursementSignature is the memo stamp the platform writes on
// internal transfers. Bank feeds occasionally mangle it, so matching
// falls back to an edit-distance check.
const disbursementSignature = "HCB DISBURSE"

// maxSignatureDistance is the normalized levenshtein ratio above which a
// memo no longer counts as a disbursement stamp.
const maxSignatureDistance = 0.25

// EventResolver assigns canonical rows to their owning event. Resolution
// is a fallback chain; nil means unmapped, which is a queue for manual
// assignment, not an error.
type EventResolver struct {
	Events *repository.EventRepo
}

// Resolve applies the chain: explicit event id in the payload, then the
// intermediate card's configured event, then disbursement memo parsing.
func (r *EventResolver) Resolve(ctx context.Context, payload map[string]any, memo string) (*repository.Event, error) {
	if id, ok := stringField(payload, "event_id"); ok {
		ev, err := r.Events.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve by event id %q: %w", id, err)
		}
		if ev != nil {
			return ev, nil
		}
	}

	if cardID, ok := stringField(payload, "card_id"); ok {
		card, err := r.Events.CardByExternalID(ctx, cardID)
		if err != nil {
			return nil, fmt.Errorf("resolve by card %q: %w", cardID, err)
		}
		if card != nil {
			ev, err := r.Events.Get(ctx, card.EventID)
			if err != nil {
				return nil, err
			}
			if ev != nil {
				return ev, nil
			}
		}
	}

	if slug, ok := disbursementSlug(memo); ok {
		ev, err := r.Events.GetBySlug(ctx, slug)
		if err != nil {
			return nil, fmt.Errorf("resolve by memo slug %q: %w", slug, err)
		}
		if ev != nil {
			return ev, nil
		}
	}

	return nil, nil
}

// disbursementSlug extracts the event slug from a disbursement memo of
// the form "HCB DISBURSE <slug> ...". The signature match tolerates
// small feed mangling via edit distance.
func disbursementSlug(memo string) (string, bool) {
	fields := strings.Fields(strings.ToUpper(strings.TrimSpace(memo)))
	if len(fields) < 3 {
		return "", false
	}
	stamp := fields[0] + " " + fields[1]
	if stamp != disbursementSignature && !nearSignature(stamp) {
		return "", false
	}
	// slug casing is canonicalized lower in the events table
	orig := strings.Fields(strings.TrimSpace(memo))
	return strings.ToLower(orig[2]), true
}

func nearSignature(stamp string) bool {
	dist := levenshtein.ComputeDistance(stamp, disbursementSignature)
	maxlen := len(stamp)
	if len(disbursementSignature) > maxlen {
		maxlen = len(disbursementSignature)
	}
	return float64(dist)/float64(maxlen) < maxSignatureDistance
}

func stringField(payload map[string]any, key string) (string, bool) {
	v, ok := payload[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return strings.TrimSpace(s), true
}
