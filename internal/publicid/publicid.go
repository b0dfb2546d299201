// Package publicid issues the opaque identifiers handed to API
// consumers. They are a presentation-layer namespace: a prefix plus a
// hashid over the internal row id. The alphabet has no dashes or
// uppercase, so a public id can never be mistaken for an HCB code.
package publicid

import (
	"fmt"
	"strings"

	hashids "github.com/speps/go-hashids/v2"
)

// Prefixes, one per addressable kind. Stable once released: partners
// hold on to these ids.
const (
	PrefixTransaction = "txn"
	PrefixPending     = "pnd"
)

const (
	alphabet  = "abcdefghijkmnopqrstuvwxyz023456789"
	minLength = 5
)

// Codec encodes and decodes public ids. The salt is deployment-scoped
// configuration; changing it invalidates every id ever issued.
type Codec struct {
	h *hashids.HashID
}

func New(salt string) (*Codec, error) {
	h, err := hashids.NewWithData(&hashids.HashIDData{
		Alphabet:  alphabet,
		Salt:      salt,
		MinLength: minLength,
	})
	if err != nil {
		return nil, fmt.Errorf("hashid codec: %w", err)
	}
	return &Codec{h: h}, nil
}

// Encode builds "<prefix>_<hash>" for an internal row id.
func (c *Codec) Encode(prefix string, id int64) (string, error) {
	hash, err := c.h.EncodeInt64([]int64{id})
	if err != nil {
		return "", fmt.Errorf("encode public id: %w", err)
	}
	return prefix + "_" + hash, nil
}

// Decode validates the prefix and recovers the internal row id.
func (c *Codec) Decode(prefix, publicID string) (int64, error) {
	rest, ok := strings.CutPrefix(publicID, prefix+"_")
	if !ok {
		return 0, fmt.Errorf("public id %q is not a %s id", publicID, prefix)
	}
	ids, err := c.h.DecodeInt64WithError(rest)
	if err != nil {
		return 0, fmt.Errorf("decode public id %q: %w", publicID, err)
	}
	if len(ids) != 1 {
		return 0, fmt.Errorf("decode public id %q: unexpected shape", publicID)
	}
	return ids[0], nil
}
