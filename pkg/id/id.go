// Package id issues and parses the prefixed identifiers used by every
// ledger entity. An identifier is "<prefix>_<26-char body>" where the body
// is a ULID, so identifiers issued later sort lexicographically after
// identifiers issued earlier.
package id

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind identifies the entity type an identifier belongs to.
type Kind string

const (
	KindOrganization    Kind = "org"
	KindLedger          Kind = "lgr"
	KindAccount         Kind = "lac"
	KindAccountCategory Kind = "lat"
	KindTransaction     Kind = "ltr"
	KindEntry           Kind = "lte"
	KindSettlement      Kind = "las"
	KindBalanceMonitor  Kind = "lbm"
	KindStatement       Kind = "lst"
)

var (
	ErrMalformed     = errors.New("malformed identifier")
	ErrUnknownPrefix = errors.New("unknown identifier prefix")
	ErrWrongKind     = errors.New("identifier has wrong kind")
)

var kinds = map[Kind]struct{}{
	KindOrganization:    {},
	KindLedger:          {},
	KindAccount:         {},
	KindAccountCategory: {},
	KindTransaction:     {},
	KindEntry:           {},
	KindSettlement:      {},
	KindBalanceMonitor:  {},
	KindStatement:       {},
}

// IsValid reports whether k is a known entity kind.
func (k Kind) IsValid() bool {
	_, ok := kinds[k]
	return ok
}

// The monotonic reader is not safe for concurrent use; identifiers are
// issued from many request goroutines, so guard it.
var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New issues a fresh identifier of the given kind.
func New(k Kind) string {
	if !k.IsValid() {
		panic(fmt.Sprintf("id: unknown kind %q", k))
	}

	entropyMu.Lock()
	body := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	entropyMu.Unlock()

	return string(k) + "_" + body.String()
}

// Parse splits an identifier into its kind and body, validating both.
func Parse(s string) (Kind, string, error) {
	prefix, body, found := strings.Cut(s, "_")
	if !found || prefix == "" || body == "" {
		return "", "", fmt.Errorf("%w: %q", ErrMalformed, s)
	}

	k := Kind(prefix)
	if !k.IsValid() {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownPrefix, prefix)
	}

	if _, err := ulid.ParseStrict(body); err != nil {
		return "", "", fmt.Errorf("%w: invalid body in %q", ErrMalformed, s)
	}

	return k, body, nil
}

// Validate checks that s is a well-formed identifier of kind k.
func Validate(k Kind, s string) error {
	parsed, _, err := Parse(s)
	if err != nil {
		return err
	}
	if parsed != k {
		return fmt.Errorf("%w: expected %s, got %s", ErrWrongKind, k, parsed)
	}
	return nil
}
