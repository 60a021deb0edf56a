// Package shortid derives the public identifier embedded in beacon script
// URLs from a protected site's id.
//
// The encoding keeps only the first four bytes of the id, so it is lossy:
// decoding yields an id prefix and resolution must confirm candidates by
// re-encoding them.
package shortid

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/klirineu/offertrack-web/internal/domain"
)

// MaxLen is the longest encoding of a uint32 in base 36 ("1z141z3").
const MaxLen = 7

// PrefixLen is the number of hex characters of the id covered by an encoding.
const PrefixLen = 8

var (
	ErrInvalid  = errors.New("invalid short id")
	ErrNotFound = errors.New("short id not found")
)

// Encode renders the first four bytes of id as a lowercase base-36 string.
func Encode(id uuid.UUID) string {
	return strconv.FormatUint(uint64(binary.BigEndian.Uint32(id[:4])), 36)
}

// Valid reports whether s is syntactically a short id.
func Valid(s string) bool {
	if s == "" || len(s) > MaxLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'z') {
			return false
		}
	}
	return true
}

// Decode returns the lowercase hex prefix shared by every id that encodes to s.
func Decode(s string) (string, error) {
	if !Valid(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	n, err := strconv.ParseUint(s, 36, 32)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n))
	return hex.EncodeToString(b[:]), nil
}

// Resolve returns the first candidate, in id order, whose encoding equals s.
// Two sites sharing an id prefix encode identically; the lowest id wins.
func Resolve(s string, candidates []domain.ProtectedSite) (domain.ProtectedSite, error) {
	if !Valid(s) {
		return domain.ProtectedSite{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	sorted := make([]domain.ProtectedSite, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ID.String() < sorted[j].ID.String()
	})
	for _, c := range sorted {
		if Encode(c.ID) == s {
			return c, nil
		}
	}
	return domain.ProtectedSite{}, ErrNotFound
}
