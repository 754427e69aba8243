package restore

import (
	"fmt"
	"strings"

	"github.com/yndnr/docsnap/internal/core/domain"
)

// MergeStrategy decides how an incoming document interacts with a stored
// document of the same identity.
type MergeStrategy int

const (
	// MergeSkip never overwrites: existing identities are left untouched.
	MergeSkip MergeStrategy = iota
	// MergeReplace always upserts the incoming document.
	MergeReplace
)

// ParseMergeStrategy parses "skip" or "replace". Empty means skip.
func ParseMergeStrategy(s string) (MergeStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return MergeSkip, nil
	case "replace":
		return MergeReplace, nil
	default:
		return MergeSkip, domain.ErrInvalidArgument.WithDetails(fmt.Sprintf("unknown merge strategy %q (want skip or replace)", s))
	}
}

// String returns the wire name of the strategy.
func (s MergeStrategy) String() string {
	switch s {
	case MergeSkip:
		return "skip"
	case MergeReplace:
		return "replace"
	default:
		return fmt.Sprintf("MergeStrategy(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s MergeStrategy) MarshalText() ([]byte, error) {
	if s != MergeSkip && s != MergeReplace {
		return nil, fmt.Errorf("invalid merge strategy %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *MergeStrategy) UnmarshalText(text []byte) error {
	v, err := ParseMergeStrategy(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
