package update

import (
	"fmt"
	"strings"

	goversion "github.com/hashicorp/go-version"

	apperrors "notepad/internal/errors"
)

// ErrInvalidVersion is wrapped by ParseVersion failures.
var ErrInvalidVersion = fmt.Errorf("invalid version format")

// NormalizeTag strips surrounding whitespace and one leading "v" or "V".
func NormalizeTag(tag string) string {
	tag = strings.TrimSpace(tag)
	if len(tag) > 1 && (tag[0] == 'v' || tag[0] == 'V') {
		return tag[1:]
	}
	return tag
}

// ParseVersion parses a dotted version with optional "v" prefix and optional
// pre-release or build suffix ("1.2", "v1.2.3", "1.2.0-beta.1").
func ParseVersion(s string) (*goversion.Version, error) {
	s = NormalizeTag(s)
	if s == "" {
		return nil, apperrors.New(apperrors.CodeParse, "empty version string", ErrInvalidVersion)
	}
	v, err := goversion.NewVersion(s)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeParse, fmt.Sprintf("parse version %q", s), fmt.Errorf("%w: %v", ErrInvalidVersion, err))
	}
	return v, nil
}

// CompareVersions returns -1, 0 or 1 as current is older than, equal to or
// newer than latest. Missing segments compare as zero and pre-releases sort
// before their release.
func CompareVersions(current, latest string) (int, error) {
	c, err := ParseVersion(current)
	if err != nil {
		return 0, err
	}
	l, err := ParseVersion(latest)
	if err != nil {
		return 0, err
	}
	return c.Compare(l), nil
}

// IsNewer reports whether latest is strictly newer than current.
// Either version failing to parse yields false.
func IsNewer(current, latest string) bool {
	cmp, err := CompareVersions(current, latest)
	if err != nil {
		return false
	}
	return cmp < 0
}
