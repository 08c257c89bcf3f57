package registry

import (
	"regexp"
	"strings"

	"github.com/metahub-io/metahub-server/internal/common/apperrors"
)

// Codenames are machine identifiers: lowercase, starting with a letter, at
// most 64 characters. They key JSON payloads and derived physical names, so
// the charset is deliberately narrow.
var codenameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// NormalizeCodename lowercases the input and folds whitespace, hyphens, and
// dots into underscores. Validation still applies to the result; characters
// outside the allowed set are not stripped silently.
func NormalizeCodename(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	name = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '-', '.':
			return '_'
		}
		return r
	}, name)
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	return strings.Trim(name, "_")
}

// ValidateCodename checks the normalized form against the allow-list
// pattern.
func ValidateCodename(name string) apperrors.Error {
	if !codenameRegex.MatchString(name) {
		return ErrInvalidCodename.Msg("codename must match " + codenameRegex.String())
	}
	return nil
}
