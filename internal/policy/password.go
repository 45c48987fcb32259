package policy

import (
	"regexp"

	"userhub/internal/models"
)

const (
	MinPasswordLength    = 8
	PasswordHistoryLimit = 5
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

type StrengthResult struct {
	Valid   bool
	Reasons []string
}

// ValidateStrength reports every rule the password breaks, in a fixed order.
// Letter and digit classes are ASCII only.
func ValidateStrength(password string) StrengthResult {
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case 'A' <= r && r <= 'Z':
			hasUpper = true
		case 'a' <= r && r <= 'z':
			hasLower = true
		case '0' <= r && r <= '9':
			hasDigit = true
		}
	}

	var reasons []string
	if len([]rune(password)) < MinPasswordLength {
		reasons = append(reasons, "Password must be at least 8 characters long")
	}
	if !hasUpper {
		reasons = append(reasons, "Password must contain at least one uppercase letter")
	}
	if !hasLower {
		reasons = append(reasons, "Password must contain at least one lowercase letter")
	}
	if !hasDigit {
		reasons = append(reasons, "Password must contain at least one number")
	}

	return StrengthResult{Valid: len(reasons) == 0, Reasons: reasons}
}

type Comparer interface {
	Compare(encodedHash string, password string) (bool, error)
}

// IsReused reports whether password matches any stored history hash. Entries
// that fail to parse are treated as non-matching.
func IsReused(password string, history []models.PasswordHistoryEntry, cmp Comparer) bool {
	for _, entry := range history {
		ok, err := cmp.Compare(entry.Hash, password)
		if err == nil && ok {
			return true
		}
	}
	return false
}

// PushHistory returns a new slice with entry first, truncated to the limit.
func PushHistory(history []models.PasswordHistoryEntry, entry models.PasswordHistoryEntry) []models.PasswordHistoryEntry {
	next := make([]models.PasswordHistoryEntry, 0, PasswordHistoryLimit)
	next = append(next, entry)
	for _, e := range history {
		if len(next) == PasswordHistoryLimit {
			break
		}
		next = append(next, e)
	}
	return next
}
