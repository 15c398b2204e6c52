// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import "strings"

// ═══════════════════════════════════════════════════════════════════════════
// Email Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Email is a trimmed, lower-cased address.
type Email string

// NormalizeEmail trims and lower-cases an address without validating it.
func NormalizeEmail(raw string) Email {
	return Email(strings.ToLower(strings.TrimSpace(raw)))
}

// String returns the string representation.
func (e Email) String() string {
	return string(e)
}

// ═══════════════════════════════════════════════════════════════════════════
// Person Name Value Object
// ═══════════════════════════════════════════════════════════════════════════

// DefaultLastName fills the profile when a display name has a single word.
const DefaultLastName = "User"

// PersonName is a first/last pair as stored on profile rows.
type PersonName struct {
	First string
	Last  string
}

// SplitDisplayName turns "Ada King Lovelace" into {Ada, "King Lovelace"}.
// A single word gets DefaultLastName.
func SplitDisplayName(display string) PersonName {
	parts := strings.Fields(display)
	switch len(parts) {
	case 0:
		return PersonName{Last: DefaultLastName}
	case 1:
		return PersonName{First: parts[0], Last: DefaultLastName}
	default:
		return PersonName{First: parts[0], Last: strings.Join(parts[1:], " ")}
	}
}
