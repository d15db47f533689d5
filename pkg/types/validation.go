package types

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Regexes compiled once at package initialization
var customerIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:@-]+$`)

const (
	maxCategoryLength = 50
	maxNameLength     = 100
	maxIssueLength    = 2000
	maxMessageLength  = 65536 // 64KB
	defaultName       = "Anonymous"
)

// ParseRole converts the wire value into a Role
func ParseRole(value string) (Role, error) {
	switch Role(value) {
	case RoleCustomer, RoleTechnician:
		return Role(value), nil
	default:
		return "", ErrInvalidRole
	}
}

// IsValidCustomerID checks the caller-supplied stable customer identity
func IsValidCustomerID(customerID string) bool {
	if len(customerID) < 1 || len(customerID) > 64 {
		return false
	}
	return customerIDRegex.MatchString(customerID)
}

// IsValidCategory checks a queue category key. The category set is open:
// any non-blank label up to 50 characters without control characters.
func IsValidCategory(category string) bool {
	if strings.TrimSpace(category) == "" || utf8.RuneCountInString(category) > maxCategoryLength {
		return false
	}
	return strings.IndexFunc(category, unicode.IsControl) < 0
}

// IsValidRoomID checks a room identifier supplied by a client
func IsValidRoomID(roomID string) bool {
	return len(roomID) >= 1 && len(roomID) <= 200
}

// Validate checks a queue entry and fills in defaults.
// An empty display name becomes "Anonymous".
func (e *QueueEntry) Validate() error {
	if !IsValidCustomerID(e.CustomerID) {
		return ErrInvalidCustomerID
	}
	if !IsValidCategory(e.Category) {
		return ErrInvalidCategory
	}

	e.DisplayName = strings.TrimSpace(e.DisplayName)
	if e.DisplayName == "" {
		e.DisplayName = defaultName
	}
	if utf8.RuneCountInString(e.DisplayName) > maxNameLength {
		return ErrNameTooLong
	}
	if utf8.RuneCountInString(e.IssueText) > maxIssueLength {
		return ErrIssueTooLong
	}
	return nil
}

// Validate checks a chat message before it is relayed
func (m *ChatMessage) Validate() error {
	if strings.TrimSpace(m.Text) == "" {
		return ErrEmptyMessage
	}
	if len(m.Text) > maxMessageLength {
		return ErrContentTooLarge
	}
	return nil
}
