package domain

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Team represents a merchant tenant of the gateway.
type Team struct {
	ID              uuid.UUID `json:"id"`
	Slug            string    `json:"team_slug"` // 3-50 chars, [A-Za-z0-9_-]+
	PasswordHash    string    `json:"-"`         // hex SHA-256 of the shared password, never exposed
	DisplayName     string    `json:"display_name"`
	Active          bool      `json:"active"`
	SuccessURL      string    `json:"success_url,omitempty"`
	FailURL         string    `json:"fail_url,omitempty"`
	NotificationURL string    `json:"notification_url,omitempty"`
	Currencies      []string  `json:"currencies"`
	MinAmount       int64     `json:"min_amount"` // per-transaction floor, minor units
	MaxAmount       int64     `json:"max_amount"` // per-transaction ceiling, minor units
	DailyLimit      int64     `json:"daily_limit"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

var teamSlugPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,50}$`)

// ValidSlug reports whether s is an acceptable TeamSlug.
func ValidSlug(s string) bool {
	return teamSlugPattern.MatchString(s)
}

// SupportsCurrency reports whether the team accepts the given ISO 4217 code.
// An empty list means any currency is accepted.
func (t *Team) SupportsCurrency(code string) bool {
	if len(t.Currencies) == 0 {
		return true
	}
	for _, c := range t.Currencies {
		if c == code {
			return true
		}
	}
	return false
}
