package store

import (
	"encoding/json"
	"time"
)

type User struct {
	ID                    string
	Email                 string
	DisplayName           string
	PasswordHash          string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Customer struct {
	ID        string
	UserID    string
	Name      string
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Address   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// QuoteItem is the persisted shape of one line. It is stored inside the
// quote's JSONB items column with snake_case keys; Total is a pointer because
// older rows predate server-side totals.
type QuoteItem struct {
	Name                string   `json:"name"`
	Description         string   `json:"description,omitempty"`
	EnhancedDescription string   `json:"enhanced_description,omitempty"`
	Quantity            float64  `json:"quantity"`
	Price               float64  `json:"price"`
	Total               *float64 `json:"total,omitempty"`
	ImageURL            string   `json:"image_url,omitempty"`
	Unit                string   `json:"unit_label,omitempty"`
}

type Quote struct {
	ID         string
	UserID     string
	CustomerID string
	Number     string
	Title      string
	Status     string
	Items      []QuoteItem
	Subtotal   float64
	TaxRate    float64
	Tax        float64
	Total      float64
	ShareToken string
	ValidUntil *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type CatalogItem struct {
	ID                  string
	UserID              string
	Name                string
	Description         string
	EnhancedDescription string
	Unit                string
	Price               float64
	ImageURL            string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ProposalVisuals carries per-quote presentation assets keyed one-to-one on
// the quote.
type ProposalVisuals struct {
	QuoteID         string
	CoverImageURL   string
	SectionImageURL string
	ItemImages      map[string]string
	UpdatedAt       time.Time
}

type CompanySettings struct {
	UserID      string
	CompanyName string
	LogoURL     string
	ThemeColor  string
	Template    string
	FooterNote  string
	UpdatedAt   time.Time
}

// ProposalEvent is one row of the public-surface audit trail: views,
// accepts, declines, viewer comments, telemetry pings.
type ProposalEvent struct {
	ID         int64
	QuoteID    string
	ShareToken string
	EventType  string
	Actor      string
	Payload    json.RawMessage
	CreatedAt  time.Time
}

// EventSummary aggregates proposal_events per quote for the dashboard.
type EventSummary struct {
	QuoteID    string
	Views      int
	Accepts    int
	Declines   int
	Comments   int
	LastViewAt *time.Time
}
