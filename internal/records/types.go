package records

import "encoding/json"

// Rows mirror the record-store payloads, which use the persisted snake_case
// field names. Line items additionally arrive with camelCase variants when a
// payload has already passed through the app once; the proposal normalizer
// reconciles the two.

type QuoteRow struct {
	ID         string          `json:"id"`
	Number     string          `json:"number"`
	UserID     string          `json:"user_id"`
	CustomerID string          `json:"customer_id"`
	Title      string          `json:"title"`
	Items      []LineItemRow   `json:"items"`
	Subtotal   float64         `json:"subtotal"`
	Tax        float64         `json:"tax"`
	Total      float64         `json:"total"`
	Status     string          `json:"status"`
	ShareToken string          `json:"share_token"`
	CreatedAt  string          `json:"created_at"`
	UpdatedAt  string          `json:"updated_at"`
	Raw        json.RawMessage `json:"-"`
}

type LineItemRow struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Quantity    float64  `json:"quantity"`
	Price       float64  `json:"price"`
	Total       *float64 `json:"total"`

	ImageURL      string `json:"imageUrl"`
	ImageURLSnake string `json:"image_url"`

	EnhancedDescription      string `json:"enhancedDescription"`
	EnhancedDescriptionSnake string `json:"enhanced_description"`

	Unit      string `json:"unit"`
	UnitSnake string `json:"unit_label"`
}

type CustomerRow struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type VisualsRow struct {
	QuoteID         string            `json:"quote_id"`
	CoverImageURL   string            `json:"cover_image_url"`
	SectionImageURL string            `json:"section_image_url"`
	ItemImages      map[string]string `json:"item_images"`
}

type CatalogItemRow struct {
	ID                  string `json:"id"`
	UserID              string `json:"user_id"`
	Name                string `json:"name"`
	ImageURL            string `json:"image_url"`
	EnhancedDescription string `json:"enhanced_description"`
}

type SettingsRow struct {
	UserID      string `json:"user_id"`
	CompanyName string `json:"company_name"`
	LogoURL     string `json:"logo_url"`
	ThemeColor  string `json:"theme_color"`
	Template    string `json:"template"`
	FooterNote  string `json:"footer_note"`
}

// ownerRow supports the minimal single-column ownership lookup.
type ownerRow struct {
	UserID string `json:"user_id"`
}
