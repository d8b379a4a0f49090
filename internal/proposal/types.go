// Package proposal loads and shapes the public proposal view that clients
// open through a share token.
package proposal

import "time"

// LineItem is the camelCase view-model shape of one quote line.
type LineItem struct {
	Name                string  `json:"name"`
	Description         string  `json:"description"`
	EnhancedDescription string  `json:"enhancedDescription,omitempty"`
	Quantity            float64 `json:"quantity"`
	Price               float64 `json:"price"`
	Total               float64 `json:"total"`
	ImageURL            string  `json:"imageUrl,omitempty"`
	Unit                string  `json:"unit,omitempty"`
}

// Quote is the merged proposal view model. Secondary stages fill it in
// incrementally after the metadata commit.
type Quote struct {
	ID         string     `json:"id"`
	Number     string     `json:"number"`
	UserID     string     `json:"userId"`
	CustomerID string     `json:"customerId,omitempty"`
	Title      string     `json:"title"`
	Items      []LineItem `json:"items"`
	Subtotal   float64    `json:"subtotal"`
	Tax        float64    `json:"tax"`
	Total      float64    `json:"total"`
	Status     string     `json:"status"`
	ShareToken string     `json:"-"`

	CustomerName      string `json:"customerName,omitempty"`
	CustomerFirstName string `json:"customerFirstName,omitempty"`
	CustomerLastName  string `json:"customerLastName,omitempty"`
	CustomerEmail     string `json:"-"`

	Visuals *Visuals `json:"visuals,omitempty"`
}

func (q Quote) clone() Quote {
	out := q
	out.Items = make([]LineItem, len(q.Items))
	copy(out.Items, q.Items)
	if q.Visuals != nil {
		v := *q.Visuals
		v.ItemImages = make(map[string]string, len(q.Visuals.ItemImages))
		for k, val := range q.Visuals.ItemImages {
			v.ItemImages[k] = val
		}
		out.Visuals = &v
	}
	return out
}

// Visuals carries per-quote presentation overrides. Absence of a field means
// "use the computed default".
type Visuals struct {
	CoverImageURL   string            `json:"coverImageUrl,omitempty"`
	SectionImageURL string            `json:"sectionImageUrl,omitempty"`
	ItemImages      map[string]string `json:"itemImages,omitempty"`
}

// Settings controls branding for the proposal renderer.
type Settings struct {
	CompanyName string `json:"companyName"`
	LogoURL     string `json:"logoUrl,omitempty"`
	ThemeColor  string `json:"themeColor"`
	Template    string `json:"template"`
	FooterNote  string `json:"footerNote,omitempty"`
}

// DefaultSettings lets rendering proceed unbranded when the owner never
// configured a company profile.
func DefaultSettings() Settings {
	return Settings{
		CompanyName: "",
		ThemeColor:  "#1f2a44",
		Template:    "standard",
	}
}

// CatalogEntry is the per-name enrichment extracted from the owner's
// reusable item catalog.
type CatalogEntry struct {
	ImageURL            string
	EnhancedDescription string
}

// ViewerSession is the client-held proof that an anonymous viewer passed the
// OTP challenge for a specific share token.
type ViewerSession struct {
	Token      string    `json:"token"`
	ShareToken string    `json:"shareToken"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// ValidFor reports whether the session still covers the given share token.
func (s ViewerSession) ValidFor(shareToken string, now time.Time) bool {
	return s.Token != "" && s.ShareToken == shareToken && now.Before(s.ExpiresAt)
}
