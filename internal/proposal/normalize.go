package proposal

import (
	"log"
	"math"
	"strings"

	"quotely/api/internal/records"
)

// NormalizeLineItem maps a raw persisted line-item record to the view-model
// shape, reconciling snake_case and camelCase variants of the same field.
// The camelCase value is preferred when both are populated; a populated value
// is never dropped in favor of an empty one. The function is idempotent:
// feeding its output back through produces the same item.
//
// This is the only place field-name fallbacks live; callers must not inline
// their own `image_url`-vs-`imageUrl` chains.
func NormalizeLineItem(raw records.LineItemRow) LineItem {
	item := LineItem{
		Name:                raw.Name,
		Description:         raw.Description,
		EnhancedDescription: firstNonEmpty(raw.EnhancedDescription, raw.EnhancedDescriptionSnake),
		Quantity:            raw.Quantity,
		Price:               raw.Price,
		ImageURL:            firstNonEmpty(raw.ImageURL, raw.ImageURLSnake),
		Unit:                firstNonEmpty(raw.Unit, raw.UnitSnake),
	}

	computed := round2(raw.Quantity * raw.Price)
	if raw.Total != nil {
		// Keep the server's value even when it disagrees with qty*price:
		// recomputing here would mask bad server state. Surface it instead.
		item.Total = *raw.Total
		if math.Abs(*raw.Total-computed) > 0.005 {
			log.Printf("normalize: item %q total %.2f != quantity*price %.2f", raw.Name, *raw.Total, computed)
		}
	} else {
		item.Total = computed
	}
	return item
}

// NormalizeLineItems normalizes a whole payload, tolerating nil.
func NormalizeLineItems(rows []records.LineItemRow) []LineItem {
	if len(rows) == 0 {
		return []LineItem{}
	}
	items := make([]LineItem, len(rows))
	for i, row := range rows {
		items[i] = NormalizeLineItem(row)
	}
	return items
}

// CatalogLookup builds the case-insensitive name index used for enrichment.
func CatalogLookup(rows []records.CatalogItemRow) map[string]CatalogEntry {
	lookup := make(map[string]CatalogEntry, len(rows))
	for _, row := range rows {
		name := strings.ToLower(strings.TrimSpace(row.Name))
		if name == "" {
			continue
		}
		lookup[name] = CatalogEntry{
			ImageURL:            row.ImageURL,
			EnhancedDescription: row.EnhancedDescription,
		}
	}
	return lookup
}

// MergeCatalog enriches an item from the catalog without overwriting values
// the item already carries from its own payload: the embedded value wins
// whenever present, and the catalog only fills blanks. A miss is not an
// error; the item keeps its embedded values.
func MergeCatalog(item LineItem, lookup map[string]CatalogEntry) LineItem {
	entry, ok := lookup[strings.ToLower(strings.TrimSpace(item.Name))]
	if !ok {
		return item
	}
	if item.ImageURL == "" && entry.ImageURL != "" {
		item.ImageURL = entry.ImageURL
	}
	if item.EnhancedDescription == "" && entry.EnhancedDescription != "" {
		item.EnhancedDescription = entry.EnhancedDescription
	}
	return item
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
