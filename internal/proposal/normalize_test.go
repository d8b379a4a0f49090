package proposal

import (
	"testing"

	"quotely/api/internal/records"
)

func f64(v float64) *float64 { return &v }

func TestNormalizeLineItemSnakeCase(t *testing.T) {
	item := NormalizeLineItem(records.LineItemRow{
		Name:                     "Widget",
		Quantity:                 2,
		Price:                    10,
		ImageURLSnake:            "http://x/img.png",
		EnhancedDescriptionSnake: "Premium widget",
		UnitSnake:                "pcs",
	})

	if item.ImageURL != "http://x/img.png" {
		t.Errorf("ImageURL = %q", item.ImageURL)
	}
	if item.EnhancedDescription != "Premium widget" {
		t.Errorf("EnhancedDescription = %q", item.EnhancedDescription)
	}
	if item.Unit != "pcs" {
		t.Errorf("Unit = %q", item.Unit)
	}
	if item.Total != 20 {
		t.Errorf("Total = %v, want 20 (computed)", item.Total)
	}
}

func TestNormalizeLineItemPrefersCamelCase(t *testing.T) {
	item := NormalizeLineItem(records.LineItemRow{
		Name:          "Widget",
		ImageURL:      "http://camel/img.png",
		ImageURLSnake: "http://snake/img.png",
	})
	if item.ImageURL != "http://camel/img.png" {
		t.Errorf("ImageURL = %q, want camelCase value preferred", item.ImageURL)
	}
}

func TestNormalizeLineItemNeverDropsPopulatedField(t *testing.T) {
	// camelCase key present but empty must not shadow the populated
	// snake_case value.
	item := NormalizeLineItem(records.LineItemRow{
		Name:          "Widget",
		ImageURL:      "",
		ImageURLSnake: "http://snake/img.png",
	})
	if item.ImageURL != "http://snake/img.png" {
		t.Errorf("ImageURL = %q, populated snake_case value was dropped", item.ImageURL)
	}
}

func TestNormalizeLineItemKeepsServerTotal(t *testing.T) {
	// A total that disagrees with quantity*price is surfaced as-is, not
	// recomputed away.
	item := NormalizeLineItem(records.LineItemRow{
		Name:     "Widget",
		Quantity: 2,
		Price:    10,
		Total:    f64(25),
	})
	if item.Total != 25 {
		t.Errorf("Total = %v, want the raw server value 25", item.Total)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	raw := records.LineItemRow{
		Name:                     "Widget",
		Description:              "A widget",
		Quantity:                 2,
		Price:                    10,
		ImageURLSnake:            "http://x/img.png",
		EnhancedDescriptionSnake: "Premium widget",
	}

	once := NormalizeLineItem(raw)
	twice := NormalizeLineItem(records.LineItemRow{
		Name:                once.Name,
		Description:         once.Description,
		Quantity:            once.Quantity,
		Price:               once.Price,
		Total:               f64(once.Total),
		ImageURL:            once.ImageURL,
		EnhancedDescription: once.EnhancedDescription,
		Unit:                once.Unit,
	})
	if once != twice {
		t.Errorf("normalize(normalize(x)) = %+v, want %+v", twice, once)
	}
}

func TestMergeCatalogFillsBlanksOnly(t *testing.T) {
	lookup := CatalogLookup([]records.CatalogItemRow{
		{Name: "Widget", ImageURL: "http://y/new.png", EnhancedDescription: "From catalog"},
	})

	// Embedded value wins when both present.
	withImage := MergeCatalog(LineItem{Name: "Widget", ImageURL: "http://x/img.png"}, lookup)
	if withImage.ImageURL != "http://x/img.png" {
		t.Errorf("ImageURL = %q, embedded value must win over catalog", withImage.ImageURL)
	}
	if withImage.EnhancedDescription != "From catalog" {
		t.Errorf("EnhancedDescription = %q, catalog must fill the blank", withImage.EnhancedDescription)
	}

	// Catalog fills when the item has nothing.
	bare := MergeCatalog(LineItem{Name: "widget"}, lookup)
	if bare.ImageURL != "http://y/new.png" {
		t.Errorf("ImageURL = %q, want catalog value for case-insensitive match", bare.ImageURL)
	}
}

func TestMergeCatalogEmptyEntryIsNonDestructive(t *testing.T) {
	lookup := CatalogLookup([]records.CatalogItemRow{
		{Name: "Widget"}, // catalog entry with no data
	})
	item := MergeCatalog(LineItem{Name: "Widget", ImageURL: "A"}, lookup)
	if item.ImageURL != "A" {
		t.Errorf("ImageURL = %q, empty catalog value must not blank a populated field", item.ImageURL)
	}
}

func TestMergeCatalogMissKeepsItem(t *testing.T) {
	lookup := CatalogLookup([]records.CatalogItemRow{{Name: "Sprocket"}})
	item := LineItem{Name: "Widget", ImageURL: "A", EnhancedDescription: "B"}
	if got := MergeCatalog(item, lookup); got != item {
		t.Errorf("miss changed the item: %+v", got)
	}
}
