package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultQuote    ResultType = "quote"
	ResultCustomer ResultType = "customer"
	ResultCatalog  ResultType = "catalog_item"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
	Status  string     `json:"status,omitempty"`
}

// Query describes a search request. UserID is mandatory: all search is
// scoped to the requesting account.
type Query struct {
	Text       string
	UserID     string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// QuoteRecord is the data we index for a quote.
type QuoteRecord struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Number string `json:"number"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// CustomerRecord is the data we index for a customer.
type CustomerRecord struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

// CatalogRecord is the data we index for a reusable catalog item.
type CatalogRecord struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	Name        string `json:"name"`
	Description string `json:"description"`
}
