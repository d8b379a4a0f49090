package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
// The tsvector expressions below match the GIN indexes created by migration
// 0007 so the planner can use them.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

const (
	quoteVector    = `to_tsvector('english', coalesce(q.title,'') || ' ' || coalesce(q.number,''))`
	customerVector = `to_tsvector('english', coalesce(c.name,'') || ' ' || coalesce(c.email,''))`
	catalogVector  = `to_tsvector('english', coalesce(ci.name,'') || ' ' || coalesce(ci.description,''))`
)

// Search executes a UNION ALL query across quotes, customers, and
// catalog_items using plainto_tsquery and ts_rank, with ts_headline for
// snippets. All sub-queries are scoped to the owner.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" || q.UserID == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text, q.UserID}

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultQuote {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'quote'::text AS type, q.id, q.title,
				ts_headline('english', coalesce(q.number, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				q.status,
				ts_rank(%s, %s) AS rank
			FROM quotes q
			WHERE q.user_id = $2 AND %s @@ %s`,
			tsQuery, quoteVector, tsQuery, quoteVector, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == ResultCustomer {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'customer'::text AS type, c.id, c.name AS title,
				ts_headline('english', coalesce(c.email, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				''::text AS status,
				ts_rank(%s, %s) AS rank
			FROM customers c
			WHERE c.user_id = $2 AND %s @@ %s`,
			tsQuery, customerVector, tsQuery, customerVector, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == ResultCatalog {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'catalog_item'::text AS type, ci.id, ci.name AS title,
				ts_headline('english', coalesce(ci.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				''::text AS status,
				ts_rank(%s, %s) AS rank
			FROM catalog_items ci
			WHERE ci.user_id = $2 AND %s @@ %s`,
			tsQuery, catalogVector, tsQuery, catalogVector, tsQuery))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, status
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.Status); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]QuoteRecord, []CustomerRecord, []CatalogRecord, error) {
	quoteRows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, number, title, status
		FROM quotes
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load quotes: %w", err)
	}
	defer quoteRows.Close()

	quotes := make([]QuoteRecord, 0)
	for quoteRows.Next() {
		var q QuoteRecord
		if err := quoteRows.Scan(&q.ID, &q.UserID, &q.Number, &q.Title, &q.Status); err != nil {
			return nil, nil, nil, fmt.Errorf("scan quote: %w", err)
		}
		quotes = append(quotes, q)
	}
	if err := quoteRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate quotes: %w", err)
	}

	customerRows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, name, email
		FROM customers
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load customers: %w", err)
	}
	defer customerRows.Close()

	customers := make([]CustomerRecord, 0)
	for customerRows.Next() {
		var c CustomerRecord
		if err := customerRows.Scan(&c.ID, &c.UserID, &c.Name, &c.Email); err != nil {
			return nil, nil, nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	if err := customerRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate customers: %w", err)
	}

	catalogRows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, name, description
		FROM catalog_items
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load catalog items: %w", err)
	}
	defer catalogRows.Close()

	catalog := make([]CatalogRecord, 0)
	for catalogRows.Next() {
		var c CatalogRecord
		if err := catalogRows.Scan(&c.ID, &c.UserID, &c.Name, &c.Description); err != nil {
			return nil, nil, nil, fmt.Errorf("scan catalog item: %w", err)
		}
		catalog = append(catalog, c)
	}
	if err := catalogRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate catalog items: %w", err)
	}

	return quotes, customers, catalog, nil
}
