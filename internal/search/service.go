package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexQuote indexes a quote (fire-and-forget to Meilisearch).
func (s *Service) IndexQuote(q QuoteRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexQuote(q); err != nil {
			log.Printf("search: index quote %s: %v", q.ID, err)
		}
	}()
}

// IndexCustomer indexes a customer (fire-and-forget to Meilisearch).
func (s *Service) IndexCustomer(c CustomerRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexCustomer(c); err != nil {
			log.Printf("search: index customer %s: %v", c.ID, err)
		}
	}()
}

// IndexCatalogItem indexes a catalog item (fire-and-forget to Meilisearch).
func (s *Service) IndexCatalogItem(c CatalogRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexCatalogItem(c); err != nil {
			log.Printf("search: index catalog item %s: %v", c.ID, err)
		}
	}()
}

// DeleteQuote removes a quote from the search index (fire-and-forget).
func (s *Service) DeleteQuote(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteQuote(id); err != nil {
			log.Printf("search: delete quote %s: %v", id, err)
		}
	}()
}

// DeleteCustomer removes a customer from the search index (fire-and-forget).
func (s *Service) DeleteCustomer(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteCustomer(id); err != nil {
			log.Printf("search: delete customer %s: %v", id, err)
		}
	}()
}

// DeleteCatalogItem removes a catalog item from the search index (fire-and-forget).
func (s *Service) DeleteCatalogItem(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteCatalogItem(id); err != nil {
			log.Printf("search: delete catalog item %s: %v", id, err)
		}
	}()
}

// ReindexAllFromPG reindexes all searchable entities from PostgreSQL into Meilisearch.
// Called during startup if Meilisearch is healthy.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	quotes, customers, catalog, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if len(quotes) > 0 {
		if err := s.meili.IndexQuotes(quotes); err != nil {
			log.Printf("search: reindex quotes: %v", err)
		}
	}
	if len(customers) > 0 {
		if err := s.meili.IndexCustomers(customers); err != nil {
			log.Printf("search: reindex customers: %v", err)
		}
	}
	if len(catalog) > 0 {
		if err := s.meili.IndexCatalogItems(catalog); err != nil {
			log.Printf("search: reindex catalog: %v", err)
		}
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
