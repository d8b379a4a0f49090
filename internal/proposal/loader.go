package proposal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"quotely/api/internal/fetch"
	"quotely/api/internal/metrics"
	"quotely/api/internal/records"
)

// State is the loader's explicit state machine. Tests assert on transitions
// directly instead of inferring them from side effects.
type State string

const (
	StateIdle              State = "idle"
	StateProbing           State = "probing_transport"
	StateFetchingMetadata  State = "fetching_metadata"
	StateFetchingSecondary State = "fetching_secondary"
	StateFetchingSettings  State = "fetching_settings"
	StateComplete          State = "complete"
	StateError             State = "error"
)

var (
	// ErrNotFound means the share token matched no quote. Terminal and
	// user-visible, distinct from transport failure.
	ErrNotFound = errors.New("proposal not found")
	// ErrCancelled means the view was torn down while the load was running.
	ErrCancelled = errors.New("load cancelled")
)

// Source is one transport into the record store. records.Client (structured)
// and records.RawClient (raw HTTP) both satisfy it.
type Source interface {
	QuoteByShareToken(ctx context.Context, token string) (*records.QuoteRow, error)
	QuoteItemsByShareToken(ctx context.Context, token string) ([]records.LineItemRow, error)
	CustomerByID(ctx context.Context, id string) (*records.CustomerRow, error)
	VisualsByQuoteID(ctx context.Context, quoteID string) (*records.VisualsRow, error)
	CatalogItemsByUser(ctx context.Context, userID string) ([]records.CatalogItemRow, error)
	SettingsByUser(ctx context.Context, userID string) (*records.SettingsRow, error)
	Ping(ctx context.Context) error
}

// Sink receives committed state as each stage resolves, so presentation can
// render partial data instead of blocking on the slowest resource.
type Sink interface {
	StateChanged(from, to State)
	QuoteCommitted(q Quote)
	SettingsCommitted(s Settings)
}

// NopSink discards all commits.
type NopSink struct{}

func (NopSink) StateChanged(State, State) {}
func (NopSink) QuoteCommitted(Quote)      {}
func (NopSink) SettingsCommitted(Settings) {}

// CancelToken makes the teardown contract explicit: it is passed through the
// whole load and checked before every commit, because arbitrary time may
// have passed and a newer load may have superseded this one.
type CancelToken struct {
	cancelled atomic.Bool
}

func NewCancelToken() *CancelToken { return &CancelToken{} }

func (t *CancelToken) Cancel() {
	if t != nil {
		t.cancelled.Store(true)
	}
}

func (t *CancelToken) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}

// Loader drives one load: metadata first, then four best-effort parallel
// secondary fetches, then company settings. It must be constructed fresh for
// each distinct share token (with a fresh structured client) so in-flight
// requests from a previous token cannot bleed into the new load.
type Loader struct {
	primary     Source
	fallback    Source
	sink        Sink
	metrics     *metrics.Metrics
	softTimeout time.Duration

	mu       sync.Mutex
	state    State
	quote    Quote
	settings Settings
}

func NewLoader(primary, fallback Source, sink Sink, m *metrics.Metrics, softTimeout time.Duration) *Loader {
	if sink == nil {
		sink = NopSink{}
	}
	if softTimeout <= 0 {
		softTimeout = fetch.DefaultSoftTimeout
	}
	return &Loader{
		primary:     primary,
		fallback:    fallback,
		sink:        sink,
		metrics:     m,
		softTimeout: softTimeout,
		state:       StateIdle,
		settings:    DefaultSettings(),
	}
}

// State returns the current loader state.
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Load produces the merged proposal view model for a share token. The token
// is percent-decoded before use. Metadata is always committed before any
// secondary stage starts; secondary stages carry no ordering guarantee
// relative to each other.
func (l *Loader) Load(ctx context.Context, shareToken string, cancel *CancelToken) (Quote, Settings, error) {
	if cancel == nil {
		cancel = NewCancelToken()
	}
	if decoded, err := url.PathUnescape(shareToken); err == nil {
		shareToken = decoded
	}

	if l.metrics != nil {
		l.metrics.LoadsStarted.Inc()
	}
	started := time.Now()

	l.probe(ctx, cancel)

	meta, err := l.loadMetadata(ctx, shareToken, cancel)
	if err != nil {
		if !errors.Is(err, ErrCancelled) {
			if l.metrics != nil {
				l.metrics.LoadsFailed.Inc()
			}
			l.transition(nil, StateError)
		}
		return Quote{}, Settings{}, err
	}

	l.loadSecondary(ctx, shareToken, meta, cancel)

	l.loadSettings(ctx, meta.UserID, cancel)

	if cancel.Cancelled() {
		return Quote{}, Settings{}, ErrCancelled
	}
	l.transition(cancel, StateComplete)
	if l.metrics != nil {
		l.metrics.LoadsCompleted.Inc()
	}
	log.Printf("loader: token %s complete in %s", shareToken, time.Since(started).Round(time.Millisecond))

	l.mu.Lock()
	quote := l.quote.clone()
	settings := l.settings
	l.mu.Unlock()
	return quote, settings, nil
}

// probe decides nothing binding; it only records which transport looks
// healthy. Failures here are never fatal.
func (l *Loader) probe(ctx context.Context, cancel *CancelToken) {
	if !l.transition(cancel, StateProbing) {
		return
	}
	probeCtx, cancelProbe := context.WithTimeout(ctx, 2*time.Second)
	defer cancelProbe()
	if err := l.fallback.Ping(probeCtx); err != nil {
		log.Printf("loader: raw transport probe failed: %v", err)
		if err := l.primary.Ping(probeCtx); err != nil {
			log.Printf("loader: structured transport probe failed too: %v", err)
		}
	}
}

func (l *Loader) loadMetadata(ctx context.Context, shareToken string, cancel *CancelToken) (Quote, error) {
	if !l.transition(cancel, StateFetchingMetadata) {
		return Quote{}, ErrCancelled
	}

	row, transport, err := fetch.WithFallback(ctx, "quote-metadata", l.softTimeout, l.metrics,
		func(ctx context.Context) (*records.QuoteRow, error) { return l.primary.QuoteByShareToken(ctx, shareToken) },
		func(ctx context.Context) (*records.QuoteRow, error) { return l.fallback.QuoteByShareToken(ctx, shareToken) },
	)
	if err != nil {
		return Quote{}, fmt.Errorf("metadata fetch via %s: %w", transport, err)
	}
	if row == nil {
		return Quote{}, ErrNotFound
	}

	quote := Quote{
		ID:         row.ID,
		Number:     row.Number,
		UserID:     row.UserID,
		CustomerID: row.CustomerID,
		Title:      row.Title,
		Items:      NormalizeLineItems(row.Items),
		Subtotal:   row.Subtotal,
		Tax:        row.Tax,
		Total:      row.Total,
		Status:     row.Status,
		ShareToken: shareToken,
	}

	// Commit before the fan-out: this unblocks primary rendering.
	if !l.commitQuote(cancel, func(q *Quote) { *q = quote }) {
		return Quote{}, ErrCancelled
	}
	return quote, nil
}

// loadSecondary runs the four enrichment fetches in parallel. Each is
// individually best-effort: one failing must not abort the others, and none
// can move the loader to the error state.
func (l *Loader) loadSecondary(ctx context.Context, shareToken string, meta Quote, cancel *CancelToken) {
	if !l.transition(cancel, StateFetchingSecondary) {
		return
	}

	var wg sync.WaitGroup

	if meta.CustomerID != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.enrichCustomer(ctx, meta.CustomerID, cancel)
		}()
	}

	// Skipped entirely when metadata already carried items: refetching would
	// duplicate data already present.
	if len(meta.Items) == 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.refetchItems(ctx, shareToken, cancel)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		l.enrichVisuals(ctx, meta.ID, cancel)
	}()

	if meta.UserID != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.enrichFromCatalog(ctx, meta.UserID, cancel)
		}()
	}

	wg.Wait()
}

func (l *Loader) enrichCustomer(ctx context.Context, customerID string, cancel *CancelToken) {
	row, _, err := fetch.WithFallback(ctx, "customer", l.softTimeout, l.metrics,
		func(ctx context.Context) (*records.CustomerRow, error) { return l.primary.CustomerByID(ctx, customerID) },
		func(ctx context.Context) (*records.CustomerRow, error) { return l.fallback.CustomerByID(ctx, customerID) },
	)
	if err != nil {
		l.dropStage("customer", err)
		return
	}
	if row == nil {
		return
	}
	l.commitQuote(cancel, func(q *Quote) {
		q.CustomerName = row.Name
		q.CustomerFirstName = row.FirstName
		q.CustomerLastName = row.LastName
		q.CustomerEmail = row.Email
	})
}

func (l *Loader) refetchItems(ctx context.Context, shareToken string, cancel *CancelToken) {
	rows, _, err := fetch.WithFallback(ctx, "quote-items", l.softTimeout, l.metrics,
		func(ctx context.Context) ([]records.LineItemRow, error) {
			return l.primary.QuoteItemsByShareToken(ctx, shareToken)
		},
		func(ctx context.Context) ([]records.LineItemRow, error) {
			return l.fallback.QuoteItemsByShareToken(ctx, shareToken)
		},
	)
	if err != nil {
		l.dropStage("items", err)
		return
	}
	if len(rows) == 0 {
		return
	}
	items := NormalizeLineItems(rows)
	l.commitQuote(cancel, func(q *Quote) {
		if len(q.Items) == 0 {
			q.Items = items
		}
	})
}

func (l *Loader) enrichVisuals(ctx context.Context, quoteID string, cancel *CancelToken) {
	row, _, err := fetch.WithFallback(ctx, "visuals", l.softTimeout, l.metrics,
		func(ctx context.Context) (*records.VisualsRow, error) { return l.primary.VisualsByQuoteID(ctx, quoteID) },
		func(ctx context.Context) (*records.VisualsRow, error) { return l.fallback.VisualsByQuoteID(ctx, quoteID) },
	)
	if err != nil {
		l.dropStage("visuals", err)
		return
	}
	if row == nil {
		return
	}
	l.commitQuote(cancel, func(q *Quote) {
		q.Visuals = &Visuals{
			CoverImageURL:   row.CoverImageURL,
			SectionImageURL: row.SectionImageURL,
			ItemImages:      row.ItemImages,
		}
	})
}

func (l *Loader) enrichFromCatalog(ctx context.Context, userID string, cancel *CancelToken) {
	rows, _, err := fetch.WithFallback(ctx, "catalog", l.softTimeout, l.metrics,
		func(ctx context.Context) ([]records.CatalogItemRow, error) { return l.primary.CatalogItemsByUser(ctx, userID) },
		func(ctx context.Context) ([]records.CatalogItemRow, error) { return l.fallback.CatalogItemsByUser(ctx, userID) },
	)
	if err != nil {
		l.dropStage("catalog", err)
		return
	}
	if len(rows) == 0 {
		return
	}
	lookup := CatalogLookup(rows)
	l.commitQuote(cancel, func(q *Quote) {
		for i := range q.Items {
			q.Items[i] = MergeCatalog(q.Items[i], lookup)
		}
	})
}

func (l *Loader) loadSettings(ctx context.Context, userID string, cancel *CancelToken) {
	if !l.transition(cancel, StateFetchingSettings) {
		return
	}
	row, _, err := fetch.WithFallback(ctx, "settings", l.softTimeout, l.metrics,
		func(ctx context.Context) (*records.SettingsRow, error) { return l.primary.SettingsByUser(ctx, userID) },
		func(ctx context.Context) (*records.SettingsRow, error) { return l.fallback.SettingsByUser(ctx, userID) },
	)
	settings := DefaultSettings()
	if err != nil {
		// Absence of settings is not an error; render unbranded.
		l.dropStage("settings", err)
	} else if row != nil {
		settings = Settings{
			CompanyName: row.CompanyName,
			LogoURL:     row.LogoURL,
			ThemeColor:  firstNonEmpty(row.ThemeColor, settings.ThemeColor),
			Template:    firstNonEmpty(row.Template, settings.Template),
			FooterNote:  row.FooterNote,
		}
	}

	if cancel.Cancelled() {
		return
	}
	l.mu.Lock()
	l.settings = settings
	l.mu.Unlock()
	l.sink.SettingsCommitted(settings)
}

func (l *Loader) dropStage(stage string, err error) {
	l.metrics.StageDropped(stage)
	log.Printf("loader: %s stage dropped: %v", stage, err)
}

// commitQuote applies merge under the lock (read-current, merge, write) so
// overlapping secondary completions cannot lose updates, then publishes a
// snapshot. Nothing is written once the token is cancelled.
func (l *Loader) commitQuote(cancel *CancelToken, merge func(q *Quote)) bool {
	if cancel.Cancelled() {
		return false
	}
	l.mu.Lock()
	merge(&l.quote)
	snapshot := l.quote.clone()
	l.mu.Unlock()
	l.sink.QuoteCommitted(snapshot)
	return true
}

func (l *Loader) transition(cancel *CancelToken, to State) bool {
	if cancel.Cancelled() {
		return false
	}
	l.mu.Lock()
	from := l.state
	l.state = to
	l.mu.Unlock()
	l.sink.StateChanged(from, to)
	return true
}
