package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"quotely/api/internal/ai"
	"quotely/api/internal/auth"
	"quotely/api/internal/authpw"
	"quotely/api/internal/config"
	"quotely/api/internal/email"
	"quotely/api/internal/metrics"
	"quotely/api/internal/proposal"
	"quotely/api/internal/records"
	"quotely/api/internal/requestpool"
	"quotely/api/internal/search"
	"quotely/api/internal/storage"
	"quotely/api/internal/store"
	"quotely/api/internal/util"
	"quotely/api/internal/viewer"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	JTI          string
	ExpiresAt    time.Time
}

type CustomerInput struct {
	Name      string `json:"name"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
}

type QuoteItemInput struct {
	Name                string  `json:"name"`
	Description         string  `json:"description"`
	EnhancedDescription string  `json:"enhancedDescription"`
	Quantity            float64 `json:"quantity"`
	Price               float64 `json:"price"`
	ImageURL            string  `json:"imageUrl"`
	Unit                string  `json:"unit"`
}

type QuoteInput struct {
	CustomerID string           `json:"customerId"`
	Number     string           `json:"number"`
	Title      string           `json:"title"`
	Status     string           `json:"status"`
	TaxRate    float64          `json:"taxRate"`
	ValidUntil *time.Time       `json:"validUntil"`
	Items      []QuoteItemInput `json:"items"`
}

type CatalogItemInput struct {
	Name                string  `json:"name"`
	Description         string  `json:"description"`
	EnhancedDescription string  `json:"enhancedDescription"`
	Unit                string  `json:"unit"`
	Price               float64 `json:"price"`
	ImageURL            string  `json:"imageUrl"`
}

type SettingsInput struct {
	CompanyName string `json:"companyName"`
	LogoURL     string `json:"logoUrl"`
	ThemeColor  string `json:"themeColor"`
	Template    string `json:"template"`
	FooterNote  string `json:"footerNote"`
}

type VisualsInput struct {
	CoverImageURL   string            `json:"coverImageUrl"`
	SectionImageURL string            `json:"sectionImageUrl"`
	ItemImages      map[string]string `json:"itemImages"`
}

type TelemetryEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Owners may move a quote between these states; accepted and declined are
// reachable only through the share flow.
var ownerQuoteStatuses = map[string]struct{}{
	"draft":   {},
	"sent":    {},
	"expired": {},
}

var telemetryEventTypes = map[string]struct{}{
	"view":    {},
	"scroll":  {},
	"section": {},
}

type dataStore interface {
	Ping(ctx context.Context) error
	GetUserByID(context.Context, string) (store.User, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)

	ListCustomers(context.Context, string) ([]store.Customer, error)
	GetCustomer(context.Context, string, string) (store.Customer, error)
	InsertCustomer(context.Context, store.Customer) error
	UpdateCustomer(context.Context, store.Customer) error
	DeleteCustomer(context.Context, string, string) error

	ListQuotes(context.Context, string) ([]store.Quote, error)
	GetQuote(context.Context, string, string) (store.Quote, error)
	GetQuoteByShareToken(context.Context, string) (store.Quote, error)
	QuoteOwnerByShareToken(context.Context, string) (string, error)
	InsertQuote(context.Context, store.Quote) error
	UpdateQuote(context.Context, store.Quote) error
	UpdateQuoteStatus(context.Context, string, string) error
	SettleQuoteStatus(context.Context, string, string) (bool, error)
	SetQuoteShareToken(context.Context, string, string, string) error
	DeleteQuote(context.Context, string, string) error

	ListCatalogItems(context.Context, string) ([]store.CatalogItem, error)
	GetCatalogItem(context.Context, string, string) (store.CatalogItem, error)
	InsertCatalogItem(context.Context, store.CatalogItem) error
	UpdateCatalogItem(context.Context, store.CatalogItem) error
	DeleteCatalogItem(context.Context, string, string) error

	GetVisuals(context.Context, string) (store.ProposalVisuals, error)
	UpsertVisuals(context.Context, store.ProposalVisuals) error
	GetSettings(context.Context, string) (store.CompanySettings, error)
	UpsertSettings(context.Context, store.CompanySettings) error

	InsertProposalEvent(context.Context, store.ProposalEvent) error
	ListQuoteEvents(context.Context, string, int) ([]store.ProposalEvent, error)
	EventSummaries(context.Context, string) ([]store.EventSummary, error)
}

// RefreshStore holds refresh sessions. Redis in production, the Postgres
// store when Redis is not configured.
type RefreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// Deps collects the optional collaborators around the Postgres store. Nil
// fields disable the corresponding feature (except Sessions, which falls
// back to Postgres).
type Deps struct {
	Sessions   RefreshStore
	Auth       *authpw.Service
	Email      *email.Service
	Search     *search.Service
	Rewriter   *ai.Rewriter
	Objects    storage.ObjectStore
	Challenges *viewer.ChallengeStore
	Metrics    *metrics.Metrics
}

type Service struct {
	cfg        config.Config
	store      dataStore
	sessions   RefreshStore
	authpw     *authpw.Service
	email      *email.Service
	search     *search.Service
	rewriter   *ai.Rewriter
	objects    storage.ObjectStore
	challenges *viewer.ChallengeStore
	metrics    *metrics.Metrics
	resolver   *proposal.Resolver
}

func New(cfg config.Config, dataStore *store.PostgresStore, deps Deps) *Service {
	sessions := deps.Sessions
	if sessions == nil {
		sessions = dataStore
	}
	svc := &Service{
		cfg:        cfg,
		store:      dataStore,
		sessions:   sessions,
		authpw:     deps.Auth,
		email:      deps.Email,
		search:     deps.Search,
		rewriter:   deps.Rewriter,
		objects:    deps.Objects,
		challenges: deps.Challenges,
		metrics:    deps.Metrics,
	}
	svc.resolver = proposal.NewResolver(svc.store.QuoteOwnerByShareToken)
	return svc
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

// SendVerificationEmail delivers the verify-account link. Failures are logged,
// not surfaced, so sign-up does not hinge on SMTP.
func (s *Service) SendVerificationEmail(to, userName, token string) {
	if !s.SMTPConfigured() || token == "" {
		return
	}
	verifyURL := strings.TrimRight(s.cfg.AppBaseURL, "/") + "/verify-email?token=" + token
	if err := s.email.SendVerificationEmail(to, userName, verifyURL); err != nil {
		log.Printf("auth: send verification email failed: %v", err)
	}
}

// SendPasswordResetEmail delivers the reset link, logging failures the same way.
func (s *Service) SendPasswordResetEmail(to, token string) {
	if !s.SMTPConfigured() || token == "" {
		return
	}
	resetURL := strings.TrimRight(s.cfg.AppBaseURL, "/") + "/reset-password?token=" + token
	if err := s.email.SendPasswordResetEmail(to, "", resetURL); err != nil {
		log.Printf("auth: send password reset email failed: %v", err)
	}
}

// Sessions

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	found, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	// The session store only guarantees the user ID; re-read the full record
	// so the new access token carries the current name and email.
	user, err := s.store.GetUserByID(ctx, found.ID)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   user.ID,
		Name:  user.DisplayName,
		Email: user.Email,
		Role:  auth.RoleOwner,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	if claims.Role != auth.RoleOwner {
		return Session{}, auth.ErrInvalidToken
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// Customers

func (s *Service) ListCustomers(ctx context.Context, userID string) (map[string]any, error) {
	customers, err := s.store.ListCustomers(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(customers))
	for _, c := range customers {
		items = append(items, customerView(c))
	}
	return map[string]any{"customers": items}, nil
}

func (s *Service) GetCustomer(ctx context.Context, userID, customerID string) (map[string]any, error) {
	c, err := s.store.GetCustomer(ctx, userID, customerID)
	if err != nil {
		return nil, err
	}
	return customerView(c), nil
}

func (s *Service) CreateCustomer(ctx context.Context, userID string, input CustomerInput) (map[string]any, error) {
	c, err := customerFromInput(userID, util.NewID("cus"), input)
	if err != nil {
		return nil, err
	}
	if err := s.store.InsertCustomer(ctx, c); err != nil {
		return nil, err
	}
	s.indexCustomer(c)
	return customerView(c), nil
}

func (s *Service) UpdateCustomer(ctx context.Context, userID, customerID string, input CustomerInput) (map[string]any, error) {
	if _, err := s.store.GetCustomer(ctx, userID, customerID); err != nil {
		return nil, err
	}
	c, err := customerFromInput(userID, customerID, input)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateCustomer(ctx, c); err != nil {
		return nil, err
	}
	s.indexCustomer(c)
	return customerView(c), nil
}

func (s *Service) DeleteCustomer(ctx context.Context, userID, customerID string) error {
	if err := s.store.DeleteCustomer(ctx, userID, customerID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteCustomer(customerID)
	}
	return nil
}

func customerFromInput(userID, customerID string, input CustomerInput) (store.Customer, error) {
	name := strings.TrimSpace(input.Name)
	first := strings.TrimSpace(input.FirstName)
	last := strings.TrimSpace(input.LastName)
	if name == "" {
		name = strings.TrimSpace(first + " " + last)
	}
	if name == "" {
		return store.Customer{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "customer name is required", nil)
	}
	return store.Customer{
		ID:        customerID,
		UserID:    userID,
		Name:      name,
		FirstName: first,
		LastName:  last,
		Email:     strings.TrimSpace(strings.ToLower(input.Email)),
		Phone:     strings.TrimSpace(input.Phone),
		Address:   strings.TrimSpace(input.Address),
	}, nil
}

func (s *Service) indexCustomer(c store.Customer) {
	if s.search == nil {
		return
	}
	s.search.IndexCustomer(search.CustomerRecord{
		ID:     c.ID,
		UserID: c.UserID,
		Name:   c.Name,
		Email:  c.Email,
	})
}

// Quotes

func (s *Service) ListQuotes(ctx context.Context, userID string) (map[string]any, error) {
	quotes, err := s.store.ListQuotes(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(quotes))
	for _, q := range quotes {
		items = append(items, quoteView(q))
	}
	return map[string]any{"quotes": items}, nil
}

func (s *Service) GetQuote(ctx context.Context, userID, quoteID string) (map[string]any, error) {
	q, err := s.store.GetQuote(ctx, userID, quoteID)
	if err != nil {
		return nil, err
	}
	return quoteView(q), nil
}

func (s *Service) CreateQuote(ctx context.Context, userID string, input QuoteInput) (map[string]any, error) {
	q, err := s.quoteFromInput(ctx, userID, util.NewID("qte"), "draft", input)
	if err != nil {
		return nil, err
	}
	if q.Number == "" {
		q.Number = "Q-" + strings.ToUpper(util.NewID("")[:6])
	}
	if err := s.store.InsertQuote(ctx, q); err != nil {
		return nil, err
	}
	s.indexQuote(q)
	return quoteView(q), nil
}

func (s *Service) UpdateQuote(ctx context.Context, userID, quoteID string, input QuoteInput) (map[string]any, error) {
	existing, err := s.store.GetQuote(ctx, userID, quoteID)
	if err != nil {
		return nil, err
	}
	q, err := s.quoteFromInput(ctx, userID, quoteID, existing.Status, input)
	if err != nil {
		return nil, err
	}
	if q.Number == "" {
		q.Number = existing.Number
	}
	if err := s.store.UpdateQuote(ctx, q); err != nil {
		return nil, err
	}
	q.ShareToken = existing.ShareToken
	s.indexQuote(q)
	return quoteView(q), nil
}

func (s *Service) DeleteQuote(ctx context.Context, userID, quoteID string) error {
	if err := s.store.DeleteQuote(ctx, userID, quoteID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteQuote(quoteID)
	}
	return nil
}

func (s *Service) quoteFromInput(ctx context.Context, userID, quoteID, currentStatus string, input QuoteInput) (store.Quote, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return store.Quote{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	status := strings.ToLower(strings.TrimSpace(input.Status))
	if status == "" {
		status = currentStatus
	}
	if status != currentStatus {
		if _, ok := ownerQuoteStatuses[status]; !ok {
			return store.Quote{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status must be one of draft, sent, expired", nil)
		}
	}
	if input.TaxRate < 0 || input.TaxRate > 1 {
		return store.Quote{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "taxRate must be between 0 and 1", nil)
	}
	customerID := strings.TrimSpace(input.CustomerID)
	if customerID != "" {
		if _, err := s.store.GetCustomer(ctx, userID, customerID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.Quote{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "customer not found", nil)
			}
			return store.Quote{}, err
		}
	}

	items := make([]store.QuoteItem, 0, len(input.Items))
	subtotal := 0.0
	for i, raw := range input.Items {
		name := strings.TrimSpace(raw.Name)
		if name == "" {
			return store.Quote{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("items[%d].name is required", i), nil)
		}
		if raw.Quantity < 0 || raw.Price < 0 {
			return store.Quote{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("items[%d] quantity and price must not be negative", i), nil)
		}
		total := raw.Quantity * raw.Price
		items = append(items, store.QuoteItem{
			Name:                name,
			Description:         strings.TrimSpace(raw.Description),
			EnhancedDescription: strings.TrimSpace(raw.EnhancedDescription),
			Quantity:            raw.Quantity,
			Price:               raw.Price,
			Total:               &total,
			ImageURL:            strings.TrimSpace(raw.ImageURL),
			Unit:                strings.TrimSpace(raw.Unit),
		})
		subtotal += total
	}
	tax := subtotal * input.TaxRate

	return store.Quote{
		ID:         quoteID,
		UserID:     userID,
		CustomerID: customerID,
		Number:     strings.TrimSpace(input.Number),
		Title:      title,
		Status:     status,
		Items:      items,
		Subtotal:   subtotal,
		TaxRate:    input.TaxRate,
		Tax:        tax,
		Total:      subtotal + tax,
		ValidUntil: input.ValidUntil,
	}, nil
}

func (s *Service) indexQuote(q store.Quote) {
	if s.search == nil {
		return
	}
	s.search.IndexQuote(search.QuoteRecord{
		ID:     q.ID,
		UserID: q.UserID,
		Number: q.Number,
		Title:  q.Title,
		Status: q.Status,
	})
}

// ShareQuote mints (or reuses) the share token for a quote and optionally
// emails the link to the customer.
func (s *Service) ShareQuote(ctx context.Context, userID, quoteID, notifyEmail string) (map[string]any, error) {
	q, err := s.store.GetQuote(ctx, userID, quoteID)
	if err != nil {
		return nil, err
	}
	token := q.ShareToken
	if token == "" {
		token = util.NewID("shr")
		if err := s.store.SetQuoteShareToken(ctx, userID, quoteID, token); err != nil {
			return nil, err
		}
	}
	if q.Status == "draft" {
		if err := s.store.UpdateQuoteStatus(ctx, quoteID, "sent"); err != nil {
			return nil, err
		}
	}
	shareURL := strings.TrimRight(s.cfg.AppBaseURL, "/") + "/share/" + token

	emailSent := false
	notifyEmail = strings.TrimSpace(notifyEmail)
	if notifyEmail != "" && s.SMTPConfigured() {
		customerName := ""
		if q.CustomerID != "" {
			if customer, err := s.store.GetCustomer(ctx, userID, q.CustomerID); err == nil {
				customerName = firstNonBlank(customer.FirstName, customer.Name)
			}
		}
		companyName := ""
		if settings, err := s.store.GetSettings(ctx, userID); err == nil {
			companyName = settings.CompanyName
		}
		if err := s.email.SendShareLinkEmail(notifyEmail, customerName, companyName, shareURL); err != nil {
			log.Printf("share: send link for quote %s failed: %v", quoteID, err)
		} else {
			emailSent = true
		}
	}

	return map[string]any{
		"shareToken": token,
		"shareUrl":   shareURL,
		"emailSent":  emailSent,
	}, nil
}

func (s *Service) QuoteEvents(ctx context.Context, userID, quoteID string, limit int) (map[string]any, error) {
	if _, err := s.store.GetQuote(ctx, userID, quoteID); err != nil {
		return nil, err
	}
	events, err := s.store.ListQuoteEvents(ctx, quoteID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(events))
	for _, e := range events {
		items = append(items, eventView(e))
	}
	return map[string]any{"quoteId": quoteID, "events": items}, nil
}

func (s *Service) Analytics(ctx context.Context, userID string) (map[string]any, error) {
	summaries, err := s.store.EventSummaries(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(summaries))
	for _, es := range summaries {
		item := map[string]any{
			"quoteId":  es.QuoteID,
			"views":    es.Views,
			"accepts":  es.Accepts,
			"declines": es.Declines,
			"comments": es.Comments,
		}
		if es.LastViewAt != nil {
			item["lastViewAt"] = es.LastViewAt.Format(time.RFC3339)
		}
		items = append(items, item)
	}
	return map[string]any{"quotes": items}, nil
}

// Catalog

func (s *Service) ListCatalogItems(ctx context.Context, userID string) (map[string]any, error) {
	catalog, err := s.store.ListCatalogItems(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(catalog))
	for _, item := range catalog {
		items = append(items, catalogView(item))
	}
	return map[string]any{"items": items}, nil
}

func (s *Service) CreateCatalogItem(ctx context.Context, userID string, input CatalogItemInput) (map[string]any, error) {
	item, err := catalogFromInput(userID, util.NewID("cat"), input)
	if err != nil {
		return nil, err
	}
	if err := s.store.InsertCatalogItem(ctx, item); err != nil {
		return nil, err
	}
	s.indexCatalogItem(item)
	return catalogView(item), nil
}

func (s *Service) UpdateCatalogItem(ctx context.Context, userID, itemID string, input CatalogItemInput) (map[string]any, error) {
	if _, err := s.store.GetCatalogItem(ctx, userID, itemID); err != nil {
		return nil, err
	}
	item, err := catalogFromInput(userID, itemID, input)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateCatalogItem(ctx, item); err != nil {
		return nil, err
	}
	s.indexCatalogItem(item)
	return catalogView(item), nil
}

func (s *Service) DeleteCatalogItem(ctx context.Context, userID, itemID string) error {
	if err := s.store.DeleteCatalogItem(ctx, userID, itemID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteCatalogItem(itemID)
	}
	return nil
}

func catalogFromInput(userID, itemID string, input CatalogItemInput) (store.CatalogItem, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return store.CatalogItem{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	if input.Price < 0 {
		return store.CatalogItem{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "price must not be negative", nil)
	}
	return store.CatalogItem{
		ID:                  itemID,
		UserID:              userID,
		Name:                name,
		Description:         strings.TrimSpace(input.Description),
		EnhancedDescription: strings.TrimSpace(input.EnhancedDescription),
		Unit:                strings.TrimSpace(input.Unit),
		Price:               input.Price,
		ImageURL:            strings.TrimSpace(input.ImageURL),
	}, nil
}

func (s *Service) indexCatalogItem(item store.CatalogItem) {
	if s.search == nil {
		return
	}
	s.search.IndexCatalogItem(search.CatalogRecord{
		ID:          item.ID,
		UserID:      item.UserID,
		Name:        item.Name,
		Description: item.Description,
	})
}

// Settings and visuals

func (s *Service) GetSettings(ctx context.Context, userID string) (map[string]any, error) {
	settings, err := s.store.GetSettings(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		defaults := proposal.DefaultSettings()
		settings = store.CompanySettings{
			UserID:     userID,
			ThemeColor: defaults.ThemeColor,
			Template:   defaults.Template,
		}
	} else if err != nil {
		return nil, err
	}
	return settingsView(settings), nil
}

func (s *Service) SaveSettings(ctx context.Context, userID string, input SettingsInput) (map[string]any, error) {
	defaults := proposal.DefaultSettings()
	settings := store.CompanySettings{
		UserID:      userID,
		CompanyName: strings.TrimSpace(input.CompanyName),
		LogoURL:     strings.TrimSpace(input.LogoURL),
		ThemeColor:  firstNonBlank(strings.TrimSpace(input.ThemeColor), defaults.ThemeColor),
		Template:    firstNonBlank(strings.TrimSpace(input.Template), defaults.Template),
		FooterNote:  strings.TrimSpace(input.FooterNote),
	}
	if err := s.store.UpsertSettings(ctx, settings); err != nil {
		return nil, err
	}
	return settingsView(settings), nil
}

func (s *Service) GetVisuals(ctx context.Context, userID, quoteID string) (map[string]any, error) {
	if _, err := s.store.GetQuote(ctx, userID, quoteID); err != nil {
		return nil, err
	}
	visuals, err := s.store.GetVisuals(ctx, quoteID)
	if errors.Is(err, sql.ErrNoRows) {
		visuals = store.ProposalVisuals{QuoteID: quoteID}
	} else if err != nil {
		return nil, err
	}
	return visualsView(visuals), nil
}

func (s *Service) SaveVisuals(ctx context.Context, userID, quoteID string, input VisualsInput) (map[string]any, error) {
	if _, err := s.store.GetQuote(ctx, userID, quoteID); err != nil {
		return nil, err
	}
	visuals := store.ProposalVisuals{
		QuoteID:         quoteID,
		CoverImageURL:   strings.TrimSpace(input.CoverImageURL),
		SectionImageURL: strings.TrimSpace(input.SectionImageURL),
		ItemImages:      input.ItemImages,
	}
	if err := s.store.UpsertVisuals(ctx, visuals); err != nil {
		return nil, err
	}
	return visualsView(visuals), nil
}

var uploadKinds = map[string]struct{}{
	"logo":    {},
	"cover":   {},
	"section": {},
	"item":    {},
}

// UploadImage stores a proposal asset and returns a presigned URL good for a
// day. Callers persist the URL through the visuals or settings endpoints.
func (s *Service) UploadImage(ctx context.Context, userID, kind, filename, contentType string, size int64, body io.Reader) (map[string]any, error) {
	if s.objects == nil {
		return nil, domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Object storage not configured", nil)
	}
	kind = strings.ToLower(strings.TrimSpace(kind))
	if _, ok := uploadKinds[kind]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "kind must be one of logo, cover, section, item", nil)
	}
	if size <= 0 || size > 10<<20 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "image must be between 1 byte and 10 MiB", nil)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content type must be an image", nil)
	}
	key := storage.AssetKey(userID, kind, filename)
	if err := s.objects.Put(ctx, key, body, size, contentType); err != nil {
		return nil, err
	}
	url, err := s.objects.PresignGet(ctx, key, 24*time.Hour)
	if err != nil {
		return nil, err
	}
	return map[string]any{"key": key, "url": url}, nil
}

// Search and AI

func (s *Service) Search(ctx context.Context, userID, text, filterType string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(search.Query{
		Text:       text,
		UserID:     userID,
		FilterType: search.ResultType(filterType),
		Limit:      limit,
		Offset:     offset,
	}), nil
}

func (s *Service) Rewrite(ctx context.Context, input ai.RewriteInput) (map[string]any, error) {
	if !s.rewriter.Configured() {
		return nil, domainError(http.StatusServiceUnavailable, "AI_UNAVAILABLE", "AI rewriting not configured", nil)
	}
	text, err := s.rewriter.Rewrite(ctx, input)
	if err != nil {
		return nil, domainError(http.StatusBadGateway, "AI_FAILED", err.Error(), nil)
	}
	return map[string]any{"text": text}, nil
}

// Public share surface

// ResolveAccess checks that the share token exists and decides how the
// requester may proceed: straight to the proposal or through the challenge.
func (s *Service) ResolveAccess(ctx context.Context, shareToken string, ownerBypass bool, ownerUserID, viewerToken string) (proposal.Decision, error) {
	owner, err := s.store.QuoteOwnerByShareToken(ctx, shareToken)
	if err != nil {
		return "", err
	}
	if owner == "" {
		return "", sql.ErrNoRows
	}

	var viewerSession *proposal.ViewerSession
	if viewerToken != "" {
		if vs, err := viewer.VerifySession([]byte(s.cfg.JWTSecret), viewerToken, shareToken); err == nil {
			viewerSession = &vs
		}
	}

	return s.resolver.Resolve(ctx, proposal.AccessRequest{
		ShareToken:  shareToken,
		OwnerBypass: ownerBypass,
		UserID:      ownerUserID,
		OwnerID:     owner,
		Session:     viewerSession,
	}), nil
}

// ViewerActor returns the masked email behind a verified viewer token, empty
// when the token does not cover this share.
func (s *Service) ViewerActor(shareToken, viewerToken string) string {
	if viewerToken == "" {
		return ""
	}
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), viewerToken)
	if err != nil || claims.Role != auth.RoleViewer || claims.Sub != shareToken {
		return ""
	}
	return claims.Name
}

// newLoader builds a fresh loader per load so no pooled request state bleeds
// across share tokens.
func (s *Service) newLoader() *proposal.Loader {
	pool := requestpool.New()
	primary := records.NewClient(s.cfg.DataAPIURL, s.cfg.DataAPIKey, pool, s.cfg.PoolTimeout)
	fallback := records.NewRawClient(s.cfg.DataAPIURL, s.cfg.DataAPIKey)
	return proposal.NewLoader(primary, fallback, proposal.NopSink{}, s.metrics, s.cfg.SoftTimeout)
}

func (s *Service) LoadProposal(ctx context.Context, shareToken, actor string) (map[string]any, error) {
	started := time.Now()
	loader := s.newLoader()
	quote, settings, err := loader.Load(ctx, shareToken, proposal.NewCancelToken())
	if err != nil {
		if errors.Is(err, proposal.ErrNotFound) {
			return nil, sql.ErrNoRows
		}
		log.Printf("proposal: load for token %s failed after %dms: %v", shareToken, time.Since(started).Milliseconds(), err)
		return nil, domainError(http.StatusBadGateway, "LOAD_FAILED", "Proposal could not be loaded", nil)
	}

	if err := s.store.InsertProposalEvent(ctx, store.ProposalEvent{
		QuoteID:    quote.ID,
		ShareToken: shareToken,
		EventType:  "view",
		Actor:      actor,
	}); err != nil {
		log.Printf("proposal: record view for token %s failed: %v", shareToken, err)
	}

	return map[string]any{
		"quote":    quote,
		"settings": settings,
	}, nil
}

func (s *Service) RequestViewerCode(ctx context.Context, shareToken, emailAddr string) (map[string]any, error) {
	if s.challenges == nil {
		return nil, domainError(http.StatusServiceUnavailable, "CHALLENGE_UNAVAILABLE", "Viewer challenges not configured", nil)
	}
	owner, err := s.store.QuoteOwnerByShareToken(ctx, shareToken)
	if err != nil {
		return nil, err
	}
	if owner == "" {
		return nil, sql.ErrNoRows
	}

	challenge, err := s.challenges.Create(ctx, shareToken, emailAddr)
	if err != nil {
		return nil, err
	}

	validMinutes := int(time.Until(challenge.ExpiresAt).Round(time.Minute) / time.Minute)
	if s.SMTPConfigured() {
		if err := s.email.SendViewerCodeEmail(challenge.Email, challenge.Code, validMinutes); err != nil {
			log.Printf("challenge: send code for token %s failed: %v", shareToken, err)
			return nil, domainError(http.StatusBadGateway, "EMAIL_FAILED", "Could not send the verification code", nil)
		}
	}

	response := map[string]any{
		"challengeId": challenge.ID,
		"email":       viewer.MaskEmail(challenge.Email),
		"expiresAt":   challenge.ExpiresAt.Format(time.RFC3339),
		"resendIn":    int(challenge.ResendIn / time.Second),
	}
	// Dev bypass: expose the code when no SMTP transport is configured.
	if !s.SMTPConfigured() {
		response["devCode"] = challenge.Code
	}
	return response, nil
}

func (s *Service) VerifyViewerCode(ctx context.Context, shareToken, challengeID, code string) (map[string]any, error) {
	if s.challenges == nil {
		return nil, domainError(http.StatusServiceUnavailable, "CHALLENGE_UNAVAILABLE", "Viewer challenges not configured", nil)
	}
	verifiedEmail, err := s.challenges.Verify(ctx, challengeID, shareToken, code)
	if err != nil {
		return nil, err
	}
	session, err := viewer.IssueSession([]byte(s.cfg.JWTSecret), shareToken, verifiedEmail, s.cfg.ViewerTokenTTL)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"viewerToken": session.Token,
		"shareToken":  session.ShareToken,
		"expiresAt":   session.ExpiresAt.Format(time.RFC3339),
	}, nil
}

// RespondToProposal applies a viewer's accept or decline decision. A quote
// answers at most once.
func (s *Service) RespondToProposal(ctx context.Context, shareToken, decision, actor, note string) (map[string]any, error) {
	if decision != "accepted" && decision != "declined" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "decision must be accepted or declined", nil)
	}
	quote, err := s.store.GetQuoteByShareToken(ctx, shareToken)
	if err != nil {
		return nil, err
	}
	if quote.Status == "accepted" || quote.Status == "declined" {
		return nil, domainError(http.StatusConflict, "ALREADY_RESPONDED", "This proposal has already been answered", map[string]any{"status": quote.Status})
	}
	settled, err := s.store.SettleQuoteStatus(ctx, quote.ID, decision)
	if err != nil {
		return nil, err
	}
	if !settled {
		// Another decision landed between the read above and the update.
		return nil, domainError(http.StatusConflict, "ALREADY_RESPONDED", "This proposal has already been answered", nil)
	}

	eventType := "accept"
	if decision == "declined" {
		eventType = "decline"
	}
	payload := json.RawMessage(`{}`)
	if note = strings.TrimSpace(note); note != "" {
		encoded, err := json.Marshal(map[string]string{"note": note})
		if err == nil {
			payload = encoded
		}
	}
	if err := s.store.InsertProposalEvent(ctx, store.ProposalEvent{
		QuoteID:    quote.ID,
		ShareToken: shareToken,
		EventType:  eventType,
		Actor:      actor,
		Payload:    payload,
	}); err != nil {
		log.Printf("proposal: record %s for token %s failed: %v", eventType, shareToken, err)
	}

	quote.Status = decision
	s.indexQuote(quote)
	return map[string]any{"status": decision}, nil
}

func (s *Service) CommentOnProposal(ctx context.Context, shareToken, actor, body string) (map[string]any, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "comment body is required", nil)
	}
	if len(body) > 2000 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "comment is too long", nil)
	}
	quote, err := s.store.GetQuoteByShareToken(ctx, shareToken)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return nil, err
	}
	if err := s.store.InsertProposalEvent(ctx, store.ProposalEvent{
		QuoteID:    quote.ID,
		ShareToken: shareToken,
		EventType:  "comment",
		Actor:      actor,
		Payload:    payload,
	}); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

// IngestTelemetry records behavioral events from the proposal viewer. Unknown
// event types are skipped, not rejected: clients ship ahead of the server.
func (s *Service) IngestTelemetry(ctx context.Context, shareToken, actor string, events []TelemetryEvent) (map[string]any, error) {
	quote, err := s.store.GetQuoteByShareToken(ctx, shareToken)
	if err != nil {
		return nil, err
	}
	accepted := 0
	for _, event := range events {
		eventType := strings.ToLower(strings.TrimSpace(event.Type))
		if _, ok := telemetryEventTypes[eventType]; !ok {
			continue
		}
		if err := s.store.InsertProposalEvent(ctx, store.ProposalEvent{
			QuoteID:    quote.ID,
			ShareToken: shareToken,
			EventType:  eventType,
			Actor:      actor,
			Payload:    event.Payload,
		}); err != nil {
			log.Printf("telemetry: record %s for token %s failed: %v", eventType, shareToken, err)
			continue
		}
		accepted++
	}
	return map[string]any{"accepted": accepted}, nil
}

// Views

func customerView(c store.Customer) map[string]any {
	return map[string]any{
		"id":        c.ID,
		"name":      c.Name,
		"firstName": c.FirstName,
		"lastName":  c.LastName,
		"email":     c.Email,
		"phone":     c.Phone,
		"address":   c.Address,
	}
}

func quoteView(q store.Quote) map[string]any {
	items := make([]map[string]any, 0, len(q.Items))
	for _, item := range q.Items {
		view := map[string]any{
			"name":     item.Name,
			"quantity": item.Quantity,
			"price":    item.Price,
		}
		if item.Total != nil {
			view["total"] = *item.Total
		}
		if item.Description != "" {
			view["description"] = item.Description
		}
		if item.EnhancedDescription != "" {
			view["enhancedDescription"] = item.EnhancedDescription
		}
		if item.ImageURL != "" {
			view["imageUrl"] = item.ImageURL
		}
		if item.Unit != "" {
			view["unit"] = item.Unit
		}
		items = append(items, view)
	}
	view := map[string]any{
		"id":         q.ID,
		"number":     q.Number,
		"customerId": nilIfEmpty(q.CustomerID),
		"title":      q.Title,
		"status":     q.Status,
		"items":      items,
		"subtotal":   q.Subtotal,
		"taxRate":    q.TaxRate,
		"tax":        q.Tax,
		"total":      q.Total,
		"shareToken": nilIfEmpty(q.ShareToken),
	}
	if q.ValidUntil != nil {
		view["validUntil"] = q.ValidUntil.Format(time.RFC3339)
	}
	return view
}

func catalogView(item store.CatalogItem) map[string]any {
	return map[string]any{
		"id":                  item.ID,
		"name":                item.Name,
		"description":         item.Description,
		"enhancedDescription": item.EnhancedDescription,
		"unit":                item.Unit,
		"price":               item.Price,
		"imageUrl":            item.ImageURL,
	}
}

func settingsView(settings store.CompanySettings) map[string]any {
	return map[string]any{
		"companyName": settings.CompanyName,
		"logoUrl":     settings.LogoURL,
		"themeColor":  settings.ThemeColor,
		"template":    settings.Template,
		"footerNote":  settings.FooterNote,
	}
}

func visualsView(visuals store.ProposalVisuals) map[string]any {
	itemImages := visuals.ItemImages
	if itemImages == nil {
		itemImages = map[string]string{}
	}
	return map[string]any{
		"quoteId":         visuals.QuoteID,
		"coverImageUrl":   visuals.CoverImageURL,
		"sectionImageUrl": visuals.SectionImageURL,
		"itemImages":      itemImages,
	}
}

func eventView(e store.ProposalEvent) map[string]any {
	view := map[string]any{
		"id":        e.ID,
		"type":      e.EventType,
		"actor":     e.Actor,
		"createdAt": e.CreatedAt.Format(time.RFC3339),
	}
	if len(e.Payload) > 0 && string(e.Payload) != "{}" {
		view["payload"] = e.Payload
	}
	return view
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func nilIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
