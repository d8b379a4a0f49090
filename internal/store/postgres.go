package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- users ----

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, password_hash, is_email_verified, verification_token)
		VALUES ($1, LOWER($2), $3, $4, $5, $6)
	`, user.ID, user.Email, user.DisplayName, user.PasswordHash, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, is_email_verified, created_at, updated_at
		FROM users WHERE email = LOWER($1)
	`, email).Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.IsEmailVerified, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, is_email_verified, created_at, updated_at
		FROM users WHERE id = $1
	`, userID).Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.IsEmailVerified, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("set verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token='', verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email rows: %w", err)
	}
	if affected == 0 {
		return errors.New("invalid or expired verification token")
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark reset used: %w", err)
	}
	return nil
}

// ---- refresh sessions and token revocation ----

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.email, u.display_name, u.is_email_verified
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.Email, &user.DisplayName, &user.IsEmailVerified)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ---- customers ----

const customerColumns = `id, user_id, name, first_name, last_name, email, phone, address, created_at, updated_at`

func scanCustomer(row interface{ Scan(...any) error }) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Address, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *PostgresStore) ListCustomers(ctx context.Context, userID string) ([]Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+customerColumns+` FROM customers WHERE user_id=$1 ORDER BY name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	items := make([]Customer, 0)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customers: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetCustomer(ctx context.Context, userID, customerID string) (Customer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+customerColumns+` FROM customers WHERE id=$1 AND user_id=$2
	`, customerID, userID)
	return scanCustomer(row)
}

func (s *PostgresStore) InsertCustomer(ctx context.Context, c Customer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, user_id, name, first_name, last_name, email, phone, address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, c.ID, c.UserID, c.Name, c.FirstName, c.LastName, c.Email, c.Phone, c.Address)
	if err != nil {
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateCustomer(ctx context.Context, c Customer) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET name=$3, first_name=$4, last_name=$5, email=$6, phone=$7, address=$8, updated_at=NOW()
		WHERE id=$1 AND user_id=$2
	`, c.ID, c.UserID, c.Name, c.FirstName, c.LastName, c.Email, c.Phone, c.Address)
	if err != nil {
		return fmt.Errorf("update customer: %w", err)
	}
	return requireRow(result, "customer")
}

func (s *PostgresStore) DeleteCustomer(ctx context.Context, userID, customerID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id=$1 AND user_id=$2`, customerID, userID)
	if err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	return requireRow(result, "customer")
}

// ---- quotes ----

const quoteColumns = `id, user_id, COALESCE(customer_id,''), number, title, status, items, subtotal, tax_rate, tax, total, COALESCE(share_token,''), valid_until, created_at, updated_at`

func scanQuote(row interface{ Scan(...any) error }) (Quote, error) {
	var q Quote
	var items []byte
	err := row.Scan(&q.ID, &q.UserID, &q.CustomerID, &q.Number, &q.Title, &q.Status, &items,
		&q.Subtotal, &q.TaxRate, &q.Tax, &q.Total, &q.ShareToken, &q.ValidUntil, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return Quote{}, err
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &q.Items); err != nil {
			return Quote{}, fmt.Errorf("decode quote items: %w", err)
		}
	}
	return q, nil
}

func marshalItems(items []QuoteItem) ([]byte, error) {
	if items == nil {
		items = []QuoteItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode quote items: %w", err)
	}
	return raw, nil
}

func (s *PostgresStore) ListQuotes(ctx context.Context, userID string) ([]Quote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+quoteColumns+` FROM quotes WHERE user_id=$1 ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	defer rows.Close()

	items := make([]Quote, 0)
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		items = append(items, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quotes: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetQuote(ctx context.Context, userID, quoteID string) (Quote, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+quoteColumns+` FROM quotes WHERE id=$1 AND user_id=$2
	`, quoteID, userID)
	return scanQuote(row)
}

func (s *PostgresStore) GetQuoteByShareToken(ctx context.Context, shareToken string) (Quote, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+quoteColumns+` FROM quotes WHERE share_token=$1
	`, shareToken)
	return scanQuote(row)
}

// QuoteOwnerByShareToken is the minimal lookup used for owner-bypass access
// checks on the public surface.
func (s *PostgresStore) QuoteOwnerByShareToken(ctx context.Context, shareToken string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM quotes WHERE share_token=$1`, shareToken).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) InsertQuote(ctx context.Context, q Quote) error {
	raw, err := marshalItems(q.Items)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO quotes (id, user_id, customer_id, number, title, status, items, subtotal, tax_rate, tax, total, valid_until)
		VALUES ($1, $2, NULLIF($3,''), $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, q.ID, q.UserID, q.CustomerID, q.Number, q.Title, q.Status, raw, q.Subtotal, q.TaxRate, q.Tax, q.Total, q.ValidUntil)
	if err != nil {
		return fmt.Errorf("insert quote: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateQuote(ctx context.Context, q Quote) error {
	raw, err := marshalItems(q.Items)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE quotes
		SET customer_id=NULLIF($3,''), title=$4, status=$5, items=$6,
			subtotal=$7, tax_rate=$8, tax=$9, total=$10, valid_until=$11, updated_at=NOW()
		WHERE id=$1 AND user_id=$2
	`, q.ID, q.UserID, q.CustomerID, q.Title, q.Status, raw, q.Subtotal, q.TaxRate, q.Tax, q.Total, q.ValidUntil)
	if err != nil {
		return fmt.Errorf("update quote: %w", err)
	}
	return requireRow(result, "quote")
}

func (s *PostgresStore) UpdateQuoteStatus(ctx context.Context, quoteID, status string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE quotes SET status=$2, updated_at=NOW() WHERE id=$1`, quoteID, status)
	if err != nil {
		return fmt.Errorf("update quote status: %w", err)
	}
	return requireRow(result, "quote")
}

// SettleQuoteStatus moves a quote into a terminal accepted/declined status,
// but only when no decision has been applied yet. Returns false when a
// concurrent decision won; the row is left untouched in that case.
func (s *PostgresStore) SettleQuoteStatus(ctx context.Context, quoteID, status string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE quotes SET status=$2, updated_at=NOW()
		WHERE id=$1 AND status NOT IN ('accepted','declined')
	`, quoteID, status)
	if err != nil {
		return false, fmt.Errorf("settle quote status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("settle quote status: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) SetQuoteShareToken(ctx context.Context, userID, quoteID, shareToken string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE quotes SET share_token=$3, updated_at=NOW() WHERE id=$1 AND user_id=$2
	`, quoteID, userID, shareToken)
	if err != nil {
		return fmt.Errorf("set share token: %w", err)
	}
	return requireRow(result, "quote")
}

func (s *PostgresStore) DeleteQuote(ctx context.Context, userID, quoteID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM quotes WHERE id=$1 AND user_id=$2`, quoteID, userID)
	if err != nil {
		return fmt.Errorf("delete quote: %w", err)
	}
	return requireRow(result, "quote")
}

// ---- catalog items ----

const catalogColumns = `id, user_id, name, description, enhanced_description, unit_label, price, image_url, created_at, updated_at`

func scanCatalogItem(row interface{ Scan(...any) error }) (CatalogItem, error) {
	var item CatalogItem
	err := row.Scan(&item.ID, &item.UserID, &item.Name, &item.Description, &item.EnhancedDescription,
		&item.Unit, &item.Price, &item.ImageURL, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func (s *PostgresStore) ListCatalogItems(ctx context.Context, userID string) ([]CatalogItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+catalogColumns+` FROM catalog_items WHERE user_id=$1 ORDER BY name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list catalog items: %w", err)
	}
	defer rows.Close()

	items := make([]CatalogItem, 0)
	for rows.Next() {
		item, err := scanCatalogItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan catalog item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog items: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetCatalogItem(ctx context.Context, userID, itemID string) (CatalogItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+catalogColumns+` FROM catalog_items WHERE id=$1 AND user_id=$2
	`, itemID, userID)
	return scanCatalogItem(row)
}

func (s *PostgresStore) InsertCatalogItem(ctx context.Context, item CatalogItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO catalog_items (id, user_id, name, description, enhanced_description, unit_label, price, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, item.ID, item.UserID, item.Name, item.Description, item.EnhancedDescription, item.Unit, item.Price, item.ImageURL)
	if err != nil {
		return fmt.Errorf("insert catalog item: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateCatalogItem(ctx context.Context, item CatalogItem) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE catalog_items
		SET name=$3, description=$4, enhanced_description=$5, unit_label=$6, price=$7, image_url=$8, updated_at=NOW()
		WHERE id=$1 AND user_id=$2
	`, item.ID, item.UserID, item.Name, item.Description, item.EnhancedDescription, item.Unit, item.Price, item.ImageURL)
	if err != nil {
		return fmt.Errorf("update catalog item: %w", err)
	}
	return requireRow(result, "catalog item")
}

func (s *PostgresStore) DeleteCatalogItem(ctx context.Context, userID, itemID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM catalog_items WHERE id=$1 AND user_id=$2`, itemID, userID)
	if err != nil {
		return fmt.Errorf("delete catalog item: %w", err)
	}
	return requireRow(result, "catalog item")
}

// ---- proposal visuals ----

func (s *PostgresStore) GetVisuals(ctx context.Context, quoteID string) (ProposalVisuals, error) {
	var v ProposalVisuals
	var images []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT quote_id, cover_image_url, section_image_url, item_images, updated_at
		FROM proposal_visuals WHERE quote_id=$1
	`, quoteID).Scan(&v.QuoteID, &v.CoverImageURL, &v.SectionImageURL, &images, &v.UpdatedAt)
	if err != nil {
		return ProposalVisuals{}, err
	}
	if len(images) > 0 {
		if err := json.Unmarshal(images, &v.ItemImages); err != nil {
			return ProposalVisuals{}, fmt.Errorf("decode item images: %w", err)
		}
	}
	return v, nil
}

func (s *PostgresStore) UpsertVisuals(ctx context.Context, v ProposalVisuals) error {
	images := v.ItemImages
	if images == nil {
		images = map[string]string{}
	}
	raw, err := json.Marshal(images)
	if err != nil {
		return fmt.Errorf("encode item images: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO proposal_visuals (quote_id, cover_image_url, section_image_url, item_images)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (quote_id) DO UPDATE
		SET cover_image_url=EXCLUDED.cover_image_url,
			section_image_url=EXCLUDED.section_image_url,
			item_images=EXCLUDED.item_images,
			updated_at=NOW()
	`, v.QuoteID, v.CoverImageURL, v.SectionImageURL, raw)
	if err != nil {
		return fmt.Errorf("upsert visuals: %w", err)
	}
	return nil
}

// ---- company settings ----

func (s *PostgresStore) GetSettings(ctx context.Context, userID string) (CompanySettings, error) {
	var cs CompanySettings
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, company_name, logo_url, theme_color, template, footer_note, updated_at
		FROM company_settings WHERE user_id=$1
	`, userID).Scan(&cs.UserID, &cs.CompanyName, &cs.LogoURL, &cs.ThemeColor, &cs.Template, &cs.FooterNote, &cs.UpdatedAt)
	if err != nil {
		return CompanySettings{}, err
	}
	return cs, nil
}

func (s *PostgresStore) UpsertSettings(ctx context.Context, cs CompanySettings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO company_settings (user_id, company_name, logo_url, theme_color, template, footer_note)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE
		SET company_name=EXCLUDED.company_name,
			logo_url=EXCLUDED.logo_url,
			theme_color=EXCLUDED.theme_color,
			template=EXCLUDED.template,
			footer_note=EXCLUDED.footer_note,
			updated_at=NOW()
	`, cs.UserID, cs.CompanyName, cs.LogoURL, cs.ThemeColor, cs.Template, cs.FooterNote)
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}

// ---- proposal events ----

func (s *PostgresStore) InsertProposalEvent(ctx context.Context, event ProposalEvent) error {
	payload := event.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO proposal_events (quote_id, share_token, event_type, actor, payload)
		VALUES ($1, $2, $3, $4, $5)
	`, event.QuoteID, event.ShareToken, event.EventType, event.Actor, []byte(payload))
	if err != nil {
		return fmt.Errorf("insert proposal event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListQuoteEvents(ctx context.Context, quoteID string, limit int) ([]ProposalEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, quote_id, share_token, event_type, actor, payload, created_at
		FROM proposal_events WHERE quote_id=$1
		ORDER BY created_at DESC LIMIT $2
	`, quoteID, limit)
	if err != nil {
		return nil, fmt.Errorf("list proposal events: %w", err)
	}
	defer rows.Close()

	events := make([]ProposalEvent, 0)
	for rows.Next() {
		var e ProposalEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.QuoteID, &e.ShareToken, &e.EventType, &e.Actor, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan proposal event: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proposal events: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) EventSummaries(ctx context.Context, userID string) ([]EventSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT q.id,
			COUNT(*) FILTER (WHERE e.event_type='view'),
			COUNT(*) FILTER (WHERE e.event_type='accept'),
			COUNT(*) FILTER (WHERE e.event_type='decline'),
			COUNT(*) FILTER (WHERE e.event_type='comment'),
			MAX(e.created_at) FILTER (WHERE e.event_type='view')
		FROM quotes q
		JOIN proposal_events e ON e.quote_id = q.id
		WHERE q.user_id=$1
		GROUP BY q.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("event summaries: %w", err)
	}
	defer rows.Close()

	summaries := make([]EventSummary, 0)
	for rows.Next() {
		var es EventSummary
		if err := rows.Scan(&es.QuoteID, &es.Views, &es.Accepts, &es.Declines, &es.Comments, &es.LastViewAt); err != nil {
			return nil, fmt.Errorf("scan event summary: %w", err)
		}
		summaries = append(summaries, es)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event summaries: %w", err)
	}
	return summaries, nil
}

func requireRow(result sql.Result, what string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", what, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
