package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/luxapientia/wanyumba-scrapper/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS real_estate_listings (
		raw_url TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		source_listing_id TEXT,
		scrape_timestamp TIMESTAMPTZ,
		title TEXT,
		description TEXT,
		property_type TEXT,
		listing_type TEXT,
		status TEXT,
		price DOUBLE PRECISION,
		price_currency TEXT,
		price_period TEXT,
		country TEXT,
		region TEXT,
		city TEXT,
		district TEXT,
		address_text TEXT,
		latitude DOUBLE PRECISION,
		longitude DOUBLE PRECISION,
		bedrooms INTEGER,
		bathrooms INTEGER,
		living_area_sqm DOUBLE PRECISION,
		land_area_sqm DOUBLE PRECISION,
		images TEXT[],
		agent_name TEXT,
		agent_phone TEXT,
		agent_whatsapp TEXT,
		agent_email TEXT,
		agent_website TEXT,
		agent_profile_url TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_listings_source ON real_estate_listings (source);
	CREATE INDEX IF NOT EXISTS idx_listings_status ON real_estate_listings (status);

	CREATE TABLE IF NOT EXISTS agents (
		id BIGSERIAL PRIMARY KEY,
		name TEXT,
		phone TEXT NOT NULL UNIQUE,
		email TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

const listingColumns = `raw_url, source, source_listing_id, scrape_timestamp, title, description,
	property_type, listing_type, status, price, price_currency, price_period,
	country, region, city, district, address_text, latitude, longitude,
	bedrooms, bathrooms, living_area_sqm, land_area_sqm, images,
	agent_name, agent_phone, agent_whatsapp, agent_email, agent_website, agent_profile_url,
	created_at, updated_at`

func (s *PostgresStore) UpsertListing(ctx context.Context, l *models.Listing) error {
	if l.RawURL == "" {
		return fmt.Errorf("listing has no raw_url")
	}
	l.CapImages()
	if l.ScrapeTimestamp.IsZero() {
		l.ScrapeTimestamp = time.Now()
	}

	if l.HasAgentContact() {
		return s.upsertFull(ctx, l)
	}
	return s.upsertPartial(ctx, l)
}

// upsertFull overwrites every field of an existing row and bumps
// updated_at. Used for detail-scrape payloads.
func (s *PostgresStore) upsertFull(ctx context.Context, l *models.Listing) error {
	query := `
		INSERT INTO real_estate_listings (` + listingColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,NOW(),NOW())
		ON CONFLICT (raw_url) DO UPDATE SET
			source = EXCLUDED.source,
			source_listing_id = EXCLUDED.source_listing_id,
			scrape_timestamp = EXCLUDED.scrape_timestamp,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			property_type = EXCLUDED.property_type,
			listing_type = EXCLUDED.listing_type,
			status = EXCLUDED.status,
			price = EXCLUDED.price,
			price_currency = EXCLUDED.price_currency,
			price_period = EXCLUDED.price_period,
			country = EXCLUDED.country,
			region = EXCLUDED.region,
			city = EXCLUDED.city,
			district = EXCLUDED.district,
			address_text = EXCLUDED.address_text,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			bedrooms = EXCLUDED.bedrooms,
			bathrooms = EXCLUDED.bathrooms,
			living_area_sqm = EXCLUDED.living_area_sqm,
			land_area_sqm = EXCLUDED.land_area_sqm,
			images = EXCLUDED.images,
			agent_name = EXCLUDED.agent_name,
			agent_phone = EXCLUDED.agent_phone,
			agent_whatsapp = EXCLUDED.agent_whatsapp,
			agent_email = EXCLUDED.agent_email,
			agent_website = EXCLUDED.agent_website,
			agent_profile_url = EXCLUDED.agent_profile_url,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query, listingArgs(l)...)
	return err
}

// upsertPartial refreshes only title, price and currency on an existing
// row and does not touch updated_at. New rows get the full insert.
func (s *PostgresStore) upsertPartial(ctx context.Context, l *models.Listing) error {
	query := `
		INSERT INTO real_estate_listings (` + listingColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,NOW(),NOW())
		ON CONFLICT (raw_url) DO UPDATE SET
			title = EXCLUDED.title,
			price = EXCLUDED.price,
			price_currency = EXCLUDED.price_currency`

	_, err := s.pool.Exec(ctx, query, listingArgs(l)...)
	return err
}

func listingArgs(l *models.Listing) []any {
	return []any{
		l.RawURL, l.Source, l.SourceListingID, l.ScrapeTimestamp, l.Title, l.Description,
		l.PropertyType, l.ListingType, l.Status, l.Price, l.PriceCurrency, l.PricePeriod,
		l.Country, l.Region, l.City, l.District, l.AddressText, l.Latitude, l.Longitude,
		l.Bedrooms, l.Bathrooms, l.LivingAreaSqm, l.LandAreaSqm, l.Images,
		l.AgentName, l.AgentPhone, l.AgentWhatsapp, l.AgentEmail, l.AgentWebsite, l.AgentProfileURL,
	}
}

func scanListing(row pgx.Row) (*models.Listing, error) {
	var l models.Listing
	err := row.Scan(
		&l.RawURL, &l.Source, &l.SourceListingID, &l.ScrapeTimestamp, &l.Title, &l.Description,
		&l.PropertyType, &l.ListingType, &l.Status, &l.Price, &l.PriceCurrency, &l.PricePeriod,
		&l.Country, &l.Region, &l.City, &l.District, &l.AddressText, &l.Latitude, &l.Longitude,
		&l.Bedrooms, &l.Bathrooms, &l.LivingAreaSqm, &l.LandAreaSqm, &l.Images,
		&l.AgentName, &l.AgentPhone, &l.AgentWhatsapp, &l.AgentEmail, &l.AgentWebsite, &l.AgentProfileURL,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *PostgresStore) collectListings(rows pgx.Rows) ([]models.Listing, error) {
	defer rows.Close()
	var listings []models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

func (s *PostgresStore) GetListings(ctx context.Context, f ListingFilter) ([]models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM real_estate_listings`
	var args []any
	if f.Source != "" {
		query += ` WHERE source = $1`
		args = append(args, f.Source)
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(` OFFSET %d`, f.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return s.collectListings(rows)
}

func (s *PostgresStore) GetListingByURL(ctx context.Context, rawURL string) (*models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM real_estate_listings WHERE raw_url = $1`
	l, err := scanListing(s.pool.QueryRow(ctx, query, rawURL))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *PostgresStore) GetListingsByURLs(ctx context.Context, urls []string) ([]models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM real_estate_listings WHERE raw_url = ANY($1)`
	rows, err := s.pool.Query(ctx, query, urls)
	if err != nil {
		return nil, err
	}
	return s.collectListings(rows)
}

func (s *PostgresStore) DeleteListing(ctx context.Context, rawURL string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM real_estate_listings WHERE raw_url = $1`, rawURL)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) SearchListings(ctx context.Context, query string, limit int) ([]models.Listing, error) {
	if limit <= 0 {
		limit = 50
	}
	term := "%" + query + "%"
	sql := `SELECT ` + listingColumns + ` FROM real_estate_listings
		WHERE title ILIKE $1 OR address_text ILIKE $1 OR city ILIKE $1
			OR district ILIKE $1 OR region ILIKE $1 OR description ILIKE $1
		LIMIT $2`
	rows, err := s.pool.Query(ctx, sql, term, limit)
	if err != nil {
		return nil, err
	}
	return s.collectListings(rows)
}

func (s *PostgresStore) Statistics(ctx context.Context) (*models.Statistics, error) {
	stats := &models.Statistics{
		BySource:    make(map[string]int),
		LastUpdated: time.Now(),
	}

	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM real_estate_listings`).Scan(&stats.TotalListings); err != nil {
		return nil, err
	}
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM real_estate_listings WHERE agent_name IS NOT NULL AND agent_name <> ''`,
	).Scan(&stats.WithContact); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `SELECT source, COUNT(*) FROM real_estate_listings GROUP BY source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return nil, err
		}
		stats.BySource[source] = count
	}
	return stats, rows.Err()
}

func (s *PostgresStore) GetStaleActiveListings(ctx context.Context, source string, limit int) ([]models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM real_estate_listings
		WHERE status = 'active' AND source = $1
		ORDER BY scrape_timestamp ASC NULLS FIRST
		LIMIT $2`
	rows, err := s.pool.Query(ctx, query, source, limit)
	if err != nil {
		return nil, err
	}
	return s.collectListings(rows)
}

func (s *PostgresStore) MarkListingInactive(ctx context.Context, rawURL string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE real_estate_listings SET status = 'inactive', updated_at = NOW() WHERE raw_url = $1`, rawURL)
	return err
}

func (s *PostgresStore) UpsertAgent(ctx context.Context, a *models.Agent) error {
	query := `
		INSERT INTO agents (name, phone, email, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (phone) DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), agents.name),
			email = COALESCE(NULLIF(EXCLUDED.email, ''), agents.email),
			updated_at = NOW()
		RETURNING id`
	return s.pool.QueryRow(ctx, query, a.Name, a.Phone, a.Email).Scan(&a.ID)
}

func (s *PostgresStore) GetAgents(ctx context.Context, limit int) ([]models.Agent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, phone, email, created_at, updated_at FROM agents ORDER BY updated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []models.Agent
	for rows.Next() {
		var a models.Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.Phone, &a.Email, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (s *PostgresStore) GetAgentByPhone(ctx context.Context, phone string) (*models.Agent, error) {
	var a models.Agent
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, phone, email, created_at, updated_at FROM agents WHERE phone = $1`, phone).
		Scan(&a.ID, &a.Name, &a.Phone, &a.Email, &a.CreatedAt, &a.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
