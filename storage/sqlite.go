package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/luxapientia/wanyumba-scrapper/models"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is the single-binary alternative to Postgres, mostly used
// for local development. Images are stored as a JSON array string.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS real_estate_listings (
		raw_url TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		source_listing_id TEXT DEFAULT '',
		scrape_timestamp DATETIME,
		title TEXT DEFAULT '',
		description TEXT DEFAULT '',
		property_type TEXT DEFAULT '',
		listing_type TEXT DEFAULT '',
		status TEXT DEFAULT '',
		price REAL,
		price_currency TEXT DEFAULT '',
		price_period TEXT DEFAULT '',
		country TEXT DEFAULT '',
		region TEXT DEFAULT '',
		city TEXT DEFAULT '',
		district TEXT DEFAULT '',
		address_text TEXT DEFAULT '',
		latitude REAL,
		longitude REAL,
		bedrooms INTEGER,
		bathrooms INTEGER,
		living_area_sqm REAL,
		land_area_sqm REAL,
		images TEXT DEFAULT '[]',
		agent_name TEXT DEFAULT '',
		agent_phone TEXT DEFAULT '',
		agent_whatsapp TEXT DEFAULT '',
		agent_email TEXT DEFAULT '',
		agent_website TEXT DEFAULT '',
		agent_profile_url TEXT DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_listings_source ON real_estate_listings (source);

	CREATE TABLE IF NOT EXISTS agents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT DEFAULT '',
		phone TEXT NOT NULL UNIQUE,
		email TEXT DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) UpsertListing(ctx context.Context, l *models.Listing) error {
	if l.RawURL == "" {
		return fmt.Errorf("listing has no raw_url")
	}
	l.CapImages()
	if l.ScrapeTimestamp.IsZero() {
		l.ScrapeTimestamp = time.Now()
	}
	images, err := json.Marshal(l.Images)
	if err != nil {
		return err
	}

	now := time.Now()
	insert := `
		INSERT INTO real_estate_listings (
			raw_url, source, source_listing_id, scrape_timestamp, title, description,
			property_type, listing_type, status, price, price_currency, price_period,
			country, region, city, district, address_text, latitude, longitude,
			bedrooms, bathrooms, living_area_sqm, land_area_sqm, images,
			agent_name, agent_phone, agent_whatsapp, agent_email, agent_website, agent_profile_url,
			created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

	var conflict string
	if l.HasAgentContact() {
		conflict = `
		ON CONFLICT (raw_url) DO UPDATE SET
			source = excluded.source,
			source_listing_id = excluded.source_listing_id,
			scrape_timestamp = excluded.scrape_timestamp,
			title = excluded.title,
			description = excluded.description,
			property_type = excluded.property_type,
			listing_type = excluded.listing_type,
			status = excluded.status,
			price = excluded.price,
			price_currency = excluded.price_currency,
			price_period = excluded.price_period,
			country = excluded.country,
			region = excluded.region,
			city = excluded.city,
			district = excluded.district,
			address_text = excluded.address_text,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			bedrooms = excluded.bedrooms,
			bathrooms = excluded.bathrooms,
			living_area_sqm = excluded.living_area_sqm,
			land_area_sqm = excluded.land_area_sqm,
			images = excluded.images,
			agent_name = excluded.agent_name,
			agent_phone = excluded.agent_phone,
			agent_whatsapp = excluded.agent_whatsapp,
			agent_email = excluded.agent_email,
			agent_website = excluded.agent_website,
			agent_profile_url = excluded.agent_profile_url,
			updated_at = excluded.updated_at`
	} else {
		// Partial update: index sweeps refresh title/price only and must
		// not bump updated_at.
		conflict = `
		ON CONFLICT (raw_url) DO UPDATE SET
			title = excluded.title,
			price = excluded.price,
			price_currency = excluded.price_currency`
	}

	_, err = s.db.ExecContext(ctx, insert+conflict,
		l.RawURL, l.Source, l.SourceListingID, l.ScrapeTimestamp, l.Title, l.Description,
		l.PropertyType, l.ListingType, l.Status, l.Price, l.PriceCurrency, l.PricePeriod,
		l.Country, l.Region, l.City, l.District, l.AddressText, l.Latitude, l.Longitude,
		l.Bedrooms, l.Bathrooms, l.LivingAreaSqm, l.LandAreaSqm, string(images),
		l.AgentName, l.AgentPhone, l.AgentWhatsapp, l.AgentEmail, l.AgentWebsite, l.AgentProfileURL,
		now, now,
	)
	return err
}

const sqliteListingColumns = `raw_url, source, source_listing_id, scrape_timestamp, title, description,
	property_type, listing_type, status, price, price_currency, price_period,
	country, region, city, district, address_text, latitude, longitude,
	bedrooms, bathrooms, living_area_sqm, land_area_sqm, images,
	agent_name, agent_phone, agent_whatsapp, agent_email, agent_website, agent_profile_url,
	created_at, updated_at`

func (s *SQLiteStore) scanListing(scan func(...any) error) (*models.Listing, error) {
	var l models.Listing
	var images string
	var scrapeTS sql.NullTime
	err := scan(
		&l.RawURL, &l.Source, &l.SourceListingID, &scrapeTS, &l.Title, &l.Description,
		&l.PropertyType, &l.ListingType, &l.Status, &l.Price, &l.PriceCurrency, &l.PricePeriod,
		&l.Country, &l.Region, &l.City, &l.District, &l.AddressText, &l.Latitude, &l.Longitude,
		&l.Bedrooms, &l.Bathrooms, &l.LivingAreaSqm, &l.LandAreaSqm, &images,
		&l.AgentName, &l.AgentPhone, &l.AgentWhatsapp, &l.AgentEmail, &l.AgentWebsite, &l.AgentProfileURL,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if scrapeTS.Valid {
		l.ScrapeTimestamp = scrapeTS.Time
	}
	if images != "" {
		if err := json.Unmarshal([]byte(images), &l.Images); err != nil {
			return nil, fmt.Errorf("decode images for %s: %w", l.RawURL, err)
		}
	}
	return &l, nil
}

func (s *SQLiteStore) queryListings(ctx context.Context, query string, args ...any) ([]models.Listing, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		l, err := s.scanListing(rows.Scan)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

func (s *SQLiteStore) GetListings(ctx context.Context, f ListingFilter) ([]models.Listing, error) {
	query := `SELECT ` + sqliteListingColumns + ` FROM real_estate_listings`
	var args []any
	if f.Source != "" {
		query += ` WHERE source = ?`
		args = append(args, f.Source)
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(` OFFSET %d`, f.Offset)
	}
	return s.queryListings(ctx, query, args...)
}

func (s *SQLiteStore) GetListingByURL(ctx context.Context, rawURL string) (*models.Listing, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteListingColumns+` FROM real_estate_listings WHERE raw_url = ?`, rawURL)
	l, err := s.scanListing(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *SQLiteStore) GetListingsByURLs(ctx context.Context, urls []string) ([]models.Listing, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(urls))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(urls))
	for i, u := range urls {
		args[i] = u
	}
	return s.queryListings(ctx,
		`SELECT `+sqliteListingColumns+` FROM real_estate_listings WHERE raw_url IN (`+placeholders+`)`, args...)
}

func (s *SQLiteStore) DeleteListing(ctx context.Context, rawURL string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM real_estate_listings WHERE raw_url = ?`, rawURL)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) SearchListings(ctx context.Context, query string, limit int) ([]models.Listing, error) {
	if limit <= 0 {
		limit = 50
	}
	term := "%" + query + "%"
	return s.queryListings(ctx,
		`SELECT `+sqliteListingColumns+` FROM real_estate_listings
		WHERE title LIKE ? OR address_text LIKE ? OR city LIKE ?
			OR district LIKE ? OR region LIKE ? OR description LIKE ?
		LIMIT ?`,
		term, term, term, term, term, term, limit)
}

func (s *SQLiteStore) Statistics(ctx context.Context) (*models.Statistics, error) {
	stats := &models.Statistics{
		BySource:    make(map[string]int),
		LastUpdated: time.Now(),
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM real_estate_listings`).Scan(&stats.TotalListings); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM real_estate_listings WHERE agent_name <> ''`).Scan(&stats.WithContact); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM real_estate_listings GROUP BY source`)
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

func (s *SQLiteStore) GetStaleActiveListings(ctx context.Context, source string, limit int) ([]models.Listing, error) {
	return s.queryListings(ctx,
		`SELECT `+sqliteListingColumns+` FROM real_estate_listings
		WHERE status = 'active' AND source = ?
		ORDER BY scrape_timestamp ASC
		LIMIT ?`, source, limit)
}

func (s *SQLiteStore) MarkListingInactive(ctx context.Context, rawURL string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE real_estate_listings SET status = 'inactive', updated_at = ? WHERE raw_url = ?`,
		time.Now(), rawURL)
	return err
}

func (s *SQLiteStore) UpsertAgent(ctx context.Context, a *models.Agent) error {
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (name, phone, email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (phone) DO UPDATE SET
			name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE agents.name END,
			email = CASE WHEN excluded.email <> '' THEN excluded.email ELSE agents.email END,
			updated_at = excluded.updated_at`,
		a.Name, a.Phone, a.Email, now, now)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		a.ID = id
	}
	return nil
}

func (s *SQLiteStore) GetAgents(ctx context.Context, limit int) ([]models.Agent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, phone, email, created_at, updated_at FROM agents ORDER BY updated_at DESC LIMIT ?`, limit)
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

func (s *SQLiteStore) GetAgentByPhone(ctx context.Context, phone string) (*models.Agent, error) {
	var a models.Agent
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, phone, email, created_at, updated_at FROM agents WHERE phone = ?`, phone).
		Scan(&a.ID, &a.Name, &a.Phone, &a.Email, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
