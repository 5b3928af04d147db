package models

import "time"

const maxImages = 20

// Listing is the canonical, site-agnostic representation of one real
// estate listing. The listing URL is the primary key: re-scraping the
// same URL updates the stored row, it never duplicates it.
type Listing struct {
	RawURL          string    `json:"raw_url" db:"raw_url"`
	Source          string    `json:"source" db:"source"` // jiji, kupatana, etc.
	SourceListingID string    `json:"source_listing_id" db:"source_listing_id"`
	ScrapeTimestamp time.Time `json:"scrape_timestamp" db:"scrape_timestamp"`

	Title       string `json:"title" db:"title"`
	Description string `json:"description" db:"description"`

	PropertyType string `json:"property_type" db:"property_type"` // apartment, house, land, commercial, other
	ListingType  string `json:"listing_type" db:"listing_type"`   // rent, sale, lease
	Status       string `json:"status" db:"status"`               // active, inactive, unknown

	Price         *float64 `json:"price" db:"price"`
	PriceCurrency string   `json:"price_currency" db:"price_currency"` // TSh, USD, etc.
	PricePeriod   string   `json:"price_period" db:"price_period"`     // once, month, year

	Country     string   `json:"country" db:"country"`
	Region      string   `json:"region" db:"region"`
	City        string   `json:"city" db:"city"`
	District    string   `json:"district" db:"district"`
	AddressText string   `json:"address_text" db:"address_text"`
	Latitude    *float64 `json:"latitude" db:"latitude"`
	Longitude   *float64 `json:"longitude" db:"longitude"`

	Bedrooms      *int     `json:"bedrooms" db:"bedrooms"`
	Bathrooms     *int     `json:"bathrooms" db:"bathrooms"`
	LivingAreaSqm *float64 `json:"living_area_sqm" db:"living_area_sqm"`
	LandAreaSqm   *float64 `json:"land_area_sqm" db:"land_area_sqm"`

	Images []string `json:"images" db:"images"`

	AgentName       string `json:"agent_name" db:"agent_name"`
	AgentPhone      string `json:"agent_phone" db:"agent_phone"`
	AgentWhatsapp   string `json:"agent_whatsapp" db:"agent_whatsapp"`
	AgentEmail      string `json:"agent_email" db:"agent_email"`
	AgentWebsite    string `json:"agent_website" db:"agent_website"`
	AgentProfileURL string `json:"agent_profile_url" db:"agent_profile_url"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasAgentContact reports whether this record carries detail-scrape
// data. Presence of agent_name is what discriminates a full update from
// a partial (index-sweep) update; this mirrors the upstream data shape,
// where a detail page without an agent block is effectively unheard of.
func (l *Listing) HasAgentContact() bool {
	return l.AgentName != ""
}

// CapImages trims the image list to the storage limit, keeping order.
func (l *Listing) CapImages() {
	if len(l.Images) > maxImages {
		l.Images = l.Images[:maxImages]
	}
}

// BasicListing is the lightweight entry produced by an index sweep.
type BasicListing struct {
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Price    *float64 `json:"price"`
	Currency string   `json:"currency"`
}

// Listing converts a basic entry into a canonical record carrying only
// the index-sweep fields. The absence of agent contact routes it to the
// partial update path in storage.
func (b BasicListing) Listing(source string) *Listing {
	return &Listing{
		RawURL:          b.URL,
		Source:          source,
		Title:           b.Title,
		Price:           b.Price,
		PriceCurrency:   b.Currency,
		Status:          ListingStatusActive,
		ScrapeTimestamp: time.Now(),
	}
}

// Agent is the contact side-table entry, keyed by phone number and
// updated opportunistically whenever a detail scrape yields contact
// info. Never explicitly deleted.
type Agent struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Phone     string    `json:"phone" db:"phone"`
	Email     string    `json:"email" db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Statistics summarizes the stored corpus per source.
type Statistics struct {
	TotalListings int            `json:"total_listings"`
	BySource      map[string]int `json:"by_source"`
	WithContact   int            `json:"with_contact"`
	LastUpdated   time.Time      `json:"last_updated"`
}

// Listing status values.
const (
	ListingStatusActive   = "active"
	ListingStatusInactive = "inactive"
	ListingStatusUnknown  = "unknown"
)

// Listing type values.
const (
	ListingTypeRent  = "rent"
	ListingTypeSale  = "sale"
	ListingTypeLease = "lease"
)
