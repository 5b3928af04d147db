package storage

import (
	"context"

	"github.com/luxapientia/wanyumba-scrapper/models"
)

// ListingFilter narrows queries over stored listings.
type ListingFilter struct {
	Source string
	Limit  int
	Offset int
}

// Store is the persistence collaborator for listings and agents.
// Listings are keyed by raw_url, agents by phone number.
//
// UpsertListing applies one of two write modes:
//
//   - full update, when the payload carries agent_name: every populated
//     field is written and updated_at is bumped;
//   - partial update, when it does not: only title, price and
//     price_currency are overwritten and updated_at is left alone, so an
//     index sweep can refresh prices without making the record look
//     freshly detailed.
//
// Keying the discriminator on agent_name mirrors the upstream data: a
// detail page that legitimately has no agent would be misfiled as a
// partial update. An explicit update-kind tag would be cleaner, but the
// sites scraped today always render an agent block on detail pages.
type Store interface {
	UpsertListing(ctx context.Context, l *models.Listing) error
	GetListings(ctx context.Context, f ListingFilter) ([]models.Listing, error)
	GetListingByURL(ctx context.Context, rawURL string) (*models.Listing, error)
	GetListingsByURLs(ctx context.Context, urls []string) ([]models.Listing, error)
	DeleteListing(ctx context.Context, rawURL string) (bool, error)
	SearchListings(ctx context.Context, query string, limit int) ([]models.Listing, error)
	Statistics(ctx context.Context) (*models.Statistics, error)

	GetStaleActiveListings(ctx context.Context, source string, limit int) ([]models.Listing, error)
	MarkListingInactive(ctx context.Context, rawURL string) error

	UpsertAgent(ctx context.Context, a *models.Agent) error
	GetAgents(ctx context.Context, limit int) ([]models.Agent, error)
	GetAgentByPhone(ctx context.Context, phone string) (*models.Agent, error)

	Close() error
}

// SaveAgentFromListing opportunistically maintains the agent side-table
// from a detail-scraped listing. A listing without a phone number is
// skipped: phone is the agent key.
func SaveAgentFromListing(ctx context.Context, s Store, l *models.Listing) error {
	if l.AgentPhone == "" {
		return nil
	}
	return s.UpsertAgent(ctx, &models.Agent{
		Name:  l.AgentName,
		Phone: l.AgentPhone,
		Email: l.AgentEmail,
	})
}
