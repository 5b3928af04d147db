package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/luxapientia/wanyumba-scrapper/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func fullListing(rawURL string) *models.Listing {
	price := 1200000.0
	beds := 3
	return &models.Listing{
		RawURL:        rawURL,
		Source:        "jiji",
		Title:         "3 Bedroom House for Rent",
		Description:   "Spacious house near the beach",
		PropertyType:  "house",
		ListingType:   models.ListingTypeRent,
		Status:        models.ListingStatusActive,
		Price:         &price,
		PriceCurrency: "TSh",
		Country:       "Tanzania",
		Region:        "Dar es Salaam",
		District:      "Kinondoni",
		Bedrooms:      &beds,
		Images:        []string{"https://img.example/1.jpg", "https://img.example/2.jpg"},
		AgentName:     "Amani Properties",
		AgentPhone:    "0784899175",
	}
}

func TestUpsertAndGetListing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	l := fullListing("https://jiji.co.tz/a.html")
	if err := store.UpsertListing(ctx, l); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := store.GetListingByURL(ctx, l.RawURL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("listing not found after upsert")
	}
	if got.Title != l.Title || got.AgentPhone != "0784899175" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if len(got.Images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(got.Images))
	}
	if got.Price == nil || *got.Price != 1200000 {
		t.Fatalf("unexpected price %v", got.Price)
	}
	if got.Bedrooms == nil || *got.Bedrooms != 3 {
		t.Fatalf("unexpected bedrooms %v", got.Bedrooms)
	}
}

func TestGetListingByURLMissing(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetListingByURL(context.Background(), "https://jiji.co.tz/nope.html")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing listing, got %+v", got)
	}
}

func TestPartialUpdatePreservesDetailFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	full := fullListing("https://jiji.co.tz/a.html")
	if err := store.UpsertListing(ctx, full); err != nil {
		t.Fatalf("seed: %v", err)
	}
	before, _ := store.GetListingByURL(ctx, full.RawURL)

	newPrice := 1500000.0
	partial := &models.Listing{
		RawURL:        full.RawURL,
		Source:        "jiji",
		Title:         "3 Bedroom House for Rent (updated)",
		Price:         &newPrice,
		PriceCurrency: "TSh",
	}
	if err := store.UpsertListing(ctx, partial); err != nil {
		t.Fatalf("partial upsert: %v", err)
	}

	got, _ := store.GetListingByURL(ctx, full.RawURL)
	if got.Title != "3 Bedroom House for Rent (updated)" {
		t.Fatalf("title not refreshed: %q", got.Title)
	}
	if got.Price == nil || *got.Price != 1500000 {
		t.Fatalf("price not refreshed: %v", got.Price)
	}
	if got.AgentName != "Amani Properties" || got.Description == "" {
		t.Fatal("partial update clobbered detail fields")
	}
	if !got.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatal("partial update must not bump updated_at")
	}
}

func TestFullUpdateReplacesEverything(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertListing(ctx, fullListing("https://jiji.co.tz/a.html")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	updated := fullListing("https://jiji.co.tz/a.html")
	updated.AgentName = "New Agent"
	updated.Description = "Renovated"
	if err := store.UpsertListing(ctx, updated); err != nil {
		t.Fatalf("full upsert: %v", err)
	}

	got, _ := store.GetListingByURL(ctx, updated.RawURL)
	if got.AgentName != "New Agent" || got.Description != "Renovated" {
		t.Fatalf("full update not applied: %+v", got)
	}
}

func TestGetListingsFilterAndSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := fullListing("https://jiji.co.tz/a.html")
	b := fullListing("https://kupatana.com/b")
	b.Source = "kupatana"
	b.Title = "Office space city centre"
	if err := store.UpsertListing(ctx, a); err != nil {
		t.Fatalf("seed a: %v", err)
	}
	if err := store.UpsertListing(ctx, b); err != nil {
		t.Fatalf("seed b: %v", err)
	}

	jiji, err := store.GetListings(ctx, ListingFilter{Source: "jiji"})
	if err != nil {
		t.Fatalf("filtered query: %v", err)
	}
	if len(jiji) != 1 || jiji[0].RawURL != a.RawURL {
		t.Fatalf("source filter broken: %+v", jiji)
	}

	all, err := store.GetListings(ctx, ListingFilter{})
	if err != nil {
		t.Fatalf("unfiltered query: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(all))
	}

	found, err := store.SearchListings(ctx, "office", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 1 || found[0].Source != "kupatana" {
		t.Fatalf("search broken: %+v", found)
	}
}

func TestDeleteListing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	l := fullListing("https://jiji.co.tz/a.html")
	if err := store.UpsertListing(ctx, l); err != nil {
		t.Fatalf("seed: %v", err)
	}

	deleted, err := store.DeleteListing(ctx, l.RawURL)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !deleted {
		t.Fatal("expected delete to report a removed row")
	}

	deleted, err = store.DeleteListing(ctx, l.RawURL)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if deleted {
		t.Fatal("second delete should report nothing removed")
	}
}

func TestStatistics(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := fullListing("https://jiji.co.tz/a.html")
	b := fullListing("https://jiji.co.tz/b.html")
	b.AgentName = ""
	c := fullListing("https://kupatana.com/c")
	c.Source = "kupatana"
	for _, l := range []*models.Listing{a, b, c} {
		if err := store.UpsertListing(ctx, l); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	stats, err := store.Statistics(ctx)
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	if stats.TotalListings != 3 {
		t.Fatalf("expected 3 total, got %d", stats.TotalListings)
	}
	if stats.BySource["jiji"] != 2 || stats.BySource["kupatana"] != 1 {
		t.Fatalf("unexpected per-source counts: %v", stats.BySource)
	}
	if stats.WithContact != 2 {
		t.Fatalf("expected 2 with contact, got %d", stats.WithContact)
	}
}

func TestMarkListingInactiveAndStaleQuery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	l := fullListing("https://jiji.co.tz/a.html")
	if err := store.UpsertListing(ctx, l); err != nil {
		t.Fatalf("seed: %v", err)
	}

	stale, err := store.GetStaleActiveListings(ctx, "jiji", 10)
	if err != nil {
		t.Fatalf("stale query: %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("expected 1 stale active listing, got %d", len(stale))
	}

	if err := store.MarkListingInactive(ctx, l.RawURL); err != nil {
		t.Fatalf("mark inactive: %v", err)
	}

	stale, err = store.GetStaleActiveListings(ctx, "jiji", 10)
	if err != nil {
		t.Fatalf("stale query: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("inactive listing still reported stale: %+v", stale)
	}
}

func TestAgentUpsertKeyedByPhone(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertAgent(ctx, &models.Agent{Name: "Amani", Phone: "0784899175"}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	// Second sighting carries an email but no name; name must survive.
	if err := store.UpsertAgent(ctx, &models.Agent{Phone: "0784899175", Email: "amani@example.com"}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	agent, err := store.GetAgentByPhone(ctx, "0784899175")
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	if agent == nil {
		t.Fatal("agent not found")
	}
	if agent.Name != "Amani" || agent.Email != "amani@example.com" {
		t.Fatalf("merge semantics broken: %+v", agent)
	}

	agents, err := store.GetAgents(ctx, 10)
	if err != nil {
		t.Fatalf("list agents: %v", err)
	}
	if len(agents) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(agents))
	}
}

func TestSaveAgentFromListingSkipsWithoutPhone(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	l := fullListing("https://jiji.co.tz/a.html")
	l.AgentPhone = ""
	if err := SaveAgentFromListing(ctx, store, l); err != nil {
		t.Fatalf("save without phone: %v", err)
	}

	agents, _ := store.GetAgents(ctx, 10)
	if len(agents) != 0 {
		t.Fatalf("agent created without phone key: %+v", agents)
	}
}
