package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadSiteConfigs(t *testing.T) {
	dir := t.TempDir()
	yaml := `id: jiji
name: Jiji Tanzania
base_url: https://jiji.co.tz
pagination: paged
rate_limit_ms: 2000
`
	if err := os.WriteFile(filepath.Join(dir, "jiji.yaml"), []byte(yaml), 0644); err != nil {
		t.Fatalf("write site config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0644); err != nil {
		t.Fatalf("write stray file: %v", err)
	}

	t.Setenv("SITES_DIR", dir)
	t.Setenv("JIJI_EMAIL", "scraper@example.com")
	t.Setenv("JIJI_PASSWORD", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	site, ok := cfg.Sites["jiji"]
	if !ok {
		t.Fatalf("jiji site not loaded, have %v", cfg.Sites)
	}
	if site.BaseURL != "https://jiji.co.tz" || site.Pagination != "paged" {
		t.Fatalf("site fields wrong: %+v", site)
	}
	if site.RateLimitMS != 2000 {
		t.Fatalf("rate limit not parsed: %d", site.RateLimitMS)
	}
	if site.ProfileDir != "./browser_profiles/jiji" {
		t.Fatalf("profile dir default wrong: %s", site.ProfileDir)
	}
	if site.Email != "scraper@example.com" || site.Password != "secret" {
		t.Fatal("credentials not pulled from environment")
	}
	if len(cfg.Sites) != 1 {
		t.Fatalf("stray files should be skipped, got %d sites", len(cfg.Sites))
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SITES_DIR", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		t.Fatalf("unexpected default driver %q", cfg.Database.Driver)
	}
	if cfg.API.Addr != ":8000" {
		t.Fatalf("unexpected default addr %q", cfg.API.Addr)
	}
	if cfg.Scraper.CycleDelayMinutes != 30 {
		t.Fatalf("unexpected default cycle delay %d", cfg.Scraper.CycleDelayMinutes)
	}
	if cfg.Scraper.PageDelay != 2*time.Second {
		t.Fatalf("unexpected default page delay %s", cfg.Scraper.PageDelay)
	}
}
