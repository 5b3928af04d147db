package scraper

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/luxapientia/wanyumba-scrapper/config"
	"github.com/playwright-community/playwright-go"
)

// Pager is the page-fetching collaborator the engine drives. The
// production implementation is a playwright Session; tests substitute
// fixture-backed fakes.
type Pager interface {
	// Navigate loads url and returns the parsed document.
	Navigate(ctx context.Context, url string) (*goquery.Document, error)

	// ScrollToBottom scrolls the current page to the bottom to trigger
	// lazy loading. The caller waits for content to settle.
	ScrollToBottom(ctx context.Context) error

	// Click clicks the first visible element matching selector, if any.
	Click(ctx context.Context, selector string) error

	// Document re-parses the current page content.
	Document(ctx context.Context) (*goquery.Document, error)

	// Close tears the session down.
	Close()
}

// Session is a playwright-backed Pager. Each site gets its own
// persistent browser profile so cookies and logged-in sessions survive
// restarts; interactive logins (jiji) are done once in a headed run and
// reused from the profile afterwards.
type Session struct {
	cfg      *config.SiteConfig
	headless bool

	mu          sync.Mutex
	pw          *playwright.Playwright
	context     playwright.BrowserContext
	page        playwright.Page
	initialized bool
}

func NewSession(cfg *config.SiteConfig, headless bool) *Session {
	return &Session{cfg: cfg, headless: headless}
}

func (s *Session) ensureBrowser() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}

	var err error
	s.pw, err = playwright.Run()
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	s.context, err = s.pw.Chromium.LaunchPersistentContext(s.cfg.ProfileDir, playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless: playwright.Bool(s.headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		s.pw.Stop()
		s.pw = nil
		return fmt.Errorf("failed to launch browser for %s: %w", s.cfg.ID, err)
	}

	s.page, err = s.context.NewPage()
	if err != nil {
		s.context.Close()
		s.pw.Stop()
		s.pw = nil
		s.context = nil
		return fmt.Errorf("failed to create page for %s: %w", s.cfg.ID, err)
	}

	s.initialized = true
	return nil
}

func (s *Session) Navigate(ctx context.Context, url string) (*goquery.Document, error) {
	if err := s.ensureBrowser(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(60000),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}

	// Client-rendered sites need a moment after domcontentloaded.
	s.page.WaitForTimeout(1500)

	return s.Document(ctx)
}

func (s *Session) ScrollToBottom(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.page.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`)
	return err
}

func (s *Session) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	el := s.page.Locator(selector).First()
	visible, err := el.IsVisible()
	if err != nil || !visible {
		return nil
	}
	if err := el.Click(); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	s.page.WaitForTimeout(800)
	return nil
}

func (s *Session) Document(ctx context.Context) (*goquery.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := s.page.Content()
	if err != nil {
		return nil, fmt.Errorf("read page content: %w", err)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(content))
}

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.page != nil {
		s.page.Close()
		s.page = nil
	}
	if s.context != nil {
		s.context.Close()
		s.context = nil
	}
	if s.pw != nil {
		s.pw.Stop()
		s.pw = nil
	}
	s.initialized = false
}
