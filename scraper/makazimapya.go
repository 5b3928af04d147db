package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/luxapientia/wanyumba-scrapper/config"
	"github.com/luxapientia/wanyumba-scrapper/models"
)

// Detail links look like /listings/some-house-dar/9f8c2b1a-....
var makaziListingRe = regexp.MustCompile(`/listings/[^/]+/[a-f0-9-]{36}$`)

// MakaziMapya scrapes makazimapya.com. The site is client rendered with
// loosely structured markup, so card parsing keys on the listing URL
// shape rather than CSS classes.
type MakaziMapya struct {
	cfg *config.SiteConfig
}

func NewMakaziMapya(cfg *config.SiteConfig) *MakaziMapya {
	return &MakaziMapya{cfg: cfg}
}

func (m *MakaziMapya) Site() string       { return m.cfg.ID }
func (m *MakaziMapya) Pagination() string { return PaginationPaged }

func (m *MakaziMapya) IndexURL(page int) string {
	if page <= 1 {
		return m.cfg.BaseURL + "/listings"
	}
	return fmt.Sprintf("%s/listings?page=%d", m.cfg.BaseURL, page)
}

func (m *MakaziMapya) IsEndOfResults(doc *goquery.Document) bool {
	return false
}

func (m *MakaziMapya) ParseIndex(doc *goquery.Document) []models.BasicListing {
	var cards []models.BasicListing
	doc.Find(`a[href*="/listings/"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		url := AbsoluteURL(m.cfg.BaseURL, href)
		if url == "" || !makaziListingRe.MatchString(url) {
			return
		}

		text := Squish(s.Text())
		price, currency := ParsePrice(text)

		title := text
		if idx := strings.Index(title, "TSh"); idx > 0 {
			title = Squish(title[:idx])
		}
		if len(title) > 120 {
			title = title[:120]
		}

		cards = append(cards, models.BasicListing{
			URL:      url,
			Title:    title,
			Price:    price,
			Currency: currency,
		})
	})
	return cards
}

func (m *MakaziMapya) ParseDetail(doc *goquery.Document, rawURL string) (*models.Listing, error) {
	l := &models.Listing{}

	l.Title = Squish(doc.Find("h1").First().Text())
	if l.Title == "" {
		l.Title = Squish(doc.Find("h2").First().Text())
	}
	l.ListingType = ListingTypeFromTitle(l.Title)
	l.Country = "Tanzania"

	body := doc.Find("body").Text()
	l.Price, l.PriceCurrency = ParsePrice(findLineContaining(body, "TSh", "USD"))

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if src == "" || strings.Contains(src, "logo") || strings.Contains(src, "icon") {
			return
		}
		l.Images = append(l.Images, AbsoluteURL(m.cfg.BaseURL, src))
	})

	doc.Find(`a[href^="tel:"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if phone := NormalizePhone(href); phone != "" {
			l.AgentPhone = phone
			return false
		}
		return true
	})
	doc.Find(`a[href*="wa.me"], a[href*="whatsapp"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if n := digitsRe.FindString(href); n != "" {
			l.AgentWhatsapp = n
			return false
		}
		return true
	})

	// The seller block has no stable class names; take the heading
	// nearest a tel: link as the agent name.
	if l.AgentPhone != "" {
		doc.Find("h3, h4, h5").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if s.Parent().Find(`a[href^="tel:"]`).Length() > 0 {
				l.AgentName = Squish(s.Text())
				return false
			}
			return true
		})
	}

	return l, nil
}

// findLineContaining returns the first text line holding any of the
// markers.
func findLineContaining(text string, markers ...string) string {
	for _, line := range strings.Split(text, "\n") {
		for _, m := range markers {
			if strings.Contains(line, m) {
				return line
			}
		}
	}
	return ""
}
