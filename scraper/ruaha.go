package scraper

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/luxapientia/wanyumba-scrapper/config"
	"github.com/luxapientia/wanyumba-scrapper/models"
)

// Ad links look like /ads/3-bedroom-house-mbezi-1234-abc123.
var ruahaAdRe = regexp.MustCompile(`/ads/[a-z0-9-]+-\d+-[a-zA-Z0-9_-]+$`)

// Ruaha scrapes www.ruaha.co.tz/ads. The ads index is an infinite
// scroll feed, so Ruaha is the one scroll-mode extractor.
type Ruaha struct {
	cfg *config.SiteConfig
}

func NewRuaha(cfg *config.SiteConfig) *Ruaha {
	return &Ruaha{cfg: cfg}
}

func (r *Ruaha) Site() string       { return r.cfg.ID }
func (r *Ruaha) Pagination() string { return PaginationScroll }

func (r *Ruaha) IndexURL(page int) string {
	return r.cfg.BaseURL + "/ads"
}

func (r *Ruaha) IsEndOfResults(doc *goquery.Document) bool {
	return false
}

func (r *Ruaha) ParseIndex(doc *goquery.Document) []models.BasicListing {
	var cards []models.BasicListing
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		url := AbsoluteURL(r.cfg.BaseURL, href)
		if url == "" || !ruahaAdRe.MatchString(url) {
			return
		}

		text := Squish(s.Text())
		price, currency := ParsePrice(text)
		title := text
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

func (r *Ruaha) ParseDetail(doc *goquery.Document, rawURL string) (*models.Listing, error) {
	l := &models.Listing{}

	title := ""
	doc.Find("h1, h2").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		class, _ := s.Attr("class")
		lc := strings.ToLower(class)
		if strings.Contains(lc, "title") || strings.Contains(lc, "heading") {
			title = Squish(s.Text())
			return false
		}
		return true
	})
	if title == "" {
		title = Squish(doc.Find("h1").First().Text())
	}
	l.Title = title
	l.ListingType = ListingTypeFromTitle(title)
	l.Country = "Tanzania"

	l.Price, l.PriceCurrency = ParsePrice(findLineContaining(doc.Find("body").Text(), "TSh", "TZS", "USD"))

	doc.Find("ul.info-list li").Each(func(_ int, s *goquery.Selection) {
		text := strings.ToLower(Squish(s.Text()))
		switch {
		case strings.Contains(text, "bedroom"):
			if n, ok := FirstInt(text); ok {
				l.Bedrooms = &n
			}
		case strings.Contains(text, "bathroom"):
			if n, ok := FirstInt(text); ok {
				l.Bathrooms = &n
			}
		case strings.Contains(text, "sqm") || strings.Contains(text, "square"):
			if v, ok := FirstFloat(text); ok {
				l.LivingAreaSqm = &v
			}
		case strings.Contains(text, "location") || strings.Contains(text, "region"):
			l.AddressText = Squish(s.Text())
		}
	})

	doc.Find(`img[src*="ruaha-assets-app-bucket"]`).Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && src != "" {
			l.Images = append(l.Images, src)
		}
	})

	doc.Find(`a[href^="tel:"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if phone := NormalizePhone(href); phone != "" {
			l.AgentPhone = phone
			return false
		}
		return true
	})

	return l, nil
}
