package scraper

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/luxapientia/wanyumba-scrapper/config"
	"github.com/luxapientia/wanyumba-scrapper/models"
)

// BeForward scrapes homes.beforward.jp's Tanzania section. The site
// splits search into listing-type/property-type categories; the sweep
// walks the buy/house category, which carries nearly the whole
// Tanzanian stock. Widening to more categories is a config change away
// via base_url.
type BeForward struct {
	cfg *config.SiteConfig
}

func NewBeForward(cfg *config.SiteConfig) *BeForward {
	return &BeForward{cfg: cfg}
}

func (b *BeForward) Site() string       { return b.cfg.ID }
func (b *BeForward) Pagination() string { return PaginationPaged }

func (b *BeForward) IndexURL(page int) string {
	base := b.cfg.BaseURL + "/search/buy/house/all/tanzania"
	if page <= 1 {
		return base
	}
	return fmt.Sprintf("%s?page=%d", base, page)
}

func (b *BeForward) IsEndOfResults(doc *goquery.Document) bool {
	return false
}

func (b *BeForward) ParseIndex(doc *goquery.Document) []models.BasicListing {
	var cards []models.BasicListing
	doc.Find(`a[href*="/detail/"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		url := AbsoluteURL(b.cfg.BaseURL, href)
		if url == "" {
			return
		}

		title := Squish(s.Find("h3").First().Text())
		if title == "" {
			title = Squish(s.Find("div.title").First().Text())
		}

		priceText := s.Find("span.price").First().Text()
		if priceText == "" {
			priceText = s.Find("div.price").First().Text()
		}
		price, currency := ParsePrice(priceText)

		cards = append(cards, models.BasicListing{
			URL:      url,
			Title:    title,
			Price:    price,
			Currency: currency,
		})
	})
	return cards
}

func (b *BeForward) ParseDetail(doc *goquery.Document, rawURL string) (*models.Listing, error) {
	l := &models.Listing{}

	l.Title = Squish(doc.Find("h1").First().Text())
	if l.Title == "" {
		if t := doc.Find("title").First().Text(); t != "" {
			l.Title = Squish(strings.SplitN(t, "|", 2)[0])
		}
	}
	l.ListingType = ListingTypeFromTitle(l.Title)
	if l.ListingType == "" {
		l.ListingType = models.ListingTypeSale
	}
	l.PropertyType = "house"
	l.Country = "Tanzania"

	priceText := doc.Find("span.price").First().Text()
	if priceText == "" {
		priceText = findLineContaining(doc.Find("body").Text(), "USD", "TSh", "$")
	}
	l.Price, l.PriceCurrency = ParsePrice(priceText)

	if loc := Squish(doc.Find("span.location, div.location").First().Text()); loc != "" {
		l.AddressText = loc
	}

	doc.Find("div.property-details span, div.property-details div").Each(func(_ int, s *goquery.Selection) {
		text := strings.ToLower(Squish(s.Text()))
		switch {
		case strings.Contains(text, "bed"):
			if n, ok := FirstInt(text); ok {
				l.Bedrooms = &n
			}
		case strings.Contains(text, "bath"):
			if n, ok := FirstInt(text); ok {
				l.Bathrooms = &n
			}
		case strings.Contains(text, "sqm") || strings.Contains(text, "m²"):
			if v, ok := FirstFloat(text); ok {
				l.LivingAreaSqm = &v
			}
		}
	})

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if src == "" || strings.Contains(src, "logo") || strings.Contains(src, "icon") {
			return
		}
		l.Images = append(l.Images, AbsoluteURL(b.cfg.BaseURL, src))
	})

	// Agent contact is buried in free-form paragraphs.
	doc.Find("p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if !strings.Contains(strings.ToLower(text), "agent") {
			return true
		}
		if name := Squish(s.Find("b, strong").First().Text()); name != "" {
			l.AgentName = name
		}
		return false
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
