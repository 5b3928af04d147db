package scraper

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/luxapientia/wanyumba-scrapper/config"
	"github.com/luxapientia/wanyumba-scrapper/models"
)

// SevenEstate scrapes www.sevenestate.co.tz/search.php.
type SevenEstate struct {
	cfg *config.SiteConfig
}

func NewSevenEstate(cfg *config.SiteConfig) *SevenEstate {
	return &SevenEstate{cfg: cfg}
}

func (se *SevenEstate) Site() string       { return se.cfg.ID }
func (se *SevenEstate) Pagination() string { return PaginationPaged }

func (se *SevenEstate) IndexURL(page int) string {
	return fmt.Sprintf("%s/search.php?page=%d", se.cfg.BaseURL, page)
}

func (se *SevenEstate) IsEndOfResults(doc *goquery.Document) bool {
	return false
}

func (se *SevenEstate) ParseIndex(doc *goquery.Document) []models.BasicListing {
	var cards []models.BasicListing
	doc.Find("article").Each(func(_ int, s *goquery.Selection) {
		href := ""
		s.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			h, _ := a.Attr("href")
			if h != "" && !strings.HasPrefix(h, "#") {
				href = h
				return false
			}
			return true
		})
		url := AbsoluteURL(se.cfg.BaseURL, href)
		if url == "" {
			return
		}

		title := Squish(s.Find("h4").First().Text())
		if title == "" {
			title = Squish(s.Find("h3").First().Text())
		}
		if title == "" {
			title = Squish(s.Find("div.item_location").First().Text())
		}

		price, currency := ParsePrice(s.Find("div.price_area").First().Text())

		cards = append(cards, models.BasicListing{
			URL:      url,
			Title:    title,
			Price:    price,
			Currency: currency,
		})
	})
	return cards
}

func (se *SevenEstate) ParseDetail(doc *goquery.Document, rawURL string) (*models.Listing, error) {
	l := &models.Listing{}

	l.Title = Squish(doc.Find("h1").First().Text())
	if l.Title == "" {
		l.Title = Squish(doc.Find("h2").First().Text())
	}
	l.ListingType = ListingTypeFromTitle(l.Title)
	l.Country = "Tanzania"

	l.Price, l.PriceCurrency = ParsePrice(doc.Find("div.price_area").First().Text())
	if l.Price == nil {
		l.Price, l.PriceCurrency = ParsePrice(findLineContaining(doc.Find("body").Text(), "TSh", "TZS", "USD"))
	}

	if loc := Squish(doc.Find("div.item_location").First().Text()); loc != "" {
		l.AddressText = loc
		parts := strings.Split(loc, ",")
		if len(parts) >= 2 {
			l.District = strings.TrimSpace(parts[0])
			l.Region = strings.TrimSpace(parts[1])
		}
	}

	doc.Find("li").Each(func(_ int, s *goquery.Selection) {
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
		case strings.Contains(text, "sqm") || strings.Contains(text, "square meter"):
			if v, ok := FirstFloat(text); ok {
				l.LivingAreaSqm = &v
			}
		}
	})

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if src == "" {
			src, _ = s.Attr("data-src")
		}
		if src == "" || strings.Contains(src, "logo") || strings.Contains(src, "icon") {
			return
		}
		l.Images = append(l.Images, AbsoluteURL(se.cfg.BaseURL, src))
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
