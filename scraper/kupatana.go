package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/luxapientia/wanyumba-scrapper/config"
	"github.com/luxapientia/wanyumba-scrapper/models"
)

var kupatanaDetailRe = regexp.MustCompile(`/tz/.+/p/.+`)

// Kupatana scrapes kupatana.com's real-estate search.
type Kupatana struct {
	cfg *config.SiteConfig
}

func NewKupatana(cfg *config.SiteConfig) *Kupatana {
	return &Kupatana{cfg: cfg}
}

func (k *Kupatana) Site() string       { return k.cfg.ID }
func (k *Kupatana) Pagination() string { return PaginationPaged }

func (k *Kupatana) IndexURL(page int) string {
	if page <= 1 {
		return k.cfg.BaseURL + "/tz/search/real-estate"
	}
	return fmt.Sprintf("%s/tz/search/real-estate?page=%d", k.cfg.BaseURL, page)
}

func (k *Kupatana) IsEndOfResults(doc *goquery.Document) bool {
	if doc.Find("div.error-404").Length() > 0 {
		return true
	}
	// A well-formed search page with an empty product list means the
	// pagination ran past the end.
	list := doc.Find("div.search-product-list")
	return list.Length() > 0 && list.Find("div.product-list__item").Length() == 0
}

func (k *Kupatana) ParseIndex(doc *goquery.Document) []models.BasicListing {
	var cards []models.BasicListing
	doc.Find("div.product-list__item").Each(func(_ int, s *goquery.Selection) {
		href := ""
		s.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			h, _ := a.Attr("href")
			if kupatanaDetailRe.MatchString(h) {
				href = h
				return false
			}
			return true
		})
		url := AbsoluteURL(k.cfg.BaseURL, href)
		if url == "" {
			return
		}

		title := Squish(s.Find("h3.product-item__title").First().Text())
		price, currency := ParsePrice(s.Find("div.product-item__price").First().Text())

		cards = append(cards, models.BasicListing{
			URL:      url,
			Title:    title,
			Price:    price,
			Currency: currency,
		})
	})
	return cards
}

func (k *Kupatana) ParseDetail(doc *goquery.Document, rawURL string) (*models.Listing, error) {
	l := &models.Listing{}

	l.Title = Squish(doc.Find("h1.product-details__title").First().Text())
	l.ListingType = ListingTypeFromTitle(l.Title)

	price, currency := ParsePrice(doc.Find("h2.product-details__price").First().Text())
	l.Price = price
	l.PriceCurrency = currency

	loc := Squish(doc.Find("p.product-details__meta span.product-details__location").First().Text())
	if loc == "" {
		loc = Squish(doc.Find("span.product-details__location").First().Text())
	}
	if loc != "" {
		l.AddressText = loc
		parts := strings.Split(loc, ",")
		if len(parts) >= 2 {
			l.District = strings.TrimSpace(parts[0])
			l.Region = strings.TrimSpace(parts[1])
		} else {
			l.Region = strings.TrimSpace(parts[0])
		}
	}
	l.Country = "Tanzania"

	l.Description = Squish(doc.Find("p.product-details__description--text").First().Text())

	doc.Find("img.image-gallery-image").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && src != "" {
			l.Images = append(l.Images, AbsoluteURL(k.cfg.BaseURL, src))
		}
	})

	l.AgentName = Squish(doc.Find("h4.product-chat__avatar__title").First().Text())

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
