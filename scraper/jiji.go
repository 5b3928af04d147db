package scraper

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/luxapientia/wanyumba-scrapper/config"
	"github.com/luxapientia/wanyumba-scrapper/models"
)

// Jiji scrapes jiji.co.tz/real-estate. Contact phone numbers are hidden
// behind a reveal button on detail pages, so Jiji implements
// DetailPreparer to click it before parsing.
type Jiji struct {
	cfg *config.SiteConfig
}

func NewJiji(cfg *config.SiteConfig) *Jiji {
	return &Jiji{cfg: cfg}
}

func (j *Jiji) Site() string       { return j.cfg.ID }
func (j *Jiji) Pagination() string { return PaginationPaged }

func (j *Jiji) IndexURL(page int) string {
	if page <= 1 {
		return j.cfg.BaseURL + "/real-estate"
	}
	return fmt.Sprintf("%s/real-estate?page=%d", j.cfg.BaseURL, page)
}

func (j *Jiji) ParseIndex(doc *goquery.Document) []models.BasicListing {
	var cards []models.BasicListing
	doc.Find("a.b-list-advert-base").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		url := AbsoluteURL(j.cfg.BaseURL, href)
		if url == "" {
			return
		}

		title := Squish(s.Find("div.b-list-advert__item-title").First().Text())
		if title == "" {
			title = Squish(s.Find("div.b-advert-title-inner").First().Text())
		}
		if title == "" {
			title = Squish(s.Find("h3").First().Text())
		}

		priceText := s.Find("div.qa-advert-price").First().Text()
		if priceText == "" {
			priceText = s.Find("div.b-list-advert__item-price, div.b-advert-price, span.qa-advert-price-view-value").First().Text()
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

func (j *Jiji) IsEndOfResults(doc *goquery.Document) bool {
	// Jiji serves an empty advert list rather than a 404 shell.
	return doc.Find("a.b-list-advert-base").Length() == 0 &&
		doc.Find("div.b-list-adverts").Length() == 0
}

// PrepareDetail clicks the reveal-contact button so phone numbers are
// present in the DOM when ParseDetail runs.
func (j *Jiji) PrepareDetail(ctx context.Context, p Pager) error {
	return p.Click(ctx, ".qa-show-contact, .js-show-contact")
}

func (j *Jiji) ParseDetail(doc *goquery.Document, rawURL string) (*models.Listing, error) {
	l := &models.Listing{}

	l.Title = Squish(doc.Find("h1").First().Text())
	l.ListingType = ListingTypeFromTitle(l.Title)

	price, currency := ParsePrice(doc.Find("span.qa-advert-price-view-value").First().Text())
	l.Price = price
	l.PriceCurrency = currency

	// Location line reads "District, Region, Tanzania, 43 min ago".
	if loc := Squish(doc.Find("div.b-advert-info-statistics--region").First().Text()); loc != "" {
		parts := strings.Split(loc, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 {
			l.District = parts[0]
			l.Region = parts[1]
		}
		if len(parts) >= 3 {
			l.AddressText = strings.Join(parts[:3], ", ")
		} else {
			l.AddressText = loc
		}
	}
	l.Country = "Tanzania"

	desc := doc.Find("div.qa-advert-description span.qa-description-text").First().Text()
	if desc == "" {
		desc = doc.Find("div.qa-advert-description").First().Text()
	}
	l.Description = Squish(desc)

	doc.Find("div.b-advert-icon-attribute span").Each(func(_ int, s *goquery.Selection) {
		text := strings.ToLower(Squish(s.Text()))
		switch {
		case text == "house" || text == "apartment" || text == "villa" ||
			text == "bungalow" || text == "flat" || text == "studio" ||
			text == "land" || text == "commercial property":
			l.PropertyType = text
		case strings.Contains(text, "bedroom"):
			if n, ok := FirstInt(text); ok {
				l.Bedrooms = &n
			}
		case strings.Contains(text, "bathroom"):
			if n, ok := FirstInt(text); ok {
				l.Bathrooms = &n
			}
		}
	})

	doc.Find("div.b-advert-attribute").Each(func(_ int, s *goquery.Selection) {
		key := strings.ToLower(Squish(s.Find("div.b-advert-attribute__key").Text()))
		val := Squish(s.Find("div.b-advert-attribute__value").Text())
		switch {
		case strings.Contains(key, "property size") || strings.Contains(key, "square"):
			if v, ok := FirstFloat(val); ok {
				l.LivingAreaSqm = &v
			}
		case strings.Contains(key, "land size") || strings.Contains(key, "plot"):
			if v, ok := FirstFloat(val); ok {
				l.LandAreaSqm = &v
			}
		}
	})

	doc.Find("img.b-slider-image").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && src != "" {
			l.Images = append(l.Images, src)
		}
	})

	l.AgentName = Squish(doc.Find("div.b-seller-block__name").First().Text())

	phoneSelectors := []string{
		"div.b-show-contacts-popover-item__phone",
		"span.qa-show-contact-phone",
		"div.b-seller-contacts__phone",
	}
	for _, sel := range phoneSelectors {
		if l.AgentPhone != "" {
			break
		}
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if phone := NormalizePhone(s.Text()); phone != "" {
				l.AgentPhone = phone
				return false
			}
			return true
		})
	}
	if l.AgentPhone == "" {
		doc.Find(`a[href^="tel:"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, _ := s.Attr("href")
			if phone := NormalizePhone(href); phone != "" {
				l.AgentPhone = phone
				return false
			}
			return true
		})
	}

	return l, nil
}
