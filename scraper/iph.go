package scraper

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/luxapientia/wanyumba-scrapper/config"
	"github.com/luxapientia/wanyumba-scrapper/models"
)

// IPH scrapes iph.co.tz/properties.
type IPH struct {
	cfg *config.SiteConfig
}

func NewIPH(cfg *config.SiteConfig) *IPH {
	return &IPH{cfg: cfg}
}

func (p *IPH) Site() string       { return p.cfg.ID }
func (p *IPH) Pagination() string { return PaginationPaged }

func (p *IPH) IndexURL(page int) string {
	if page <= 1 {
		return p.cfg.BaseURL + "/properties"
	}
	return fmt.Sprintf("%s/properties?page=%d", p.cfg.BaseURL, page)
}

func (p *IPH) IsEndOfResults(doc *goquery.Document) bool {
	// Pagination links stop rendering once past the last page.
	return doc.Find("div.property-listing").Length() == 0 &&
		doc.Find("ul.pagination").Length() > 0
}

func (p *IPH) ParseIndex(doc *goquery.Document) []models.BasicListing {
	var cards []models.BasicListing
	doc.Find("div.property-listing").Each(func(_ int, s *goquery.Selection) {
		href := ""
		s.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			h, _ := a.Attr("href")
			if h != "" && !strings.HasPrefix(h, "#") {
				href = h
				return false
			}
			return true
		})
		url := AbsoluteURL(p.cfg.BaseURL, href)
		if url == "" {
			return
		}

		title := Squish(s.Find("h4.listing-name").First().Text())
		price, currency := ParsePrice(s.Find("h6.listing-card-info-price").First().Text())

		cards = append(cards, models.BasicListing{
			URL:      url,
			Title:    title,
			Price:    price,
			Currency: currency,
		})
	})
	return cards
}

func (p *IPH) ParseDetail(doc *goquery.Document, rawURL string) (*models.Listing, error) {
	l := &models.Listing{}

	l.Title = Squish(doc.Find("h1").First().Text())
	if l.Title == "" {
		l.Title = Squish(doc.Find("div.prt-detail-title-desc h3").First().Text())
	}

	if lt := strings.ToLower(Squish(doc.Find("span.prt-types").First().Text())); lt != "" {
		switch {
		case strings.Contains(lt, "rent"):
			l.ListingType = models.ListingTypeRent
		case strings.Contains(lt, "sale") || strings.Contains(lt, "sell"):
			l.ListingType = models.ListingTypeSale
		}
	}
	if l.ListingType == "" {
		l.ListingType = ListingTypeFromTitle(l.Title)
	}
	l.Country = "Tanzania"

	l.Price, l.PriceCurrency = ParsePrice(doc.Find("h3.prt-price-fix").First().Text())

	// Location renders next to a map-marker icon inside the title block.
	doc.Find("div.prt-detail-title-desc i.lni-map-marker").Each(func(_ int, s *goquery.Selection) {
		if loc := Squish(s.Parent().Text()); loc != "" {
			l.AddressText = loc
		}
	})

	doc.Find("ul.detail_features li").Each(func(_ int, s *goquery.Selection) {
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
		case strings.Contains(text, "sqm") || strings.Contains(text, "area"):
			if v, ok := FirstFloat(text); ok {
				l.LivingAreaSqm = &v
			}
		}
	})

	l.Description = Squish(doc.Find("div.block-body").First().Text())

	doc.Find("ul.list-gallery-inline a.mfp-gallery").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok && href != "" {
			l.Images = append(l.Images, AbsoluteURL(p.cfg.BaseURL, href))
		}
	})

	agent := doc.Find("div.sides-widget").First()
	l.AgentName = Squish(agent.Find("h4").First().Text())
	agent.Find(`a[href^="tel:"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if phone := NormalizePhone(href); phone != "" {
			l.AgentPhone = phone
			return false
		}
		return true
	})
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
