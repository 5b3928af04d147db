package scraper

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	numberRe = regexp.MustCompile(`[\d][\d,. ]*`)
	digitsRe = regexp.MustCompile(`\d+`)
	phoneRe  = regexp.MustCompile(`^0\d{9}$`)
)

// ParsePrice pulls a currency code and numeric amount out of a raw price
// string like "TSh 1,200,000 / month" or "USD 5,000".
func ParsePrice(text string) (*float64, string) {
	text = Squish(text)
	if text == "" {
		return nil, ""
	}

	currency := ""
	switch {
	case strings.Contains(text, "TSh") || strings.Contains(text, "TZS"):
		currency = "TSh"
	case strings.Contains(text, "USD") || strings.Contains(text, "$"):
		currency = "USD"
	case strings.Contains(text, "€") || strings.Contains(text, "EUR"):
		currency = "EUR"
	}

	match := numberRe.FindString(text)
	if match == "" {
		return nil, currency
	}
	cleaned := strings.NewReplacer(",", "", " ", "").Replace(match)
	cleaned = strings.TrimRight(cleaned, ".")
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil, currency
	}
	return &value, currency
}

// FirstInt returns the first integer embedded in text, e.g. 3 from
// "3 bedrooms". Second result is false when there is none.
func FirstInt(text string) (int, bool) {
	match := digitsRe.FindString(text)
	if match == "" {
		return 0, false
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}
	return n, true
}

// FirstFloat returns the first number in text, tolerating thousands
// separators, e.g. 1200.5 from "1,200.5 sqm".
func FirstFloat(text string) (float64, bool) {
	match := numberRe.FindString(text)
	if match == "" {
		return 0, false
	}
	cleaned := strings.NewReplacer(",", "", " ", "").Replace(match)
	cleaned = strings.TrimRight(cleaned, ".")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Squish collapses all runs of whitespace to single spaces and trims.
func Squish(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// AbsoluteURL resolves href against base and strips the query string and
// fragment. Listing URLs are storage keys, so tracking parameters must
// never make the same listing look like two.
func AbsoluteURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if !u.IsAbs() {
		b, err := url.Parse(base)
		if err != nil {
			return ""
		}
		u = b.ResolveReference(u)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// ListingTypeFromTitle infers rent/sale/lease from listing title wording.
func ListingTypeFromTitle(title string) string {
	t := strings.ToLower(title)
	switch {
	case strings.Contains(t, "rent"):
		return "rent"
	case strings.Contains(t, "lease"):
		return "lease"
	case strings.Contains(t, "sale") || strings.Contains(t, "selling"):
		return "sale"
	}
	return ""
}

// NormalizePhone converts tel: href payloads to the local Tanzanian
// format, e.g. tel:+255784899175 becomes 0784899175.
func NormalizePhone(raw string) string {
	phone := strings.TrimPrefix(strings.TrimSpace(raw), "tel:")
	phone = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(phone)
	if strings.HasPrefix(phone, "+255") {
		phone = "0" + phone[4:]
	} else if strings.HasPrefix(phone, "255") && len(phone) == 12 {
		phone = "0" + phone[3:]
	}
	if !phoneRe.MatchString(phone) {
		return ""
	}
	return phone
}
