// Package extract locates ChickenCartel order ids in email content.
// It is pure: no I/O, no state, same inputs always give the same output.
package extract

import (
	"regexp"
	"strings"

	"cartelwatch/internal/models"
)

// Sender substrings that mark mail as coming from the vendor.
// dehamburgerij.nl is a sibling domain the vendor sends from.
var vendorSenderMarkers = []string{
	"chickencartel",
	"@chickencartel.nl",
	"dehamburgerij.nl",
}

const uuidExpr = `[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`

var uuidPattern = regexp.MustCompile(`(?i)` + uuidExpr)

// Ordered by priority: the first pattern with a match wins, later patterns
// are only tried when earlier ones found nothing.
var orderIDPatterns = []*regexp.Regexp{
	// Bare UUID.
	uuidPattern,
	// Order ID: <uuid>
	regexp.MustCompile(`(?i)order\s*id[:\s]+(` + uuidExpr + `)`),
	// Order: <uuid>
	regexp.MustCompile(`(?i)order[:\s]+(` + uuidExpr + `)`),
	// Bestelnummer: <uuid> (Dutch)
	regexp.MustCompile(`(?i)bestelnummer[:\s]+(` + uuidExpr + `)`),
	// UUID embedded in a vendor URL.
	regexp.MustCompile(`(?i)chickencartel\.nl.*?(` + uuidExpr + `)`),
	// UUID inside an href attribute value.
	regexp.MustCompile(`(?i)href=["']?[^"']*?(` + uuidExpr + `)`),
}

var (
	hrefPattern  = regexp.MustCompile(`(?i)href=["']?([^"'>\s]+)`)
	tagPattern   = regexp.MustCompile(`<[^>]+>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// IsVendorSender reports whether the sender address matches one of the
// vendor's known domains/keywords.
func IsVendorSender(sender string) bool {
	if sender == "" {
		return false
	}
	low := strings.ToLower(sender)
	for _, m := range vendorSenderMarkers {
		if strings.Contains(low, m) {
			return true
		}
	}
	return false
}

// FromText returns the first valid order id found by the highest-priority
// matching pattern, normalized to lowercase, or "" when nothing matched.
func FromText(text string) string {
	if text == "" {
		return ""
	}
	for _, p := range orderIDPatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		candidate := m[0]
		if len(m) > 1 {
			candidate = m[1]
		}
		if models.ValidateOrderID(candidate) {
			return models.NormalizeOrderID(candidate)
		}
	}
	return ""
}

// FromEmail extracts an order id from email content. Raw HTML is searched
// first so ids embedded in href attributes and URLs are found before any
// stripping; after that the subject, plain body, extracted href URLs and
// tag-stripped HTML are searched as one concatenated text. For mail from a
// vendor sender a last aggressive pass accepts any valid UUID anywhere in
// the text. Absent inputs are treated as empty strings; an empty return
// means nothing was found, which is not an error.
func FromEmail(subject, body, htmlBody, sender string) string {
	isVendor := IsVendorSender(sender)

	var sources []string
	if subject != "" {
		sources = append(sources, subject)
	}
	if body != "" {
		sources = append(sources, body)
	}
	if htmlBody != "" {
		if id := FromText(htmlBody); id != "" {
			return id
		}
		for _, m := range hrefPattern.FindAllStringSubmatch(htmlBody, -1) {
			sources = append(sources, m[1])
		}
		stripped := tagPattern.ReplaceAllString(htmlBody, " ")
		stripped = strings.TrimSpace(spacePattern.ReplaceAllString(stripped, " "))
		sources = append(sources, stripped)
	}

	combined := strings.Join(sources, " ")
	if id := FromText(combined); id != "" {
		return id
	}

	if isVendor && combined != "" {
		for _, m := range uuidPattern.FindAllString(combined, -1) {
			if models.ValidateOrderID(m) {
				return models.NormalizeOrderID(m)
			}
		}
	}
	return ""
}
