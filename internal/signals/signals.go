// Package signals detects contact details and promotional language in review
// text. Detection is advisory: it flags rows for audit and never changes them.
package signals

import (
	"regexp"
	"strings"
)

var (
	urlPattern   = regexp.MustCompile(`(?i)(https?://|www\.)[\w\-@:%._+~#=]{2,256}\.[a-z]{2,6}\b[^\s]*`)
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9.-]+`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\-\s()]{7,}\d`)

	telegramPattern = regexp.MustCompile(`(?i)(t\.me/[^\s]+|@[\w]{4,})`)
	whatsappPattern = regexp.MustCompile(`(?i)(wa\.me/\d+|WhatsApp\s*[:\-]?\s*\+?\d+)`)
	dmPattern       = regexp.MustCompile(`(?i)\b(dm|message|pm)\b(\s*(me|us)\b)?`)
)

// PromoKeywords are matched case-insensitively anywhere in the text.
var PromoKeywords = []string{
	"promo code", "use code", "discount", "referral", "coupon",
	"limited time offer", "sale", "get your",
}

// CallToActionKeywords are matched case-insensitively anywhere in the text.
var CallToActionKeywords = []string{
	"subscribe", "join", "click here", "dm me", "message me",
	"call now", "sign up", "follow us", "visit now", "book now", "follow me",
}

// Social handle sub-signal names.
const (
	Telegram = "telegram"
	WhatsApp = "whatsapp"
	DM       = "dm"
)

// FindURLs returns every http(s):// or www. link in order of appearance.
func FindURLs(text string) []string {
	return urlPattern.FindAllString(text, -1)
}

// FindEmails returns every email address in order of appearance.
func FindEmails(text string) []string {
	return emailPattern.FindAllString(text, -1)
}

// FindPhoneNumbers returns digit runs that look like phone numbers.
func FindPhoneNumbers(text string) []string {
	return phonePattern.FindAllString(text, -1)
}

// FindSocialHandles groups messaging-handle matches by sub-signal. Sub-signals
// with no match are omitted, so clean text yields an empty map.
func FindSocialHandles(text string) map[string][]string {
	found := make(map[string][]string)
	if m := telegramPattern.FindAllString(text, -1); len(m) > 0 {
		found[Telegram] = m
	}
	if m := whatsappPattern.FindAllString(text, -1); len(m) > 0 {
		found[WhatsApp] = m
	}
	if m := dmPattern.FindAllString(text, -1); len(m) > 0 {
		for i := range m {
			m[i] = strings.TrimSpace(m[i])
		}
		found[DM] = m
	}
	return found
}

// HasPromoLanguage reports whether any promo keyword occurs in text.
func HasPromoLanguage(text string) bool {
	return containsAny(strings.ToLower(text), PromoKeywords)
}

// HasCallToAction reports whether any call-to-action keyword occurs in text.
func HasCallToAction(text string) bool {
	return containsAny(strings.ToLower(text), CallToActionKeywords)
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
