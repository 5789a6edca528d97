package signals

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindURLs(t *testing.T) {
	urls := FindURLs("See https://example.com/menu?x=1 or WWW.Diner.org today")
	require.Len(t, urls, 2)
	assert.Equal(t, "https://example.com/menu?x=1", urls[0])
	assert.Equal(t, "WWW.Diner.org", urls[1])

	assert.Empty(t, FindURLs("no links in this one"))
}

func TestFindEmails(t *testing.T) {
	emails := FindEmails("write to owner.name+vt@maple-farm.co.uk for bookings")
	assert.Equal(t, []string{"owner.name+vt@maple-farm.co.uk"}, emails)
}

func TestFindPhoneNumbers(t *testing.T) {
	phones := FindPhoneNumbers("Call +1 (802) 555-0199 now, table for 2")
	require.Len(t, phones, 1)
	assert.Equal(t, "+1 (802) 555-0199", phones[0])

	assert.Empty(t, FindPhoneNumbers("We waited 45 minutes for 3 plates"))
}

func TestFindSocialHandles(t *testing.T) {
	handles := FindSocialHandles("message me at whatsapp")
	assert.NotEmpty(t, handles[DM])
	assert.Equal(t, "message me", handles[DM][0])
	assert.NotContains(t, handles, WhatsApp)

	handles = FindSocialHandles("join t.me/cheapdeals or WhatsApp: +15551234567, ping @dealz_vt")
	assert.Equal(t, []string{"t.me/cheapdeals", "@dealz_vt"}, handles[Telegram])
	assert.Equal(t, []string{"WhatsApp: +15551234567"}, handles[WhatsApp])
}

func TestFindSocialHandlesClean(t *testing.T) {
	handles := FindSocialHandles("Lovely maple creemees and friendly staff.")
	assert.NotNil(t, handles)
	assert.Empty(t, handles)
}

func TestKeywordDetectors(t *testing.T) {
	tests := []struct {
		text  string
		promo bool
		cta   bool
	}{
		{"Use code VT10 for a DISCOUNT", true, false},
		{"Click HERE to book now", false, true},
		{"Limited time offer, sign up today", true, true},
		{"Quiet cafe with good coffee", false, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.promo, HasPromoLanguage(tt.text), "promo for %q", tt.text)
		assert.Equal(t, tt.cta, HasCallToAction(tt.text), "cta for %q", tt.text)
	}
}

func TestScan(t *testing.T) {
	r := Scan("Great pizza. DM me for a coupon! www.pizzadeals.biz")
	assert.True(t, r.Flagged())
	assert.Equal(t, []string{"url", "handle:dm", "promo", "cta"}, r.Kinds())
	assert.Equal(t, "url,handle:dm,promo,cta", r.String())

	clean := Scan("The pancakes were fluffy and the staff friendly.")
	assert.False(t, clean.Flagged())
	assert.Empty(t, clean.Kinds())
}

func TestRedact(t *testing.T) {
	got := Redact("Email bob@example.com, call 802-555-0199 or see https://spam.example.com/x")
	assert.Equal(t, "Email [email], call [phone] or see [url]", got)
}
