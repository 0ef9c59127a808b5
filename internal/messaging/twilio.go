// Package messaging connects the lead pipeline to Twilio: it validates and
// parses inbound webhooks and sends replies over SMS and WhatsApp.
package messaging

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/wolfman30/leadqual-platform/internal/leads"
)

const whatsappPrefix = "whatsapp:"

// ValidateTwilioSignature validates that a request came from Twilio.
func ValidateTwilioSignature(r *http.Request, authToken, webhookURL string) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}
	if err := r.ParseForm(); err != nil {
		return false
	}
	expected := computeSignature(buildSignaturePayload(webhookURL, r.PostForm), authToken)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// buildSignaturePayload is the URL followed by every POST param, sorted by key.
func buildSignaturePayload(url string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var payload strings.Builder
	payload.WriteString(url)
	for _, key := range keys {
		for _, value := range params[key] {
			payload.WriteString(key)
			payload.WriteString(value)
		}
	}
	return payload.String()
}

func computeSignature(data, key string) string {
	h := hmac.New(sha1.New, []byte(key))
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// TwilioWebhookRequest represents an incoming Twilio message webhook.
type TwilioWebhookRequest struct {
	MessageSid string
	AccountSid string
	From       string
	To         string
	Body       string
	NumMedia   string
	Channel    leads.Channel
}

// ParseTwilioWebhook parses the form body. The channel is WhatsApp when From
// carries the whatsapp: prefix and SMS otherwise; From is returned as E.164.
func ParseTwilioWebhook(r *http.Request) (*TwilioWebhookRequest, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("messaging: parse form: %w", err)
	}
	from := strings.TrimSpace(r.FormValue("From"))
	channel := leads.ChannelSMS
	if strings.HasPrefix(strings.ToLower(from), whatsappPrefix) {
		channel = leads.ChannelWhatsApp
		from = from[len(whatsappPrefix):]
	}
	return &TwilioWebhookRequest{
		MessageSid: strings.TrimSpace(r.FormValue("MessageSid")),
		AccountSid: r.FormValue("AccountSid"),
		From:       leads.NormalizePhone(from),
		To:         strings.TrimPrefix(r.FormValue("To"), whatsappPrefix),
		Body:       r.FormValue("Body"),
		NumMedia:   r.FormValue("NumMedia"),
		Channel:    channel,
	}, nil
}

// buildAbsoluteURL reconstructs the public URL Twilio signed, honoring proxy headers.
func buildAbsoluteURL(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	if r.URL.Scheme != "" {
		return r.URL.String()
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
		if r.TLS == nil {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, r.URL.RequestURI())
}
