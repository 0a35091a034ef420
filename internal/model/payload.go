package model

// DefaultStatus is the status reported by every dispatch
const DefaultStatus = "deu certo"

// WebhookPayload represents the body posted to the webhook endpoint
type WebhookPayload struct {
	Status string `json:"status"`
}

// NewWebhookPayload creates the payload reported on each dispatch
func NewWebhookPayload() WebhookPayload {
	return WebhookPayload{Status: DefaultStatus}
}
