package whatsapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Message types the bridge understands. Anything else is reported back to the
// user as unsupported by the worker.
const (
	TypeText     = "text"
	TypeLocation = "location"
	TypeErrors   = "errors" // Meta sends "errors" for unsupported media (video notes, polls, ...)
)

var (
	// ErrNotTargetNumber marks deliveries addressed to a different business
	// phone number. They are acknowledged and ignored.
	ErrNotTargetNumber = errors.New("webhook not intended for the configured business number")

	// ErrStatusUpdate marks delivery/read receipts. They are acknowledged
	// and ignored.
	ErrStatusUpdate = errors.New("webhook is a status update")
)

// Incoming is one user message extracted from a webhook delivery.
type Incoming struct {
	MessageID    string
	Sender       string
	Type         string
	Body         string  // text body for text messages
	Latitude     float64 // set for location messages
	Longitude    float64
	SentUnixTime int64 // 0 when the vendor omitted the timestamp
}

// Webhook payload structure per the Meta WhatsApp Business API.
type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Metadata *struct {
					PhoneNumberID string `json:"phone_number_id"`
				} `json:"metadata"`
				Statuses []json.RawMessage `json:"statuses"`
				Messages []struct {
					ID        string `json:"id"`
					From      string `json:"from"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      *struct {
						Body string `json:"body"`
					} `json:"text"`
					Location *struct {
						Latitude  float64 `json:"latitude"`
						Longitude float64 `json:"longitude"`
					} `json:"location"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParseWebhook extracts the first user message from a webhook delivery body.
// businessPhoneNumberID is the configured target number; deliveries for other
// numbers return ErrNotTargetNumber, receipts return ErrStatusUpdate, and
// structurally invalid payloads return a plain error. All three are
// acknowledged upstream either way.
func ParseWebhook(body []byte, businessPhoneNumberID string) (*Incoming, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("invalid webhook JSON: %w", err)
	}

	if payload.Object == "" || len(payload.Entry) == 0 || len(payload.Entry[0].Changes) == 0 {
		return nil, errors.New("invalid webhook payload: missing object/entry/changes")
	}

	value := payload.Entry[0].Changes[0].Value
	if value.Metadata == nil || value.Metadata.PhoneNumberID == "" {
		return nil, errors.New("invalid webhook payload: missing metadata.phone_number_id")
	}

	if value.Metadata.PhoneNumberID != businessPhoneNumberID {
		return nil, ErrNotTargetNumber
	}

	if len(value.Statuses) > 0 {
		return nil, ErrStatusUpdate
	}

	if len(value.Messages) == 0 {
		return nil, errors.New("invalid webhook payload: no messages")
	}

	raw := value.Messages[0]
	if raw.ID == "" || raw.From == "" {
		return nil, errors.New("invalid webhook payload: message missing id or sender")
	}

	msg := &Incoming{
		MessageID: raw.ID,
		Sender:    raw.From,
		Type:      raw.Type,
	}
	if msg.Type == "" {
		msg.Type = TypeErrors
	}

	if raw.Timestamp != "" {
		ts, err := strconv.ParseInt(raw.Timestamp, 10, 64)
		if err != nil {
			// A bad timestamp is not fatal: the freshness gate treats the
			// message as fresh when no timestamp is available.
			msg.SentUnixTime = 0
		} else {
			msg.SentUnixTime = ts
		}
	}

	switch msg.Type {
	case TypeText:
		if raw.Text != nil {
			msg.Body = raw.Text.Body
		}
	case TypeLocation:
		if raw.Location != nil {
			msg.Latitude = raw.Location.Latitude
			msg.Longitude = raw.Location.Longitude
		}
	}

	return msg, nil
}
