package models

// InboundMessage is the queue envelope for an accepted webhook delivery.
// Used across gateway, messaging, and processing layers.
type InboundMessage struct {
	DeliveryID   string  `json:"DeliveryID"`   // Vendor message ID, stable across redeliveries
	Sender       string  `json:"Sender"`       // WhatsApp number of the sender
	MessageType  string  `json:"MessageType"`  // text, location, image, ...
	Body         string  `json:"Body"`         // Text body for text messages, empty otherwise
	Latitude     float64 `json:"Latitude,omitempty"`
	Longitude    float64 `json:"Longitude,omitempty"`
	SentUnixTime int64   `json:"SentUnixTime"` // Origination timestamp reported by the vendor
	ReceivedAt   string  `json:"ReceivedAt"`   // RFC3339Nano, stamped by the gateway
}
