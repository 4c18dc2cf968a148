package model

import "time"

// TransactionStatusEvent is the wire payload carried inside the Envelope for
// lifecycle transition events. Consumers that only care about the status
// change can decode this without the full Transaction schema.
type TransactionStatusEvent struct {
	TransactionID string      `json:"transaction_id"`
	Account       string      `json:"account"`
	Provider      string      `json:"provider"`
	FromStatus    string      `json:"from_status"`
	ToStatus      string      `json:"to_status"`
	Transaction   Transaction `json:"transaction"`
	Timestamp     time.Time   `json:"timestamp"`
}
