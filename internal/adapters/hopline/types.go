package hopline

// Hopline transfer quote API wire types.
// GET /v1/transfer-quote

// QuoteResponse is Hopline's quote response.
type QuoteResponse struct {
	EstimatedReceived string `json:"estimatedReceived"` // smallest units
	BonderFee         string `json:"bonderFee"`
	DestinationTxFee  string `json:"destinationTxFee"`
	EstimatedSeconds  int64  `json:"estimatedSeconds"`
	RequiresApproval  bool   `json:"requiresApproval"`
	SwapOnDestination bool   `json:"swapOnDestination"`
}

// ErrorResponse is Hopline's error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
