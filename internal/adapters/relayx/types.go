package relayx

// RelayX quote API wire types.
// POST /v1/quote

// QuoteRequest is the payload for requesting a quote from RelayX.
type QuoteRequest struct {
	OriginChainID      int64  `json:"originChainId"`
	DestinationChainID int64  `json:"destinationChainId"`
	OriginToken        string `json:"originCurrency"`
	DestinationToken   string `json:"destinationCurrency"`
	Amount             string `json:"amount"` // smallest units, decimal string
	Recipient          string `json:"recipient,omitempty"`
	SlippageBps        int64  `json:"slippageTolerance,omitempty"`
}

// QuoteResponse is RelayX's quote response.
type QuoteResponse struct {
	QuoteID       string      `json:"quoteId"`
	AmountOut     string      `json:"amountOut"`
	MinAmountOut  string      `json:"minAmountOut"`
	TotalFee      FeeDetail   `json:"totalFee"`
	TimeEstimate  int64       `json:"timeEstimateSeconds"`
	Legs          []LegDetail `json:"legs"`
	ExpiresInSecs int64       `json:"expiresInSeconds,omitempty"`
}

// FeeDetail is one fee amount denominated in a specific token.
type FeeDetail struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"` // token address on origin chain
}

// LegDetail is one execution leg of a RelayX route.
type LegDetail struct {
	Action       string    `json:"action"` // approve | swap | bridge
	ChainID      int64     `json:"chainId"`
	ToChainID    int64     `json:"toChainId,omitempty"`
	TokenIn      string    `json:"tokenIn"`
	TokenOut     string    `json:"tokenOut"`
	AmountIn     string    `json:"amountIn"`
	AmountOut    string    `json:"amountOut"`
	Fee          FeeDetail `json:"fee"`
	TimeEstimate int64     `json:"timeEstimateSeconds"`
}

// ErrorResponse is RelayX's error body.
type ErrorResponse struct {
	Code    string `json:"code"` // e.g. "UNSUPPORTED_ROUTE"
	Message string `json:"message"`
}
