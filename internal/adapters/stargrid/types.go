package stargrid

// StarGrid routing API wire types.
// POST /api/v1/routes

// RouteRequest is the payload for requesting routes from StarGrid.
type RouteRequest struct {
	SrcChainID  int64  `json:"srcChainId"`
	DstChainID  int64  `json:"dstChainId"`
	SrcToken    string `json:"srcToken"`
	DstToken    string `json:"dstToken"`
	AmountIn    string `json:"amountIn"` // smallest units
	SlippageBps int64  `json:"slippageBps"`
}

// RouteResponse is StarGrid's routing response. StarGrid returns at most one
// route per pool; fee is expressed in basis points on amountIn.
type RouteResponse struct {
	Routes []Route `json:"routes"`
}

// Route is one StarGrid route.
type Route struct {
	PoolID        string `json:"poolId"`
	AmountOut     string `json:"amountOut"`
	FeeBps        int64  `json:"feeBps"`
	NeedsApproval bool   `json:"needsApproval"`
	NeedsSwap     bool   `json:"needsSwap"` // destination-side swap leg
	EtaSeconds    int64  `json:"etaSeconds"`
}

// ErrorResponse is StarGrid's error body.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
