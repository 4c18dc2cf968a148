package api

import (
	"github.com/etherlinkx/bridge-engine/pkg/model"
)

// RoutesResponse carries the ranked quotes for a route request, best first.
type RoutesResponse struct {
	Best         model.Quote   `json:"best"`
	Alternatives []model.Quote `json:"alternatives"`
}

// AcceptRequest is the body for accepting a quote.
type AcceptRequest struct {
	Account string `json:"account"`
}

// TransactionsResponse is one page of an account's transactions.
type TransactionsResponse struct {
	Transactions []model.Transaction `json:"transactions"`
	Page         int                 `json:"page"`
	PageSize     int                 `json:"page_size"`
	HasMore      bool                `json:"has_more"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
