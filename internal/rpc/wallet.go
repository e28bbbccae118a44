package rpc

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
)

// WalletServiceName is the fully-qualified name of the WalletService.
const WalletServiceName = "zehem.v1.WalletService"

const (
	WalletServiceGetBalanceProcedure     = "/zehem.v1.WalletService/GetBalance"
	WalletServiceListEntriesProcedure    = "/zehem.v1.WalletService/ListEntries"
	WalletServiceRecordActivityProcedure = "/zehem.v1.WalletService/RecordActivity"
	WalletServiceExchangeProcedure       = "/zehem.v1.WalletService/Exchange"
)

type GetBalanceRequest struct{}

type GetBalanceResponse struct {
	Coins int64 `json:"coins"`
}

type ListEntriesRequest struct {
	// Limit caps the number of entries, newest first. Zero returns all.
	Limit int `json:"limit,omitempty"`
}

type ListEntriesResponse struct {
	Entries []*LedgerEntry `json:"entries"`
}

// RecordActivityRequest reports a social action of the caller, such as
// post_created or comment_deleted, so the matching reward is applied.
type RecordActivityRequest struct {
	Action string `json:"action"`
}

type RecordActivityResponse struct {
	Entry *LedgerEntry `json:"entry"`
}

// ExchangeRequest buys or sells a fixed bundle of coins. Side is "buy" or
// "sell".
type ExchangeRequest struct {
	Side string `json:"side"`
}

type ExchangeResponse struct {
	Entry *LedgerEntry `json:"entry"`
}

// WalletServiceHandler is implemented by the wallet service.
type WalletServiceHandler interface {
	GetBalance(context.Context, *connect.Request[GetBalanceRequest]) (*connect.Response[GetBalanceResponse], error)
	ListEntries(context.Context, *connect.Request[ListEntriesRequest]) (*connect.Response[ListEntriesResponse], error)
	RecordActivity(context.Context, *connect.Request[RecordActivityRequest]) (*connect.Response[RecordActivityResponse], error)
	Exchange(context.Context, *connect.Request[ExchangeRequest]) (*connect.Response[ExchangeResponse], error)
}

// NewWalletServiceHandler builds an HTTP handler from the service
// implementation.
func NewWalletServiceHandler(svc WalletServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	mux := http.NewServeMux()
	mux.Handle(WalletServiceGetBalanceProcedure, connect.NewUnaryHandler(WalletServiceGetBalanceProcedure, svc.GetBalance, opts...))
	mux.Handle(WalletServiceListEntriesProcedure, connect.NewUnaryHandler(WalletServiceListEntriesProcedure, svc.ListEntries, opts...))
	mux.Handle(WalletServiceRecordActivityProcedure, connect.NewUnaryHandler(WalletServiceRecordActivityProcedure, svc.RecordActivity, opts...))
	mux.Handle(WalletServiceExchangeProcedure, connect.NewUnaryHandler(WalletServiceExchangeProcedure, svc.Exchange, opts...))
	return "/" + WalletServiceName + "/", mux
}

// WalletServiceClient is a client for the WalletService.
type WalletServiceClient struct {
	getBalance     *connect.Client[GetBalanceRequest, GetBalanceResponse]
	listEntries    *connect.Client[ListEntriesRequest, ListEntriesResponse]
	recordActivity *connect.Client[RecordActivityRequest, RecordActivityResponse]
	exchange       *connect.Client[ExchangeRequest, ExchangeResponse]
}

// NewWalletServiceClient constructs a client for the WalletService at baseURL.
func NewWalletServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *WalletServiceClient {
	opts = clientOptions(opts)
	return &WalletServiceClient{
		getBalance:     connect.NewClient[GetBalanceRequest, GetBalanceResponse](httpClient, baseURL+WalletServiceGetBalanceProcedure, opts...),
		listEntries:    connect.NewClient[ListEntriesRequest, ListEntriesResponse](httpClient, baseURL+WalletServiceListEntriesProcedure, opts...),
		recordActivity: connect.NewClient[RecordActivityRequest, RecordActivityResponse](httpClient, baseURL+WalletServiceRecordActivityProcedure, opts...),
		exchange:       connect.NewClient[ExchangeRequest, ExchangeResponse](httpClient, baseURL+WalletServiceExchangeProcedure, opts...),
	}
}

func (c *WalletServiceClient) GetBalance(ctx context.Context, req *connect.Request[GetBalanceRequest]) (*connect.Response[GetBalanceResponse], error) {
	return c.getBalance.CallUnary(ctx, req)
}

func (c *WalletServiceClient) ListEntries(ctx context.Context, req *connect.Request[ListEntriesRequest]) (*connect.Response[ListEntriesResponse], error) {
	return c.listEntries.CallUnary(ctx, req)
}

func (c *WalletServiceClient) RecordActivity(ctx context.Context, req *connect.Request[RecordActivityRequest]) (*connect.Response[RecordActivityResponse], error) {
	return c.recordActivity.CallUnary(ctx, req)
}

func (c *WalletServiceClient) Exchange(ctx context.Context, req *connect.Request[ExchangeRequest]) (*connect.Response[ExchangeResponse], error) {
	return c.exchange.CallUnary(ctx, req)
}
