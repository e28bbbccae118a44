package rpc

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
)

// AccountServiceName is the fully-qualified name of the AccountService.
const AccountServiceName = "zehem.v1.AccountService"

const (
	AccountServiceRegisterProcedure   = "/zehem.v1.AccountService/Register"
	AccountServiceGetAccountProcedure = "/zehem.v1.AccountService/GetAccount"
)

type RegisterRequest struct {
	DisplayName string `json:"displayName"`
}

type RegisterResponse struct {
	Account *Account `json:"account"`
}

type GetAccountRequest struct {
	// AccountID defaults to the caller.
	AccountID string `json:"accountId,omitempty"`
}

type GetAccountResponse struct {
	Account *Account `json:"account"`
}

// AccountServiceHandler is implemented by the account service.
type AccountServiceHandler interface {
	Register(context.Context, *connect.Request[RegisterRequest]) (*connect.Response[RegisterResponse], error)
	GetAccount(context.Context, *connect.Request[GetAccountRequest]) (*connect.Response[GetAccountResponse], error)
}

// NewAccountServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler and the
// handler itself.
func NewAccountServiceHandler(svc AccountServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	mux := http.NewServeMux()
	mux.Handle(AccountServiceRegisterProcedure, connect.NewUnaryHandler(AccountServiceRegisterProcedure, svc.Register, opts...))
	mux.Handle(AccountServiceGetAccountProcedure, connect.NewUnaryHandler(AccountServiceGetAccountProcedure, svc.GetAccount, opts...))
	return "/" + AccountServiceName + "/", mux
}

// AccountServiceClient is a client for the AccountService.
type AccountServiceClient struct {
	register   *connect.Client[RegisterRequest, RegisterResponse]
	getAccount *connect.Client[GetAccountRequest, GetAccountResponse]
}

// NewAccountServiceClient constructs a client for the AccountService at baseURL.
func NewAccountServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *AccountServiceClient {
	opts = clientOptions(opts)
	return &AccountServiceClient{
		register:   connect.NewClient[RegisterRequest, RegisterResponse](httpClient, baseURL+AccountServiceRegisterProcedure, opts...),
		getAccount: connect.NewClient[GetAccountRequest, GetAccountResponse](httpClient, baseURL+AccountServiceGetAccountProcedure, opts...),
	}
}

func (c *AccountServiceClient) Register(ctx context.Context, req *connect.Request[RegisterRequest]) (*connect.Response[RegisterResponse], error) {
	return c.register.CallUnary(ctx, req)
}

func (c *AccountServiceClient) GetAccount(ctx context.Context, req *connect.Request[GetAccountRequest]) (*connect.Response[GetAccountResponse], error) {
	return c.getAccount.CallUnary(ctx, req)
}
