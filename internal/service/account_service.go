package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/zehem/internal/accounts"
	"github.com/mmynk/zehem/internal/rpc"
)

// AccountService implements the Connect AccountService.
type AccountService struct {
	accounts *accounts.Directory
}

// NewAccountService creates a new AccountService.
func NewAccountService(accts *accounts.Directory) *AccountService {
	return &AccountService{accounts: accts}
}

// Register creates the caller's account under the requested display name.
func (s *AccountService) Register(ctx context.Context, req *connect.Request[rpc.RegisterRequest]) (*connect.Response[rpc.RegisterResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("Register request received", "user_id", userID, "display_name", req.Msg.DisplayName)

	account, err := s.accounts.Register(ctx, userID, req.Msg.DisplayName)
	if err != nil {
		slog.Error("Register failed", "user_id", userID, "error", err)
		return nil, rpc.Error(err)
	}

	slog.Info("Account registered", "user_id", account.ID)

	return connect.NewResponse(&rpc.RegisterResponse{
		Account: rpc.AccountFromModel(account),
	}), nil
}

// GetAccount returns an account, the caller's own by default.
func (s *AccountService) GetAccount(ctx context.Context, req *connect.Request[rpc.GetAccountRequest]) (*connect.Response[rpc.GetAccountResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	accountID := req.Msg.AccountID
	if accountID == "" {
		accountID = userID
	}
	slog.Info("GetAccount request received", "account_id", accountID)

	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		slog.Error("GetAccount failed", "account_id", accountID, "error", err)
		return nil, rpc.Error(err)
	}

	// Balances are private to their owner.
	if account.ID != userID {
		account.Coins = 0
	}

	return connect.NewResponse(&rpc.GetAccountResponse{
		Account: rpc.AccountFromModel(account),
	}), nil
}
