package service

import (
	"context"
	"fmt"

	"github.com/castquest/castquest-backend/internal/domain"
	"github.com/castquest/castquest-backend/internal/repository"
	"github.com/ethereum/go-ethereum/common"
)

type UserService struct {
	store repository.Store
}

func NewUserService(store repository.Store) *UserService {
	return &UserService{store: store}
}

// Register creates (or returns) the user for a Farcaster id.
func (s *UserService) Register(ctx context.Context, fid int64, username, walletAddress string) (*domain.User, error) {
	if fid <= 0 {
		return nil, fmt.Errorf("%w: fid required", domain.ErrValidation)
	}
	if walletAddress != "" && !common.IsHexAddress(walletAddress) {
		return nil, fmt.Errorf("%w: invalid wallet address", domain.ErrValidation)
	}
	return s.store.CreateUser(ctx, fid, username, walletAddress)
}

func (s *UserService) Get(ctx context.Context, id int64) (*domain.User, error) {
	return s.store.GetUser(ctx, id)
}

func (s *UserService) GetByFID(ctx context.Context, fid int64) (*domain.User, error) {
	return s.store.GetUserByFID(ctx, fid)
}
