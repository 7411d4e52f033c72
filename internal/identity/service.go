package identity

import (
	"context"
	"errors"

	"github.com/carelink-hms/carelink/internal/shared"
)

// RepositoryPort defines data access methods for accounts.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	UserStatus(ctx context.Context, id int64) (string, error)
}

// Service handles account business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListUsers returns all accounts.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser fetches one account.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// IsActiveUser reports whether the account exists and is ACTIVE.
// A missing account is not an error here: the gate treats it as plain
// "no access".
func (s *Service) IsActiveUser(ctx context.Context, id int64) (bool, error) {
	status, err := s.repo.UserStatus(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return status == StatusActive, nil
}
