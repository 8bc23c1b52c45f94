package auth

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/almacen-erp/almacen-erp/internal/shared"
)

// Repository reads employees for authentication.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (Employee, error)
}

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	tokens *shared.TokenManager
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *shared.TokenManager) *Service {
	return &Service{repo: repo, tokens: tokens}
}

// Login validates credentials and issues a bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (string, Employee, error) {
	employee, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return "", Employee{}, shared.ErrInvalidCredentials
	}
	if !employee.IsActive {
		return "", Employee{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(employee.PasswordHash), []byte(password)); err != nil {
		return "", Employee{}, shared.ErrInvalidCredentials
	}
	token, err := s.tokens.Issue(ctx, shared.Actor{ID: employee.ID, Name: employee.Name, Role: employee.Role})
	if err != nil {
		return "", Employee{}, err
	}
	return token, employee, nil
}

// SessionTTL reports how long an issued token stays valid.
func (s *Service) SessionTTL() time.Duration {
	return s.tokens.TTL()
}

// Logout revokes a bearer token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.tokens.Revoke(ctx, token)
}

// Resolve looks up the actor behind a token.
func (s *Service) Resolve(ctx context.Context, token string) (shared.Actor, error) {
	return s.tokens.Resolve(ctx, token)
}
