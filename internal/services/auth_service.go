package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/shopspring/decimal"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

const minPasswordLength = 8

// SignupRequest carries a new account's details.
type SignupRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	AcceptTerms bool   `json:"acceptTerms"`
}

// AuthService handles accounts, credentials and profiles.
type AuthService struct {
	storage *storage.SQLiteRepository
	tokens  *auth.Tokens
	logger  *log.Logger
}

func NewAuthService(storage *storage.SQLiteRepository, tokens *auth.Tokens, logger *log.Logger) *AuthService {
	if logger == nil {
		logger = log.Discard()
	}
	return &AuthService{
		storage: storage,
		tokens:  tokens,
		logger:  logger.WithComponent(log.ComponentAuth),
	}
}

func (s *AuthService) Signup(ctx context.Context, req SignupRequest) (core.User, error) {
	name := sanitizeText(req.Name)
	if name == "" {
		return core.User{}, core.ErrEmptyName
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return core.User{}, err
	}
	if len(req.Password) < minPasswordLength {
		return core.User{}, core.ErrWeakPassword
	}
	if !req.AcceptTerms {
		return core.User{}, core.ErrTermsNotAccepted
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return core.User{}, err
	}
	u, err := s.storage.CreateUser(ctx, truncate(name, 100), email, hash)
	if err != nil {
		return core.User{}, err
	}

	s.logger.InfoContext(ctx, "User signed up", log.FieldUserID, u.ID)
	return u, nil
}

// Login checks credentials and issues a token. Unknown emails and wrong
// passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, core.User, error) {
	u, hash, err := s.storage.GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, storage.ErrNotFound) {
		return "", core.User{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return "", core.User{}, err
	}
	if err := auth.CheckPassword(hash, password); err != nil {
		s.logger.WarnContext(ctx, "Failed login", log.FieldUserID, u.ID)
		return "", core.User{}, err
	}

	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return "", core.User{}, fmt.Errorf("issue token: %w", err)
	}
	return token, u, nil
}

func (s *AuthService) Profile(ctx context.Context, userID int64) (core.User, error) {
	return s.storage.GetUser(ctx, userID)
}

// UpdateProfile changes the display name and the monthly salary used by the
// budget advisor.
func (s *AuthService) UpdateProfile(ctx context.Context, userID int64, name string, salary decimal.Decimal) (core.User, error) {
	name = sanitizeText(name)
	if name == "" {
		return core.User{}, core.ErrEmptyName
	}
	if salary.IsNegative() {
		return core.User{}, core.ErrNegativeSalary
	}
	return s.storage.UpdateProfile(ctx, core.User{
		ID:            userID,
		Name:          truncate(name, 100),
		MonthlySalary: salary.Round(2),
	})
}

func (s *AuthService) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	if len(next) < minPasswordLength {
		return core.ErrWeakPassword
	}
	hash, err := s.storage.GetPasswordHash(ctx, userID)
	if err != nil {
		return err
	}
	if err := auth.CheckPassword(hash, current); err != nil {
		return err
	}
	newHash, err := auth.HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.storage.UpdatePasswordHash(ctx, userID, newHash); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Password changed", log.FieldUserID, userID)
	return nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Name != "" || len(addr.Address) > 254 {
		return "", core.ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}
