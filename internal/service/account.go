package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/sakif/affirmations/internal/apperror"
	"github.com/sakif/affirmations/internal/auth"
	"github.com/sakif/affirmations/internal/model"
	"github.com/sakif/affirmations/internal/repository"
)

const (
	MinPasswordLength = 6
	MaxNameLength     = 100
)

// AccountService handles signup, login and onboarding goals.
//
//	AuthHandler (HTTP) → AccountService → UserRepository (DB)
//	                                    ↘ TokenService (JWT), PasswordService (bcrypt)
//
// Emails listed in adminEmails are created with IsAdmin set. There is no
// other way to become an admin.
type AccountService struct {
	users       repository.UserRepository
	tokens      *auth.TokenService
	passwords   *auth.PasswordService
	adminEmails map[string]struct{}
	logger      *slog.Logger
}

func NewAccountService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	adminEmails []string,
	logger *slog.Logger,
) *AccountService {
	admins := make(map[string]struct{}, len(adminEmails))
	for _, e := range adminEmails {
		if e = normaliseEmail(e); e != "" {
			admins[e] = struct{}{}
		}
	}
	return &AccountService{
		users:       users,
		tokens:      tokens,
		passwords:   passwords,
		adminEmails: admins,
		logger:      logger,
	}
}

// AuthResult bundles the user and the issued JWT so the handler can set the
// cookie and respond in one step.
type AuthResult struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// Signup creates an account and signs the user in.
func (s *AccountService) Signup(ctx context.Context, name, email, password string) (*AuthResult, error) {
	name = strings.TrimSpace(name)
	email = normaliseEmail(email)

	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperror.ValidationFailed("email", "email is not a valid address")
	}
	if len(password) < MinPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(name) > MaxNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("name must be %d characters or less", MaxNameLength))
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", err.Error())
	}

	_, isAdmin := s.adminEmails[email]
	user := &model.User{
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Goals:        model.StringList{},
		IsAdmin:      isAdmin,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, &apperror.AppError{
				Err:     apperror.ErrConflict,
				Message: "an account with this email already exists",
				Field:   "email",
			}
		}
		return nil, fmt.Errorf("service/account: creating user: %w", err)
	}

	s.logger.Info("user signed up",
		slog.String("userID", user.ID),
		slog.Bool("admin", user.IsAdmin),
	)
	return s.issue(user)
}

// Login checks credentials. Unknown email and wrong password produce the same
// error so the response does not reveal which accounts exist.
func (s *AccountService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normaliseEmail(email)
	if email == "" || password == "" {
		return nil, apperror.ValidationFailed("email", "email and password are required")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("invalid email or password")
		}
		return nil, fmt.Errorf("service/account: loading user: %w", err)
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		s.logger.Info("login rejected", slog.String("userID", user.ID))
		return nil, apperror.Unauthorized("invalid email or password")
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return s.issue(user)
}

func (s *AccountService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/account: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// GetUserByID returns the user for the given ID. Used by /api/me and the
// admin check.
func (s *AccountService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("userId", "userId is required")
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/account: fetching user %s: %w", id, err)
	}
	return user, nil
}

// IsAdmin reports whether the user exists and has the admin flag.
func (s *AccountService) IsAdmin(ctx context.Context, id string) (bool, error) {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return false, err
	}
	return user.IsAdmin, nil
}

// UpdateGoals replaces the user's goal categories. Every goal must be a known
// category; duplicates are dropped and order is kept.
func (s *AccountService) UpdateGoals(ctx context.Context, userID string, goals []string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return apperror.ValidationFailed("userId", "userId is required")
	}
	if goals == nil {
		return apperror.ValidationFailed("goals", "goals array is required")
	}

	clean := make(model.StringList, 0, len(goals))
	for _, g := range goals {
		c, err := model.ParseCategory(g)
		if err != nil {
			return apperror.ValidationFailed("goals", err.Error())
		}
		if !clean.Contains(string(c)) {
			clean = append(clean, string(c))
		}
	}

	if err := s.users.UpdateGoals(ctx, userID, clean); err != nil {
		return fmt.Errorf("service/account: updating goals for %s: %w", userID, err)
	}
	s.logger.Info("goals updated",
		slog.String("userID", userID),
		slog.Int("count", len(clean)),
	)
	return nil
}

// ValidateToken returns the user ID a JWT encodes.
func (s *AccountService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/account: %w", err)
	}
	return userID, nil
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
