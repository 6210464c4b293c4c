package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ecofinds/internal/auth"
	"ecofinds/internal/logger"
	"ecofinds/internal/models"
	"ecofinds/internal/repositories"
	"ecofinds/internal/validation"

	"github.com/go-playground/validator/v10"
)

// RegisterInput is the signup payload.
type RegisterInput struct {
	DisplayName     string `json:"display_name" validate:"required,max=100"`
	Email           string `json:"email" validate:"required,email,max=255"`
	Username        string `json:"username" validate:"required,min=3,max=50,username"`
	Password        string `json:"password" validate:"required,min=8,maxbytes=72"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

// LoginInput is the login payload. Identifier is an email or a username.
type LoginInput struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User  *models.User
	Token string
}

// AuthService handles business logic for authentication and authorization.
type AuthService struct {
	userRepo repositories.UserRepository
	hasher   *auth.PasswordHasher
	issuer   *auth.TokenIssuer
	validate *validator.Validate
	log      *logger.Logger
	// dummyHash is compared against when the identifier is unknown so both
	// failure paths cost one bcrypt comparison.
	dummyHash string
}

// NewAuthService creates a new AuthService.
func NewAuthService(userRepo repositories.UserRepository, hasher *auth.PasswordHasher, issuer *auth.TokenIssuer, log *logger.Logger) (*AuthService, error) {
	if log == nil {
		log = logger.NewNop()
	}
	dummy, err := hasher.Hash("ecofinds-dummy-password")
	if err != nil {
		return nil, err
	}
	return &AuthService{
		userRepo:  userRepo,
		hasher:    hasher,
		issuer:    issuer,
		validate:  validation.New(),
		log:       log.With("service", "AuthService"),
		dummyHash: dummy,
	}, nil
}

// Register creates an account and returns it with a fresh token.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	input.DisplayName = strings.TrimSpace(input.DisplayName)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.Username = strings.TrimSpace(input.Username)

	if err := s.validate.Struct(input); err != nil {
		if fields := validation.Messages(err); fields != nil {
			return nil, &ValidationError{Message: "Validation failed", Fields: fields}
		}
		return nil, err
	}

	if err := s.ensureAvailable(ctx, input.Email, input.Username); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		DisplayName:  input.DisplayName,
		Email:        input.Email,
		Username:     input.Username,
		PasswordHash: hash,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// Lost a race against a concurrent signup.
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, fmt.Errorf("%w: email or username already registered", ErrConflict)
		}
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	token, err := s.issuer.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	s.log.Info("user registered", "user_id", user.ID, "username", user.Username)
	return &AuthResult{User: user, Token: token}, nil
}

func (s *AuthService) ensureAvailable(ctx context.Context, email, username string) error {
	if _, err := s.userRepo.GetByEmail(ctx, email); err == nil {
		return fmt.Errorf("%w: email '%s' already registered", ErrConflict, email)
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return err
	}
	if _, err := s.userRepo.GetByUsername(ctx, username); err == nil {
		return fmt.Errorf("%w: username '%s' already taken", ErrConflict, username)
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return err
	}
	return nil
}

// Login authenticates by email or username. Unknown identifiers and wrong
// passwords fail identically with ErrUnauthorized.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	input.Identifier = strings.TrimSpace(input.Identifier)
	// Emails are stored lowercased; usernames cannot contain '@'.
	if strings.Contains(input.Identifier, "@") {
		input.Identifier = strings.ToLower(input.Identifier)
	}
	if err := s.validate.Struct(input); err != nil {
		if fields := validation.Messages(err); fields != nil {
			return nil, &ValidationError{Message: "Validation failed", Fields: fields}
		}
		return nil, err
	}

	user, err := s.userRepo.GetByIdentifier(ctx, input.Identifier)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			return nil, err
		}
		_ = s.hasher.Compare(s.dummyHash, input.Password)
		s.log.Debug("login rejected", "reason", "unknown identifier")
		return nil, ErrUnauthorized
	}

	if err := s.hasher.Compare(user.PasswordHash, input.Password); err != nil {
		s.log.Debug("login rejected", "user_id", user.ID)
		return nil, ErrUnauthorized
	}

	token, err := s.issuer.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	s.log.Info("user logged in", "user_id", user.ID)
	return &AuthResult{User: user, Token: token}, nil
}

// Authenticate validates a bearer token and returns the user id it carries.
func (s *AuthService) Authenticate(token string) (uint, error) {
	id, err := s.issuer.Validate(token)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return id, nil
}

// CurrentUser loads the account a validated token refers to.
func (s *AuthService) CurrentUser(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, withKind(ErrNotFound, err)
		}
		return nil, err
	}
	return user, nil
}
