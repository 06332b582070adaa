package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/milligram-be/internal/apperror"
	"github.com/isdelr/milligram-be/internal/database"
	"github.com/isdelr/milligram-be/internal/metrics"
	"github.com/isdelr/milligram-be/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const invalidCredentials = "invalid email or password"

// UserServiceProvider defines the interface for user services.
type UserServiceProvider interface {
	Register(ctx context.Context, in RegisterInput) (models.User, error)
	Authenticate(ctx context.Context, email, password string) (models.User, error)
	GetUserByID(ctx context.Context, id string) (models.User, error)
	GetProfile(ctx context.Context, username string) (models.User, error)
}

// ProfileCache caches sanitized profiles by username.
type ProfileCache interface {
	GetProfile(ctx context.Context, username string) (models.User, bool)
	SetProfile(ctx context.Context, user models.User)
}

// RegisterInput holds the fields required to create an account.
type RegisterInput struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserService provides business logic for accounts and profiles.
type UserService struct {
	store    database.Store
	cache    ProfileCache
	hashCost int

	dummyOnce sync.Once
	dummyHash []byte
}

// NewUserService creates a new UserService. cache may be nil.
func NewUserService(store database.Store, cache ProfileCache) *UserService {
	return &UserService{store: store, cache: cache, hashCost: bcrypt.DefaultCost}
}

// Register creates an account with a bcrypt-hashed password.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (models.User, error) {
	name := strings.TrimSpace(in.Name)
	username := strings.ToLower(strings.TrimSpace(in.Username))
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if name == "" || username == "" || email == "" || in.Password == "" {
		return models.User{}, apperror.Validation("all fields are required!")
	}

	exists, err := s.store.UserExists(ctx, username, email)
	if err != nil {
		return models.User{}, apperror.Internal("failed to check existing user", err)
	}
	if exists {
		return models.User{}, apperror.Conflict("email or username already in use!!")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return models.User{}, apperror.Internal("failed to hash password", err)
	}

	user := models.User{
		ID:           uuid.New().String(),
		Name:         name,
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateUser(ctx, &user); err != nil {
		// Lost a race with a concurrent registration.
		if errors.Is(err, database.ErrDuplicate) {
			return models.User{}, apperror.Conflict("email or username already in use!!")
		}
		return models.User{}, apperror.Internal("failed to create user", err)
	}

	metrics.Registrations.Inc()
	log.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("User registered")
	return user.Sanitized(), nil
}

// Authenticate verifies credentials. Unknown emails and wrong passwords produce the same error.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return models.User{}, apperror.Validation("email and password are required!")
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			// Spend the same time as a real comparison.
			_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
			return models.User{}, apperror.Auth(invalidCredentials)
		}
		return models.User{}, apperror.Internal("failed to load user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, apperror.Auth(invalidCredentials)
	}
	return user.Sanitized(), nil
}

func (s *UserService) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("milligram-dummy-password"), s.hashCost)
	})
	return s.dummyHash
}

// GetUserByID retrieves a single user by their ID.
func (s *UserService) GetUserByID(ctx context.Context, id string) (models.User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return models.User{}, apperror.NotFound("user not found")
		}
		return models.User{}, apperror.Internal("failed to load user", err)
	}
	return user.Sanitized(), nil
}

// GetProfile looks a user up by username, case-insensitively.
func (s *UserService) GetProfile(ctx context.Context, username string) (models.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if s.cache != nil {
		if user, ok := s.cache.GetProfile(ctx, username); ok {
			return user, nil
		}
	}

	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return models.User{}, apperror.NotFound("user not found")
		}
		return models.User{}, apperror.Internal("failed to load profile", err)
	}

	user = user.Sanitized()
	if s.cache != nil {
		s.cache.SetProfile(ctx, user)
	}
	return user, nil
}
