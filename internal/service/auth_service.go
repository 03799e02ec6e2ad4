package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/crlx1q/antimat/internal/apperr"
	"github.com/crlx1q/antimat/internal/config"
	"github.com/crlx1q/antimat/internal/models"
	"github.com/crlx1q/antimat/internal/repository"
	"github.com/crlx1q/antimat/internal/security"
)

const minPasswordLength = 6

type AuthService struct {
	users *repository.UserRepository
	cfg   *config.AppConfig
	log   zerolog.Logger
	now   func() time.Time
}

func NewAuthService(users *repository.UserRepository, cfg *config.AppConfig, log zerolog.Logger) *AuthService {
	return &AuthService{
		users: users,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
	}
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

type LoginInput struct {
	Email    string
	Password string
}

type AuthResult struct {
	Token string
	User  models.User
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	input.Name = strings.TrimSpace(input.Name)
	if input.Email == "" || input.Password == "" || input.Name == "" {
		return AuthResult{}, ErrInvalidInput.WithMessage("Все поля обязательны")
	}
	if _, err := mail.ParseAddress(input.Email); err != nil {
		return AuthResult{}, ErrInvalidInput.WithMessage("Некорректный email")
	}
	if len([]rune(input.Password)) < minPasswordLength {
		return AuthResult{}, ErrInvalidInput.WithMessage("Пароль должен быть минимум %d символов", minPasswordLength)
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return AuthResult{}, apperr.Internal(err)
	}

	now := s.now().UTC()
	words := make([]models.BannedWord, 0, len(s.cfg.Words.Defaults))
	for _, w := range s.cfg.Words.Defaults {
		w = normalizeWord(w)
		if w != "" {
			words = append(words, models.BannedWord{Word: w, AddedAt: now})
		}
	}

	user, err := s.users.Create(ctx, models.User{
		Email:         input.Email,
		PasswordHash:  passwordHash,
		Name:          input.Name,
		PenaltyAmount: models.DefaultPenaltyAmount,
		BannedWords:   words,
		Settings:      models.DefaultUserSettings(),
		CreatedAt:     now,
		LastActiveAt:  now,
	})
	if err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return AuthResult{}, ErrEmailTaken
		}
		return AuthResult{}, apperr.Internal(err)
	}

	token, err := security.GenerateAccessToken(s.cfg.Security.JWTSecret, user.ID.Hex(), s.cfg.Security.JWTTTL)
	if err != nil {
		return AuthResult{}, apperr.Internal(err)
	}

	s.log.Info().Str("user_id", user.ID.Hex()).Msg("user registered")
	return AuthResult{Token: token, User: user}, nil
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if email == "" || input.Password == "" {
		return AuthResult{}, ErrInvalidInput.WithMessage("Email и пароль обязательны")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, apperr.Internal(err)
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID.Hex()).Msg("password verification failed")
		return AuthResult{}, ErrInvalidCredentials
	}
	if !ok {
		return AuthResult{}, ErrInvalidCredentials
	}

	if security.NeedsRehash(user.PasswordHash) {
		s.upgradeHash(ctx, user.ID, input.Password)
	}
	if err := s.users.TouchActive(ctx, user.ID, s.now().UTC()); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID.Hex()).Msg("touch last active failed")
	}

	token, err := security.GenerateAccessToken(s.cfg.Security.JWTSecret, user.ID.Hex(), s.cfg.Security.JWTTTL)
	if err != nil {
		return AuthResult{}, apperr.Internal(err)
	}
	return AuthResult{Token: token, User: user}, nil
}

func (s *AuthService) upgradeHash(ctx context.Context, id primitive.ObjectID, password string) {
	hash, err := security.HashPassword(password)
	if err != nil {
		s.log.Warn().Err(err).Msg("rehash password failed")
		return
	}
	if err := s.users.SetPasswordHash(ctx, id, hash); err != nil {
		s.log.Warn().Err(err).Str("user_id", id.Hex()).Msg("store upgraded password hash failed")
	}
}

func (s *AuthService) Me(ctx context.Context, userID primitive.ObjectID) (models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, apperr.Internal(err)
	}
	return user, nil
}
