// Package auth содержит логику регистрации, авторизации и валидации JWT.
package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wellmind/billing-service/internal/lib/apperr"
	"github.com/wellmind/billing-service/internal/lib/jwt"
	"github.com/wellmind/billing-service/internal/lib/password"
	"github.com/wellmind/billing-service/internal/models"
)

// UserRepository описывает контракт для работы с пользователями в базе данных.
type UserRepository interface {
	RegisterUser(ctx context.Context, user models.User) (string, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UserExists(ctx context.Context, username, email string) (bool, error)
}

// CustomerCreator создаёт клиента на стороне платёжного провайдера.
type CustomerCreator interface {
	CreateCustomer(ctx context.Context, email, name string) (string, error)
}

// AuthService отвечает за регистрацию, авторизацию и валидацию JWT.
type AuthService struct {
	users    UserRepository
	proc     CustomerCreator
	jwtMaker jwt.Maker
	log      *slog.Logger
}

// NewAuthService создает новый экземпляр AuthService.
func NewAuthService(users UserRepository, proc CustomerCreator, jwtMaker jwt.Maker, log *slog.Logger) *AuthService {
	return &AuthService{
		users:    users,
		proc:     proc,
		jwtMaker: jwtMaker,
		log:      log,
	}
}

// Register создает нового пользователя с хэшированием пароля и дефолтной
// ролью user. Клиент у платёжного провайдера создаётся один раз здесь;
// его идентификатор сохраняется вместе с пользователем и дальше не меняется.
func (s *AuthService) Register(ctx context.Context, email, username, rawPassword string) (string, error) {
	const op = "services.auth.Register"

	exists, err := s.users.UserExists(ctx, username, email)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "failed to check user", fmt.Errorf("%s: %w", op, err))
	}
	if exists {
		return "", apperr.New(apperr.KindAlreadyExists, "user already exists")
	}

	hashed, err := password.Hash(rawPassword)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "failed to hash password", fmt.Errorf("%s: %w", op, err))
	}

	customerID, err := s.proc.CreateCustomer(ctx, email, username)
	if err != nil {
		return "", apperr.Wrap(apperr.KindProcessorFailure, "failed to create customer", fmt.Errorf("%s: %w", op, err))
	}

	uid, err := s.users.RegisterUser(ctx, models.User{
		Email:        email,
		Username:     username,
		PasswordHash: hashed,
		Role:         "user",
		CustomerID:   customerID,
		State:        models.StateNone,
	})
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "failed to register user", fmt.Errorf("%s: %w", op, err))
	}

	s.log.Info("user registered", "user_uid", uid, "customer_id", customerID)
	return uid, nil
}

// Login проверяет пароль пользователя и генерирует JWT.
func (s *AuthService) Login(ctx context.Context, username, rawPassword string) (token, role string, err error) {
	const op = "services.auth.Login"

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return "", "", apperr.New(apperr.KindNotFound, "invalid credentials")
	}
	if err := password.Verify(user.PasswordHash, rawPassword); err != nil {
		return "", "", apperr.New(apperr.KindNotFound, "invalid credentials")
	}
	token, err = s.jwtMaker.GenerateToken(user.Username, user.Role, user.UID)
	if err != nil {
		return "", "", apperr.Wrap(apperr.KindInternal, "failed to generate token", fmt.Errorf("%s: %w", op, err))
	}
	return token, user.Role, nil
}

// ValidateToken проверяет JWT и возвращает claims, если токен корректен.
func (s *AuthService) ValidateToken(tokenStr string) (*jwt.CustomClaims, error) {
	return s.jwtMaker.ParseToken(tokenStr)
}
