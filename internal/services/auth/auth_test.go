package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wellmind/billing-service/internal/lib/apperr"
	"github.com/wellmind/billing-service/internal/lib/jwt"
	"github.com/wellmind/billing-service/internal/lib/password"
	"github.com/wellmind/billing-service/internal/models"
)

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) RegisterUser(ctx context.Context, user models.User) (string, error) {
	args := m.Called(ctx, user)
	return args.String(0), args.Error(1)
}

func (m *MockUserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) UserExists(ctx context.Context, username, email string) (bool, error) {
	args := m.Called(ctx, username, email)
	return args.Bool(0), args.Error(1)
}

type MockCustomerCreator struct {
	mock.Mock
}

func (m *MockCustomerCreator) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	args := m.Called(ctx, email, name)
	return args.String(0), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func newTestService(users *MockUserRepository, proc *MockCustomerCreator) *AuthService {
	maker := jwt.NewJWTMaker("test-secret", time.Hour)
	return NewAuthService(users, proc, maker, newNoopLogger())
}

func TestAuthService_Register(t *testing.T) {
	tests := []struct {
		name         string
		setupMocks   func(*MockUserRepository, *MockCustomerCreator)
		expectedKind apperr.Kind
	}{
		{
			name: "success",
			setupMocks: func(u *MockUserRepository, p *MockCustomerCreator) {
				u.On("UserExists", mock.Anything, "testuser", "test@example.com").Return(false, nil).Once()
				p.On("CreateCustomer", mock.Anything, "test@example.com", "testuser").Return("cus_123", nil).Once()
				u.On("RegisterUser", mock.Anything, mock.MatchedBy(func(user models.User) bool {
					return user.CustomerID == "cus_123" && user.Role == "user" &&
						user.State == models.StateNone && user.PasswordHash != "secret"
				})).Return("uid-1", nil).Once()
			},
		},
		{
			name: "user already exists",
			setupMocks: func(u *MockUserRepository, _ *MockCustomerCreator) {
				u.On("UserExists", mock.Anything, "testuser", "test@example.com").Return(true, nil).Once()
			},
			expectedKind: apperr.KindAlreadyExists,
		},
		{
			name: "processor failure",
			setupMocks: func(u *MockUserRepository, p *MockCustomerCreator) {
				u.On("UserExists", mock.Anything, "testuser", "test@example.com").Return(false, nil).Once()
				p.On("CreateCustomer", mock.Anything, "test@example.com", "testuser").
					Return("", errors.New("stripe is down")).Once()
			},
			expectedKind: apperr.KindProcessorFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := new(MockUserRepository)
			proc := new(MockCustomerCreator)
			tt.setupMocks(users, proc)
			service := newTestService(users, proc)

			uid, err := service.Register(context.Background(), "test@example.com", "testuser", "secret")

			if tt.expectedKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.expectedKind, apperr.KindOf(err))
				users.AssertNotCalled(t, "RegisterUser", mock.Anything, mock.Anything)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "uid-1", uid)
			}
			users.AssertExpectations(t)
			proc.AssertExpectations(t)
		})
	}
}

func TestAuthService_Login(t *testing.T) {
	hash, err := password.Hash("secret")
	require.NoError(t, err)
	user := &models.User{
		UID:          "uid-1",
		Username:     "testuser",
		PasswordHash: hash,
		Role:         "user",
	}

	t.Run("success", func(t *testing.T) {
		users := new(MockUserRepository)
		users.On("GetUserByUsername", mock.Anything, "testuser").Return(user, nil).Once()
		service := newTestService(users, new(MockCustomerCreator))

		token, role, err := service.Login(context.Background(), "testuser", "secret")

		require.NoError(t, err)
		assert.NotEmpty(t, token)
		assert.Equal(t, "user", role)

		claims, err := service.ValidateToken(token)
		require.NoError(t, err)
		assert.Equal(t, "testuser", claims.Username)
		assert.Equal(t, "uid-1", claims.UserUID)
	})

	t.Run("wrong password", func(t *testing.T) {
		users := new(MockUserRepository)
		users.On("GetUserByUsername", mock.Anything, "testuser").Return(user, nil).Once()
		service := newTestService(users, new(MockCustomerCreator))

		_, _, err := service.Login(context.Background(), "testuser", "wrong")

		require.Error(t, err)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})

	t.Run("unknown user", func(t *testing.T) {
		users := new(MockUserRepository)
		users.On("GetUserByUsername", mock.Anything, "ghost").Return(nil, errors.New("no rows")).Once()
		service := newTestService(users, new(MockCustomerCreator))

		_, _, err := service.Login(context.Background(), "ghost", "secret")

		require.Error(t, err)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})
}
