package auth_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nebulaz7/veil/auth"
	"github.com/Nebulaz7/veil/crypto"
	"github.com/Nebulaz7/veil/domain"
)

type MockUserRepo struct {
	users []*domain.User
}

func (mur *MockUserRepo) CreateUser(_ context.Context, email, name, passwordHash string) (domain.User, error) {
	for _, u := range mur.users {
		if u.Email == email {
			return domain.User{}, domain.ErrDuplicateEmail
		}
	}
	user := &domain.User{
		Id:           fmt.Sprintf("user-%d", len(mur.users)+1),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	mur.users = append(mur.users, user)
	return *user, nil
}

func (mur *MockUserRepo) UserByEmail(_ context.Context, email string) (domain.User, error) {
	for _, u := range mur.users {
		if u.Email == email {
			return *u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (mur *MockUserRepo) UserById(_ context.Context, id string) (domain.User, error) {
	for _, u := range mur.users {
		if u.Id == id {
			return *u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (mur *MockUserRepo) UpsertOAuthUser(ctx context.Context, email, name, picture string) (domain.User, error) {
	for _, u := range mur.users {
		if u.Email == email {
			u.Name = name
			u.Picture = picture
			return *u, nil
		}
	}
	user, err := mur.CreateUser(ctx, email, name, "")
	if err != nil {
		return domain.User{}, err
	}
	user.Picture = picture
	mur.users[len(mur.users)-1].Picture = picture
	return user, nil
}

type MockPasswordHasher struct{}

func (mph *MockPasswordHasher) Hash(password string) (string, error) {
	arr := []rune(password)
	for i := range arr {
		arr[i] = arr[i] ^ 7 + 5
	}
	return string(arr), nil
}

func (mph *MockPasswordHasher) Compare(hash, password string) (bool, error) {
	hashedPassword, _ := mph.Hash(password)
	return hashedPassword == hash, nil
}

type MockTokenManager struct{}

func (mtm *MockTokenManager) Generate(identity crypto.Identity, _ time.Time) (string, error) {
	return identity.Id + "|" + identity.Email, nil
}

func (mtm *MockTokenManager) Verify(token string) (crypto.Identity, error) {
	parts := strings.SplitN(token, "|", 2)
	if len(parts) != 2 {
		return crypto.Identity{}, domain.ErrCorruptedToken
	}
	return crypto.Identity{Id: parts[0], Email: parts[1]}, nil
}

func newService() (*MockUserRepo, auth.AuthService) {
	repo := &MockUserRepo{}
	return repo, auth.NewService(repo, &MockPasswordHasher{}, &MockTokenManager{})
}

func TestSignup(t *testing.T) {
	_, service := newService()

	tests := []struct {
		description string
		email       string
		name        string
		password    string
		expected    error
	}{
		{"normal", "ada@example.com", "Ada", "12345678", nil},
		{"uppercase email folds", "ADA2@Example.com", "Ada", "12345678", nil},
		{"duplicate email", "ada@example.com", "Ada Again", "12345678", domain.ErrDuplicateEmail},
		{"short password", "new@example.com", "New", "1234567", auth.ErrWeakPassword},
		{"very long password", "new@example.com", "New", strings.Repeat("a", 129), auth.ErrPasswordTooLong},
		{"missing name", "new@example.com", "   ", "12345678", auth.ErrMissingName},
		{"not an email", "not-an-email", "Name", "12345678", auth.ErrInvalidEmailFormat},
		{"email with spaces", "a b@example.com", "Name", "12345678", auth.ErrInvalidEmailFormat},
		{"absent everything", "", "", "", auth.ErrInvalidEmailFormat},
	}

	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			token, err := service.Signup(context.Background(), tc.email, tc.name, tc.password)
			assert.ErrorIs(t, err, tc.expected)
			if tc.expected == nil {
				assert.NotEmpty(t, token)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	_, service := newService()
	_, err := service.Signup(context.Background(), "ada@example.com", "Ada", "correct-horse")
	require.NoError(t, err)

	tests := []struct {
		description string
		email       string
		password    string
		expected    error
	}{
		{"normal", "ada@example.com", "correct-horse", nil},
		{"email case folds", "ADA@example.com", "correct-horse", nil},
		{"wrong password", "ada@example.com", "battery-staple", auth.ErrIncorrectPassword},
		{"unknown account", "ghost@example.com", "correct-horse", domain.ErrUserNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.description, func(t *testing.T) {
			token, err := service.Login(context.Background(), tc.email, tc.password)
			assert.ErrorIs(t, err, tc.expected)
			if tc.expected == nil {
				assert.NotEmpty(t, token)
			}
		})
	}
}

func TestLoginOAuthUser(t *testing.T) {
	repo, service := newService()

	token, err := service.LoginOAuthUser(context.Background(), "oauth@example.com", "OAuth User", "https://pic")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	require.Len(t, repo.users, 1)
	assert.Empty(t, repo.users[0].PasswordHash, "oauth accounts carry no password")

	t.Run("second login refreshes the profile without duplicating", func(t *testing.T) {
		_, err := service.LoginOAuthUser(context.Background(), "oauth@example.com", "New Name", "https://pic2")
		require.NoError(t, err)
		require.Len(t, repo.users, 1)
		assert.Equal(t, "New Name", repo.users[0].Name)
		assert.Equal(t, "https://pic2", repo.users[0].Picture)
	})

	t.Run("provider identity still needs a usable email", func(t *testing.T) {
		_, err := service.LoginOAuthUser(context.Background(), "", "Nameless", "")
		assert.ErrorIs(t, err, auth.ErrInvalidEmailFormat)
	})
}

func TestRefresh(t *testing.T) {
	_, service := newService()
	token, err := service.Signup(context.Background(), "ada@example.com", "Ada", "12345678")
	require.NoError(t, err)

	identity, err := service.VerifyToken(token)
	require.NoError(t, err)

	refreshed, err := service.Refresh(context.Background(), identity.Id)
	require.NoError(t, err)
	assert.Equal(t, token, refreshed, "same identity yields the same mock token")

	t.Run("deleted account cannot refresh", func(t *testing.T) {
		_, err := service.Refresh(context.Background(), "user-999")
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
	})
}

func TestVerifyTokenRoundTrip(t *testing.T) {
	_, service := newService()
	token, err := service.Signup(context.Background(), "ada@example.com", "Ada", "12345678")
	require.NoError(t, err)

	identity, err := service.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", identity.Email)
}
