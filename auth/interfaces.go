package auth

import (
	"context"
	"time"

	"github.com/Nebulaz7/veil/crypto"
	"github.com/Nebulaz7/veil/domain"
)

type UserRepo interface {
	CreateUser(ctx context.Context, email, name, passwordHash string) (domain.User, error)
	UserByEmail(ctx context.Context, email string) (domain.User, error)
	UserById(ctx context.Context, id string) (domain.User, error)
	// UpsertOAuthUser creates the account on first OAuth login and refreshes
	// name and picture on later ones.
	UpsertOAuthUser(ctx context.Context, email, name, picture string) (domain.User, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) (bool, error)
}

type TokenManager interface {
	Generate(identity crypto.Identity, now time.Time) (string, error)
	Verify(token string) (crypto.Identity, error)
}

type AuthService interface {
	Signup(ctx context.Context, email, name, password string) (string, error)
	Login(ctx context.Context, email, password string) (string, error)
	LoginOAuthUser(ctx context.Context, email, name, picture string) (string, error)
	Refresh(ctx context.Context, id string) (string, error)
	VerifyToken(token string) (crypto.Identity, error)
	Me(ctx context.Context, id string) (domain.User, error)
}
