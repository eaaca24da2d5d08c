package auth

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Nebulaz7/veil/crypto"
	"github.com/Nebulaz7/veil/domain"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type service struct {
	userRepo       UserRepo
	passwordHasher PasswordHasher
	tokenManager   TokenManager
	now            func() time.Time
}

func NewService(userRepo UserRepo, passwordHasher PasswordHasher, tokenManager TokenManager) *service {
	return &service{userRepo, passwordHasher, tokenManager, time.Now}
}

func (as *service) Signup(ctx context.Context, email, name, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)

	if !emailPattern.MatchString(email) {
		return "", ErrInvalidEmailFormat
	}
	if name == "" {
		return "", ErrMissingName
	}
	if utf8.RuneCountInString(password) < 8 {
		return "", ErrWeakPassword
	}
	if utf8.RuneCountInString(password) > 128 {
		return "", ErrPasswordTooLong
	}

	passwordHash, err := as.passwordHasher.Hash(password)
	if err != nil {
		return "", err
	}

	user, err := as.userRepo.CreateUser(ctx, email, name, passwordHash)
	if err != nil {
		return "", err
	}

	return as.tokenManager.Generate(identityOf(user), as.now())
}

func (as *service) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := as.userRepo.UserByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	match, err := as.passwordHasher.Compare(user.PasswordHash, password)
	if err != nil {
		return "", err
	}
	if !match {
		return "", ErrIncorrectPassword
	}

	return as.tokenManager.Generate(identityOf(user), as.now())
}

// LoginOAuthUser issues a token for an identity already verified by the
// OAuth provider; no password is involved.
func (as *service) LoginOAuthUser(ctx context.Context, email, name, picture string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailPattern.MatchString(email) {
		return "", ErrInvalidEmailFormat
	}

	user, err := as.userRepo.UpsertOAuthUser(ctx, email, name, picture)
	if err != nil {
		return "", err
	}

	return as.tokenManager.Generate(identityOf(user), as.now())
}

// Refresh re-reads the account and issues a fresh token with a full
// lifetime. Deleted accounts cannot refresh.
func (as *service) Refresh(ctx context.Context, id string) (string, error) {
	user, err := as.userRepo.UserById(ctx, id)
	if err != nil {
		return "", err
	}

	return as.tokenManager.Generate(identityOf(user), as.now())
}

// VerifyToken returns the identity carried by the token if it is valid.
func (as *service) VerifyToken(token string) (crypto.Identity, error) {
	return as.tokenManager.Verify(token)
}

// Me resolves the current account from a verified identity.
func (as *service) Me(ctx context.Context, id string) (domain.User, error) {
	return as.userRepo.UserById(ctx, id)
}

func identityOf(user domain.User) crypto.Identity {
	return crypto.Identity{
		Id:        user.Id,
		Email:     user.Email,
		Name:      user.Name,
		Picture:   user.Picture,
		CreatedAt: user.CreatedAt,
	}
}
