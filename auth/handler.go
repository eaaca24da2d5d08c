package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Nebulaz7/veil/domain"
)

var (
	ErrMissingTokenStr         = "missing-token"
	ErrExpiredTokenStr         = "expired-token"
	ErrServerTimeoutStr        = "server-timeout"
	ErrInvalidRequestFormatStr = "bad-request-format"
	ErrInvalidCredentialsStr   = "invalid-credentials"
	ErrUnknownStr              = "unknown-error"
	ErrEmailAlreadyExistsStr   = "email-already-exists"
	ErrWeakPasswordStr         = "weak-password"
	ErrPasswordTooLongStr      = "password-too-long"
	ErrInvalidEmailFormatStr   = "invalid-email-format"
	ErrMissingNameStr          = "missing-name"
	ErrUserNotFoundStr         = "user-not-found"
)

type authHandler struct {
	authService AuthService
}

func NewAuthHandler(service AuthService) *authHandler {
	return &authHandler{authService: service}
}

// RequireAuthMiddleware authenticates the Authorization bearer header and
// stores the account id under "id". Forged tokens are stalled for trollTime
// before the response goes out.
func (ah *authHandler) RequireAuthMiddleware(trollTime time.Duration) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := bearerToken(ctx)
		if token == "" {
			ctx.String(http.StatusUnauthorized, ErrMissingTokenStr)
			ctx.Abort()
			return
		}

		identity, err := ah.authService.VerifyToken(token)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidSigningAlg), errors.Is(err, domain.ErrInvalidTokenSignature), errors.Is(err, domain.ErrCorruptedToken):
				time.Sleep(trollTime)
				ctx.Status(http.StatusInternalServerError)
				ctx.Abort()
			case errors.Is(err, domain.ErrExpiredToken):
				ctx.String(http.StatusUnauthorized, ErrExpiredTokenStr)
				ctx.Abort()
			default:
				log.Error().Err(err).Msg("verifying token")
				ctx.String(http.StatusInternalServerError, ErrUnknownStr)
				ctx.Abort()
			}
			return
		}

		ctx.Set("id", identity.Id)
		ctx.Next()
	}
}

func bearerToken(ctx *gin.Context) string {
	header := ctx.GetHeader("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	// the websocket path cannot set headers, so the token may ride the query
	return ctx.Query("token")
}

func (ah *authHandler) SignupHandler(ctx *gin.Context) {
	var signupCredentials struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}

	if err := ctx.ShouldBindJSON(&signupCredentials); err != nil {
		ctx.String(http.StatusBadRequest, ErrInvalidRequestFormatStr)
		ctx.Abort()
		return
	}

	reqCtx := ctx.Request.Context()

	token, err := ah.authService.Signup(reqCtx, signupCredentials.Email, signupCredentials.Name, signupCredentials.Password)

	if err != nil {
		switch {
		case errors.Is(err, domain.ErrDuplicateEmail):
			ctx.String(http.StatusConflict, ErrEmailAlreadyExistsStr)

		case errors.Is(err, ErrWeakPassword):
			ctx.String(http.StatusBadRequest, ErrWeakPasswordStr)

		case errors.Is(err, ErrPasswordTooLong):
			ctx.String(http.StatusBadRequest, ErrPasswordTooLongStr)

		case errors.Is(err, ErrInvalidEmailFormat):
			ctx.String(http.StatusBadRequest, ErrInvalidEmailFormatStr)

		case errors.Is(err, ErrMissingName):
			ctx.String(http.StatusBadRequest, ErrMissingNameStr)

		case errors.Is(err, context.DeadlineExceeded):
			ctx.String(http.StatusGatewayTimeout, ErrServerTimeoutStr)

		case errors.Is(err, context.Canceled):
			ctx.Status(499) // http code for "Client Closed Request"

		default:
			log.Error().Err(err).Msg("signup failed")
			ctx.String(http.StatusInternalServerError, ErrUnknownStr)
		}
		ctx.Abort()
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"token": token})
}

func (ah *authHandler) LoginHandler(ctx *gin.Context) {
	var loginCredentials struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := ctx.ShouldBindJSON(&loginCredentials); err != nil {
		ctx.String(http.StatusBadRequest, ErrInvalidRequestFormatStr)
		ctx.Abort()
		return
	}

	reqCtx := ctx.Request.Context()

	token, err := ah.authService.Login(reqCtx, loginCredentials.Email, loginCredentials.Password)

	if err != nil {
		switch {
		case errors.Is(err, ErrIncorrectPassword), errors.Is(err, domain.ErrUserNotFound):
			ctx.String(http.StatusUnauthorized, ErrInvalidCredentialsStr)

		case errors.Is(err, context.DeadlineExceeded):
			ctx.String(http.StatusGatewayTimeout, ErrServerTimeoutStr)

		case errors.Is(err, context.Canceled):
			ctx.Status(499)

		default:
			log.Error().Err(err).Msg("login failed")
			ctx.String(http.StatusInternalServerError, ErrUnknownStr)
		}
		ctx.Abort()
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"token": token})
}

// RefreshHandler trades a still-valid token for a new one with a full
// lifetime.
func (ah *authHandler) RefreshHandler(ctx *gin.Context) {
	id := ctx.GetString("id")
	if id == "" {
		ctx.String(http.StatusUnauthorized, ErrMissingTokenStr)
		ctx.Abort()
		return
	}

	token, err := ah.authService.Refresh(ctx.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUserNotFound):
			ctx.String(http.StatusNotFound, ErrUserNotFoundStr)
		default:
			log.Error().Err(err).Str("user", id).Msg("refreshing token")
			ctx.String(http.StatusInternalServerError, ErrUnknownStr)
		}
		ctx.Abort()
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"token": token})
}

// LogoutHandler exists for client symmetry. Tokens are stateless, so the
// client discards its copy and the server just acknowledges.
func (ah *authHandler) LogoutHandler(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// MeHandler returns the current account, read fresh from storage so profile
// changes show up without re-issuing the token.
func (ah *authHandler) MeHandler(ctx *gin.Context) {
	id := ctx.GetString("id")
	if id == "" {
		ctx.String(http.StatusUnauthorized, ErrMissingTokenStr)
		ctx.Abort()
		return
	}

	user, err := ah.authService.Me(ctx.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUserNotFound):
			ctx.String(http.StatusNotFound, ErrUserNotFoundStr)
		default:
			log.Error().Err(err).Str("user", id).Msg("loading account")
			ctx.String(http.StatusInternalServerError, ErrUnknownStr)
		}
		ctx.Abort()
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"id":        user.Id,
		"email":     user.Email,
		"name":      user.Name,
		"picture":   user.Picture,
		"createdAt": user.CreatedAt,
	})
}
