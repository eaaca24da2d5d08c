package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const oauthStateCookie = "oauth_state"

var ErrOAuthFailedStr = "oauth-failed"

// OAuthHandler runs the Google authorization-code flow and hands the
// browser back to the frontend with a freshly issued bearer token.
type OAuthHandler struct {
	authService AuthService
	config      *oauth2.Config
	frontendURL string
}

func NewGoogleOAuthHandler(service AuthService, clientID, clientSecret, redirectURL, frontendURL string) *OAuthHandler {
	return &OAuthHandler{
		authService: service,
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
		frontendURL: frontendURL,
	}
}

func (oh *OAuthHandler) RedirectHandler(ctx *gin.Context) {
	state, err := randomState()
	if err != nil {
		log.Error().Err(err).Msg("generating oauth state")
		ctx.String(http.StatusInternalServerError, ErrUnknownStr)
		return
	}

	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(oauthStateCookie, state, 300, "/", "", true, true)
	ctx.Redirect(http.StatusTemporaryRedirect, oh.config.AuthCodeURL(state))
}

func (oh *OAuthHandler) CallbackHandler(ctx *gin.Context) {
	expectedState, err := ctx.Cookie(oauthStateCookie)
	if err != nil || expectedState == "" || ctx.Query("state") != expectedState {
		ctx.String(http.StatusBadRequest, ErrOAuthFailedStr)
		return
	}
	ctx.SetCookie(oauthStateCookie, "", -1, "/", "", true, true)

	code := ctx.Query("code")
	if code == "" {
		ctx.String(http.StatusBadRequest, ErrOAuthFailedStr)
		return
	}

	reqCtx := ctx.Request.Context()

	exchanged, err := oh.config.Exchange(reqCtx, code)
	if err != nil {
		log.Error().Err(err).Msg("exchanging oauth code")
		ctx.String(http.StatusBadGateway, ErrOAuthFailedStr)
		return
	}

	profile, err := oh.fetchProfile(ctx, exchanged)
	if err != nil {
		log.Error().Err(err).Msg("fetching oauth profile")
		ctx.String(http.StatusBadGateway, ErrOAuthFailedStr)
		return
	}

	token, err := oh.authService.LoginOAuthUser(reqCtx, profile.Email, profile.Name, profile.Picture)
	if err != nil {
		log.Error().Err(err).Str("email", profile.Email).Msg("oauth login")
		ctx.String(http.StatusInternalServerError, ErrUnknownStr)
		return
	}

	redirect := oh.frontendURL + "/auth/callback?token=" + url.QueryEscape(token)
	ctx.Redirect(http.StatusTemporaryRedirect, redirect)
}

type googleProfile struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func (oh *OAuthHandler) fetchProfile(ctx *gin.Context, token *oauth2.Token) (googleProfile, error) {
	client := oh.config.Client(ctx.Request.Context(), token)
	resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		return googleProfile{}, err
	}
	defer resp.Body.Close()

	var profile googleProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return googleProfile{}, err
	}
	return profile, nil
}

func randomState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
