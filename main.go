package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Nebulaz7/veil/auth"
	"github.com/Nebulaz7/veil/crypto"
	"github.com/Nebulaz7/veil/migrations"
	"github.com/Nebulaz7/veil/room"
	"github.com/Nebulaz7/veil/storage"
)

func CreateServer(allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.SetTrustedProxies([]string{"127.0.0.1", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"})
	r.GET("/health", func(ctx *gin.Context) { ctx.String(200, "healthy") })

	r.Use(func(ctx *gin.Context) {
		origin := ctx.Request.Header.Get("Origin")

		// non-browser clients send no Origin header
		if origin == "" || slices.Contains(allowedOrigins, origin) {
			ctx.Next()
			return
		}
		ctx.String(http.StatusForbidden, "forbidden origin")
		ctx.Abort()
	})

	r.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowCredentials: true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Authorization",
			"Upgrade",
			"Connection",
			"Sec-WebSocket-Key",
			"Sec-WebSocket-Version",
			"Sec-WebSocket-Extensions",
			"Sec-WebSocket-Protocol",
		},
	}))

	return r
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(os.Stdout)

	// .env is optional; real deployments inject the environment directly
	godotenv.Load()

	ALLOWED_ORIGINS, exists := os.LookupEnv("ALLOWED_ORIGINS")
	if !exists {
		log.Fatal().Msg("Missing allowed origins")
	}
	allowedOrigins := strings.Split(ALLOWED_ORIGINS, ",")

	POSTGRES_URL, exists := os.LookupEnv("POSTGRES_URL")
	if !exists {
		log.Fatal().Msg("Missing postgres url")
	}

	JWT_KEY, exists := os.LookupEnv("JWT_KEY")
	if !exists {
		log.Fatal().Msg("Missing jwt signing key")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "5000"
	}

	pollTTL := time.Duration(0)
	if raw := os.Getenv("POLL_TTL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			log.Fatal().Err(err).Msg("Bad POLL_TTL value")
		}
		pollTTL = parsed
	}

	migrations.Migrate(POSTGRES_URL)

	pgRepo, err := storage.NewPostgresRepo(context.Background(), POSTGRES_URL)
	if err != nil {
		log.Fatal().Err(err).Msg("connecting to postgres")
	}

	tokenAge := time.Hour * 24 * 7 // 7 days
	passwordHasher := crypto.NewArgon2idHasher(3, 1024*64, 32, 16, 1)
	tokenManager := crypto.NewJWTManager(JWT_KEY, tokenAge)

	authService := auth.NewService(pgRepo, passwordHasher, tokenManager)
	authHandler := auth.NewAuthHandler(authService)

	r := CreateServer(allowedOrigins)

	{
		authGroup := r.Group("/auth")
		authGroup.POST("/signup", authHandler.SignupHandler)
		authGroup.POST("/login", authHandler.LoginHandler)
		authGroup.POST("/logout", authHandler.LogoutHandler)
		authGroup.GET("/refresh", authHandler.RequireAuthMiddleware(time.Second*2), authHandler.RefreshHandler)
		authGroup.GET("/me", authHandler.RequireAuthMiddleware(time.Second*2), authHandler.MeHandler)

		googleClientID, hasGoogle := os.LookupEnv("GOOGLE_CLIENT_ID")
		if hasGoogle {
			oauthHandler := auth.NewGoogleOAuthHandler(
				authService,
				googleClientID,
				os.Getenv("GOOGLE_CLIENT_SECRET"),
				os.Getenv("GOOGLE_REDIRECT_URL"),
				os.Getenv("FRONTEND_URL"),
			)
			authGroup.GET("/google", oauthHandler.RedirectHandler)
			authGroup.GET("/google/callback", oauthHandler.CallbackHandler)
		} else {
			log.Warn().Msg("GOOGLE_CLIENT_ID not set, Google login disabled")
		}
	}

	tickerGen := room.NewTickerGen()
	hub := room.NewHub(pgRepo, pollTTL, tickerGen)

	hubStarted := make(chan struct{})
	go hub.HubActor(hubStarted)
	<-hubStarted

	roomHandler := room.NewRoomHandler(hub, pgRepo)
	{
		roomGroup := r.Group("/rooms")
		roomGroup.POST("", authHandler.RequireAuthMiddleware(time.Second*2), roomHandler.CreateRoomHandler)
		roomGroup.GET("/:id", roomHandler.GetRoomHandler)
		roomGroup.GET("/:id/polls", roomHandler.GetRoomPollsHandler)
		roomGroup.GET("/:id/live", roomHandler.SocketHandler)
	}
	r.POST("/polls/:id/vote", authHandler.RequireAuthMiddleware(time.Second*2), roomHandler.VotePollHandler)
	r.GET("/user/room/:id/no", roomHandler.GetParticipantCountHandler)

	go r.Run(":" + port)
	log.Info().Str("port", port).Msg("server started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, os.Interrupt)
	<-sigCh
	log.Info().Msg("SIGTERM or SIGINT received, shutting down")

	pgRepo.Close()
}
