package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"

	"github.com/blackcoin/backend/internal/database"
	"github.com/blackcoin/backend/internal/handlers"
	mW "github.com/blackcoin/backend/internal/middleware"
	"github.com/blackcoin/backend/internal/notify"
	"github.com/blackcoin/backend/internal/services"
	"github.com/blackcoin/backend/internal/telegram"
)

func main() {
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	viper.BindEnv("smtp.host", "SMTP_HOST")
	viper.BindEnv("smtp.port", "SMTP_PORT")
	viper.BindEnv("smtp.user", "SMTP_USER")
	viper.BindEnv("smtp.password", "SMTP_PASSWORD")

	viper.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN")
	viper.BindEnv("telegram.webhook_url", "TELEGRAM_WEBHOOK_URL")
	viper.BindEnv("frontend.url", "FRONTEND_URL")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	botAPI := telegram.InitAPI()

	// Channel choice lives here: email for addresses, Telegram for chat ids.
	var chatSender notify.Sender
	if botAPI != nil {
		chatSender = notify.NewTelegramSender(botAPI)
	}
	sender := notify.NewRouter(notify.NewEmailSender(), chatSender)

	codeStore := services.NewPostgresCodeStore(db)
	verificationService := services.NewVerificationService(codeStore, sender, redisClient)
	ledgerService := services.NewLedgerService(db)
	referralService := services.NewReferralService(db, redisClient, ledgerService)
	authService := services.NewAuthService(db, redisClient, verificationService, referralService)
	userService := services.NewUserService(db, ledgerService)

	// Matched and expired codes delete themselves; this sweep only catches
	// codes that were never presented.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if err := codeStore.PurgeExpired(context.Background()); err != nil {
				log.Printf("Verification code purge failed: %v", err)
			}
		}
	}()

	verificationHandler := handlers.NewVerificationHandler(verificationService)
	transferHandler := handlers.NewTransferHandler(ledgerService, userService)
	referralHandler := handlers.NewReferralHandler(referralService)

	var bot *telegram.Bot
	if botAPI != nil {
		bot = telegram.NewBot(botAPI, db, ledgerService)
		if err := bot.RegisterWebhook(); err != nil {
			log.Printf("Warning: failed to register Telegram webhook: %v", err)
		}
	}

	mW.InitAuthMiddleware(redisClient)

	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{viper.GetString("frontend.url")},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	if bot != nil {
		r.Post("/webhook", bot.WebhookHandler)
	}

	// Static file server for avatars
	r.Handle("/static/avatars/*", http.StripPrefix("/static/avatars/",
		mW.StaticFileServer("./static/avatars")))

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)
		r.Post("/auth/telegram", authService.TelegramLogin)
		r.Post("/auth/verify", authService.VerifyAccount)
		r.Post("/auth/resend-code", authService.ResendCode)
		r.Post("/verification/send-code", verificationHandler.SendCode)
		r.Post("/verification/check-code", verificationHandler.CheckCode)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/me", userService.GetProfile)

			r.Post("/points/send", transferHandler.SendPoints)
			r.Get("/points/balance", transferHandler.GetBalance)
			r.Get("/points/history", transferHandler.ListEntries)

			r.Get("/referral/qr", referralHandler.GetReferralQR)

			// Admin endpoints
			r.Group(func(r chi.Router) {
				r.Use(mW.AdminOnly)

				r.Get("/admin/users", userService.ListUsers)
				r.Put("/admin/users/{userId}", userService.UpdateUser)
				r.Post("/admin/users/{userId}/points", userService.AdjustPoints)
				r.Post("/admin/users/{userId}/wallet", userService.AdjustWallet)
			})
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
