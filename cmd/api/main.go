package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"absenin/internal/attendance"
	"absenin/internal/auth"
	"absenin/internal/config"
	"absenin/internal/faceclient"
	"absenin/internal/handler"
	"absenin/internal/httpmiddleware"
	"absenin/internal/store"
	"absenin/internal/upload"
	"absenin/internal/user"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	faces := faceclient.New(cfg.FaceAPIURL, cfg.FaceAPIKey, cfg.FaceTimeout)
	if cfg.FaceAPIKey == "" {
		log.Println("warning: FACE_API_KEY not set, provider calls will be rejected")
	}

	uploads, err := upload.NewSaver(cfg.UploadDir)
	if err != nil {
		return err
	}

	userRepo := user.NewRepository(db.Client)
	userSvc := user.NewService(userRepo, faces)

	ledger := attendance.NewRepository(db.Client)
	attSvc := attendance.NewService(ledger, faces, userRepo)

	h := handler.New(userSvc, attSvc, uploads, cfg)

	var publicLimiter httpmiddleware.Limiter
	if cfg.RateLimitBackend == "redis" {
		publicLimiter = httpmiddleware.NewRedisWindow(redisClient.Client, "absenin:public", cfg.RateLimitPerMin, time.Minute)
	} else {
		publicLimiter = httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	api := r.Group("/api")

	users := api.Group("/users")
	users.POST("/register", h.Register)
	users.POST("/login", h.Login)

	usersAuth := users.Group("", auth.RequireAuth(cfg.JWTSigningKey, cfg.JWTIssuer, userRepo))
	usersAuth.GET("/profile", h.Profile)
	usersAuth.PUT("/profile", h.UpdateProfile)
	usersAuth.POST("/face", h.AddFace)
	usersAuth.GET("", auth.RequireAdmin(), h.ListUsers)

	att := api.Group("/attendance", auth.RequireAuth(cfg.JWTSigningKey, cfg.JWTIssuer, userRepo))
	att.POST("/checkin", h.CheckIn)
	att.POST("/checkout", h.CheckOut)
	att.GET("/history", h.History)
	att.GET("/all", auth.RequireAdmin(), h.AllAttendance)

	public := api.Group("/public", httpmiddleware.RateLimit(publicLimiter))
	public.POST("/checkin", h.PublicCheckIn)
	public.POST("/checkout", h.PublicCheckOut)
	public.POST("/register-face", h.PublicRegisterFace)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}

	log.Println("server exited")
	return nil
}

// CORS middleware for browser requests.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
