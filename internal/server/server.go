package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/onboardly/onboardly/config"
	"github.com/onboardly/onboardly/internal/chat"
	"github.com/onboardly/onboardly/internal/interview"
	"github.com/onboardly/onboardly/internal/rtc"
	"github.com/onboardly/onboardly/internal/search"
	"github.com/onboardly/onboardly/internal/store"
)

func Run(addr string, cfg *appconfig.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ctx := context.Background()
	dsn := cfg.Storage.Postgres.DSN()
	_ = Migrate("file://migrations", dsn, "up", 0)

	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port),
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed (%s:%s): %w", cfg.Storage.Redis.Host, cfg.Storage.Redis.Port, err)
	}

	secret := cfg.General.JWTSecret
	if secret == "" {
		return fmt.Errorf("jwt secret not configured (general.jwt_secret)")
	}

	// full-text job search, rebuilt from the database on boot
	jobIndex, err := search.NewJobIndex()
	if err != nil {
		return err
	}
	if jobs, err := st.ListJobs(ctx); err == nil {
		if err := jobIndex.Rebuild(jobs); err != nil {
			return err
		}
	}

	creds := interview.Credentials{
		URL:       cfg.LiveKit.URL,
		APIKey:    cfg.LiveKit.APIKey,
		APISecret: cfg.LiveKit.APISecret,
	}
	sessionCfg := interview.Config{
		Questions:        cfg.Interview.Questions,
		QuestionInterval: cfg.Interview.QuestionInterval,
		NextStage:        cfg.Interview.NextStage,
		Audio: interview.AudioConfig{
			SampleRate:  cfg.Interview.Audio.SampleRate,
			Channels:    cfg.Interview.Audio.Channels,
			BitrateKbps: cfg.Interview.Audio.BitrateKbps,
		},
		Video: interview.VideoConfig{
			Width:       cfg.Interview.Video.Width,
			Height:      cfg.Interview.Video.Height,
			Framerate:   cfg.Interview.Video.Framerate,
			BitrateKbps: cfg.Interview.Video.BitrateKbps,
		},
	}
	ivLogger := log.New(log.Writer(), "[INTERVIEW] ", log.LstdFlags)
	var live interview.MediaProvider
	if interview.SelectMode(creds) == interview.ModeLive {
		live = rtc.NewProvider(creds.URL, creds.APIKey, creds.APISecret, cfg.LiveKit.TokenTTL, nil)
	} else {
		ivLogger.Printf("livekit credentials absent, interviews run in demo mode")
	}
	registry := interview.NewRegistry(creds, sessionCfg, cfg.Interview.SessionTTL,
		interview.NewDemoProvider(), live, rdb, ivLogger)
	recordOutcomes(registry, st, ivLogger)

	api := e.Group("/api")

	auth := &AuthHandler{Store: st, Secret: []byte(secret)}
	auth.Register(api.Group("/auth"))

	jh := &JobsHandler{Store: st, Index: jobIndex}
	jh.Register(api.Group("/jobs"), auth.Secret)

	ah := &ApplicationsHandler{Store: st, Uploads: cfg.Uploads}
	ah.Register(api.Group("/applications"), auth.Secret)
	e.Static("/uploads", cfg.Uploads.Dir)

	ih := &InterviewsHandler{Store: st, Registry: registry}
	ih.Register(api.Group("/interviews"))

	th := &TokenHandler{Creds: creds, TTL: cfg.LiveKit.TokenTTL}
	th.Register(api)

	if cfg.Chat.Endpoint != "" {
		ch := &ChatHandler{Client: chat.NewClient(cfg.Chat.Endpoint, cfg.Chat.AppName, cfg.Chat.Timeout, nil)}
		ch.Register(api.Group("/chat"))
	}

	sched := &Scheduler{Registry: registry, Rdb: rdb, Cron: cfg.Interview.CleanupCron, Stop: make(chan struct{})}
	sched.Start()

	if addr == "" {
		addr = cfg.General.Listen
		if addr != "" && addr[0] != ':' {
			addr = ":" + addr
		}
		if addr == "" {
			addr = ":5090"
		}
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
