package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"kanban-api/api"
	"kanban-api/service"
	"kanban-api/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	boardsTable := os.Getenv("BOARDS_TABLE")
	columnsTable := os.Getenv("COLUMNS_TABLE")
	tasksTable := os.Getenv("TASKS_TABLE")
	changesQueue := os.Getenv("CHANGES_QUEUE")
	if connStr == "" || boardsTable == "" || columnsTable == "" || tasksTable == "" || changesQueue == "" {
		log.Fatal("missing storage config")
	}

	if ensure, err := strconv.ParseBool(os.Getenv("ENSURE_TABLES")); err == nil && ensure {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		if err := storage.EnsureTables(ctx, connStr, boardsTable, columnsTable, tasksTable, changesQueue); err != nil {
			cancel()
			log.Fatalf("ensure tables: %v", err)
		}
		cancel()
	}

	store, err := storage.New(connStr, boardsTable, columnsTable, tasksTable, changesQueue)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	rc := redis.NewClient(redisOptions())

	cacheTTL := parseDurationEnv("CACHE_TTL", 5*time.Minute)
	cached := storage.NewCache(store, rc, cacheTTL)

	idemTTL := parseDurationEnv("IDEMPOTENCY_TTL", 24*time.Hour)
	deduper := api.NewRedisDeduper(rc, idemTTL)

	logger := log.New()

	feedWorkers := parseIntEnv("FEED_WORKERS", 0)
	feedBuffer := parseIntEnv("FEED_BUFFER", 0)
	feedTimeout := parseDurationEnv("FEED_TIMEOUT", 0)
	feed := service.NewChangeFeed(store, logger, feedWorkers, feedBuffer, feedTimeout)
	defer feed.Close()

	boards := service.NewBoardService(cached, feed)
	columns := service.NewColumnService(cached, feed)
	tasks := service.NewTaskService(cached, feed)
	boardData := service.NewBoardDataService(boards, columns, tasks)

	auth := buildAuth()

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
	}))
	e.Use(middleware.Decompress())
	e.Use(echoprometheus.NewMiddleware("kanban_api"))
	e.GET("/metrics", echoprometheus.NewHandler())

	api.Register(e, api.Services{
		Boards:    boards,
		Columns:   columns,
		Tasks:     tasks,
		BoardData: boardData,
	}, auth, deduper, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

func buildAuth() *api.Auth {
	if os.Getenv("AUTH0_TEST_MODE") == "1" {
		return api.NewAuth(nil, "", "")
	}
	audience := os.Getenv("AUTH0_AUDIENCE")
	domain := os.Getenv("AUTH0_DOMAIN")
	if audience == "" || domain == "" {
		log.Fatal("missing Auth0 config")
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
	if err != nil {
		log.Fatalf("jwks: %v", err)
	}
	return api.NewAuth(jwks, audience, "https://"+domain+"/")
}

// redisOptions parses REDIS_CONNECTION_STRING, accepting either a redis URL
// or the Azure-style "host:port,password=...,ssl=true" form.
func redisOptions() *redis.Options {
	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	opts, err := redis.ParseURL(redisConn)
	if err == nil {
		return opts
	}
	parts := strings.Split(redisConn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}

func parseDurationEnv(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Fatalf("invalid %s: %q", name, v)
	}
	return d
}

func parseIntEnv(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		log.Fatalf("invalid %s: %q", name, v)
	}
	return n
}
