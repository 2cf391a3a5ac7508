package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/chris/taskchat/config"
	"github.com/chris/taskchat/internal/agent"
	"github.com/chris/taskchat/internal/api"
	"github.com/chris/taskchat/internal/auth"
	"github.com/chris/taskchat/internal/db"
	"github.com/chris/taskchat/internal/llm"
	"github.com/chris/taskchat/internal/scheduler"
	"github.com/chris/taskchat/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	chatAs := flag.String("chat", "", "chat in the terminal as this user id instead of serving HTTP")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := newLogger(cfg)

	if *chatAs == "" {
		if err := cfg.Validate(); err != nil {
			logger.Fatalf("invalid config: %v", err)
		}
	} else if cfg.OpenAIKey == "" {
		logger.Fatal("OPENAI_API_KEY is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Init(ctx, telemetry.Config{Exporter: cfg.OTelExporter, Endpoint: cfg.OTelEndpoint})
	if err != nil {
		logger.Fatalf("failed to init telemetry: %v", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			logger.WithError(err).Warn("telemetry shutdown")
		}
	}()

	database, err := db.Open(cfg.DatabasePath)
	if err != nil {
		logger.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	client := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:  cfg.OpenAIKey,
		Model:   cfg.LLMModel,
		BaseURL: cfg.OpenAIBaseURL,
		Timeout: cfg.LLMTimeout,
	})

	ag, err := agent.New(database, client,
		agent.WithHistoryLimit(cfg.HistoryLimit),
		agent.WithLogger(logger),
	)
	if err != nil {
		logger.Fatalf("failed to create agent: %v", err)
	}

	if *chatAs != "" {
		runCLI(ctx, ag, *chatAs)
		return
	}

	if err := runServer(ctx, cfg, logger, database, ag); err != nil {
		logger.Fatal(err)
	}
}

func newLogger(cfg *config.Config) *log.Logger {
	logger := log.New()
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warnf("unknown LOG_LEVEL %q, using info", cfg.LogLevel)
		level = log.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	}
	return logger
}

func runServer(ctx context.Context, cfg *config.Config, logger *log.Logger, database *db.DB, ag *agent.Agent) error {
	authn, err := newAuth(cfg)
	if err != nil {
		return err
	}
	defer authn.Close()

	deps := api.Deps{Store: database, Chat: ag, Auth: authn, Log: logger}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parsing REDIS_URL: %w", err)
		}
		rc := redis.NewClient(opts)
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		deps.Deduper = api.NewRedisDeduper(rc, cfg.IdempotencyTTL)
	} else {
		logger.Info("REDIS_URL not set, Idempotency-Key header is ignored")
	}

	if cfg.MaintenanceCron != "off" {
		sched := scheduler.New(logger)
		if err := sched.Add("db-maintenance", cfg.MaintenanceCron, database.Maintain); err != nil {
			return err
		}
		sched.Start()
		defer func() { <-sched.Stop().Done() }()
	}

	e := api.New(deps)

	errc := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.ListenAddr).Info("listening")
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(sctx)
}

func newAuth(cfg *config.Config) (*auth.Auth, error) {
	if cfg.JWKSURL != "" {
		return auth.NewFromJWKSURL(cfg.JWKSURL, cfg.JWTAudience, cfg.JWTIssuer)
	}
	return auth.New(auth.Options{
		Secret:   []byte(cfg.JWTSecret),
		Audience: cfg.JWTAudience,
		Issuer:   cfg.JWTIssuer,
	})
}

func runCLI(ctx context.Context, ag *agent.Agent, userID string) {
	scanner := bufio.NewScanner(os.Stdin)

	// Check if stdin is a pipe (non-interactive)
	stat, _ := os.Stdin.Stat()
	isPipe := (stat.Mode() & os.ModeCharDevice) == 0

	if !isPipe {
		fmt.Print("taskchat> ")
	}

	var conversationID int64
	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			if !isPipe {
				fmt.Print("taskchat> ")
			}
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		reply, err := ag.Chat(ctx, userID, conversationID, input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		} else {
			fmt.Println(reply.Response)
			conversationID = reply.ConversationID
		}

		if isPipe || ctx.Err() != nil {
			break // single exchange in pipe mode
		}
		fmt.Print("taskchat> ")
	}
}
