package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"peerquiz/internal/app"
	"peerquiz/internal/config"
	"peerquiz/internal/infra/memory"
	pgloader "peerquiz/internal/infra/postgres"
	redisinfra "peerquiz/internal/infra/redis"
	"peerquiz/internal/oracle"
	transport "peerquiz/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz room server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	stateTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	// Content comes from Postgres question sets when configured, else from
	// the HTTP source URL; either way a TTL cache fronts the loader.
	var loader oracle.SourceLoader = oracle.NewHTTPLoader(nil)
	if pool != nil {
		loader = pgloader.NewSourceLoader(pool)
	}
	sourceTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	if redisClient != nil {
		loader = redisinfra.NewSourceCache(redisClient, loader, sourceTTL)
	} else {
		loader = memory.NewSourceCache(loader, sourceTTL)
	}

	filter := oracle.NewFilter(cfg.Filter.BannedTerms)

	factory := func(id string) (*app.Room, error) {
		var store app.StateStore
		var closers []func()
		if redisClient != nil {
			rs := redisinfra.NewStateStore(redisClient, id, stateTTL)
			store = rs
			closers = append(closers, func() { _ = rs.Close() })
		} else {
			ms := memory.NewStateStore()
			store = ms
			closers = append(closers, ms.Close)
		}

		worker := oracle.NewWorker(loader, filter)
		workerCtx, cancel := context.WithCancel(context.Background())
		go worker.Run(workerCtx)
		client := oracle.NewClient(worker)
		closers = append(closers, client.Close, cancel)

		coordinator := app.NewCoordinator(store, client)
		return app.NewRoom(id, coordinator, func() {
			for _, closer := range closers {
				closer()
			}
		}), nil
	}
	rooms := memory.NewRoomStore(factory)

	wsHandler := transport.NewWSHandler(rooms, cfg.Quiz.Source)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting peerquiz on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
