package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/solatis/modmail/internal/core/auth"
	"github.com/solatis/modmail/internal/core/bot"
	"github.com/solatis/modmail/internal/core/config"
	"github.com/solatis/modmail/internal/core/server"
	"github.com/solatis/modmail/internal/reddit"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Watch modmail and apply wiki rules",
	RunE:  runListen,
}

func init() {
	rootCmd.AddCommand(listenCmd)
	listenCmd.Flags().StringSlice("subreddit", nil, "subreddit to watch (repeatable, merged with the subreddits file)")
	listenCmd.Flags().StringSlice("state", nil, "mailbox state to watch (repeatable)")
	listenCmd.Flags().String("wiki-page", "", "wiki page holding the rules")
	listenCmd.Flags().String("metrics-addr", "", "HTTP address for /metrics and /healthz (empty disables)")
	listenCmd.Flags().String("health-addr", "", "gRPC health address (empty disables)")
}

func runListen(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Reddit.ValidateCredentials(); err != nil {
		return err
	}

	subreddits, err := cfg.Reddit.AllSubreddits()
	if err != nil {
		return fmt.Errorf("failed to load subreddits: %w", err)
	}
	if len(subreddits) == 0 {
		return fmt.Errorf("no subreddits configured (set reddit.subreddits, --subreddit or %s)", cfg.Reddit.SubredditsFile)
	}

	httpClient := &http.Client{Timeout: cfg.Reddit.RequestTimeout}
	tokens := auth.NewTokenSource(cfg.Reddit.TokenURL, auth.Credentials{
		ClientID:     cfg.Reddit.ClientID,
		ClientSecret: cfg.Reddit.ClientSecret,
		Username:     cfg.Reddit.Username,
		Password:     cfg.Reddit.Password,
		UserAgent:    cfg.Reddit.UserAgent,
	}, httpClient)
	client := reddit.NewClient(tokens, reddit.Options{
		BaseURL:        cfg.Reddit.BaseURL,
		HTTPClient:     httpClient,
		RequestTimeout: cfg.Reddit.RequestTimeout,
		MaxRetries:     uint(cfg.Reddit.MaxRetries),
		Logger:         logger,
	})

	health := server.NewHealthServer()
	opts := bot.Options{
		Subreddits:   subreddits,
		States:       cfg.Reddit.States,
		WikiPage:     cfg.Reddit.WikiPage,
		PollInterval: cfg.Reddit.PollInterval,
		Health:       health,
		Logger:       logger,
	}

	if dbURL != "" {
		database, journal, err := openJournal(ctx)
		if err != nil {
			return err
		}
		defer database.Close()
		opts.Journal = journal
	}

	service, err := bot.NewService(client, opts)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.HealthAddr != "" {
		addr, err := health.Listen(cfg.Server.HealthAddr)
		if err != nil {
			return err
		}
		logger.Info("serving gRPC health", "addr", addr.String())
		g.Go(health.Serve)
	}

	var metrics *server.HTTPServer
	if cfg.Server.MetricsAddr != "" {
		metrics = server.NewHTTPServer(cfg.Server.MetricsAddr, health)
		logger.Info("serving metrics", "addr", cfg.Server.MetricsAddr)
		g.Go(metrics.Start)
	}

	g.Go(func() error {
		err := service.Listen(gctx)
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if metrics != nil {
			if serr := metrics.Shutdown(shutdownCtx); serr != nil {
				logger.Warn("metrics server shutdown", "error", serr)
			}
		}
		if serr := health.Shutdown(shutdownCtx); serr != nil {
			logger.Warn("health server shutdown", "error", serr)
		}
		return err
	})

	logger.Info("starting modmail bot",
		"version", Version,
		"subreddits", subreddits,
		"states", fmt.Sprint(cfg.Reddit.States))
	return g.Wait()
}
