package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Fi44er/cashier_bot/config"
	"github.com/Fi44er/cashier_bot/db"
	"github.com/Fi44er/cashier_bot/internal/bot"
	"github.com/Fi44er/cashier_bot/internal/metrics"
	"github.com/Fi44er/cashier_bot/internal/ratefeed"
	"github.com/Fi44er/cashier_bot/internal/scheduler"
	"github.com/Fi44er/cashier_bot/utils"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const (
	settleInterval = time.Hour
	purgeInterval  = time.Hour
	evictInterval  = 10 * time.Minute
)

var envPath string

var rootCmd = &cobra.Command{
	Use:           "cashier-bot",
	Short:         "Telegram cashier for a betting platform",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBot,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the Telegram bot (default)",
	RunE:  runBot,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE:  runMigrate,
}

var settleCmd = &cobra.Command{
	Use:   "settle-referrals",
	Short: "Move accrued referral commissions to wallets",
	RunE:  runSettle,
}

var purgeCmd = &cobra.Command{
	Use:   "purge-gift-codes",
	Short: "Delete expired gift codes",
	RunE:  runPurge,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envPath, "env", ".env", "Path to the .env file")
	settleCmd.Flags().Bool("ready-only", false, "Only settle earnings older than REFERRAL_MATURITY")

	rootCmd.AddCommand(runCmd, migrateCmd, settleCmd, purgeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runBot(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx, envPath)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	logger := a.logger

	api, err := tgbotapi.NewBotAPI(a.cfg.TelegramBotToken)
	if err != nil {
		return fmt.Errorf("failed to create bot API: %w", err)
	}
	logger.Infof("Authorized as @%s", api.Self.UserName)

	checks := map[string]metrics.HealthCheck{"db": a.pingDB}

	var states bot.StateStore
	var evicter scheduler.Evicter
	if a.cfg.RedisURL != "" {
		opts, err := redis.ParseURL(a.cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		states = bot.NewRedisStateStore(client, a.cfg.TenantID, a.cfg.StateTTL)
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		logger.Info("✅ Chat state stored in redis")
	} else {
		memory := bot.NewMemoryStateStore(a.cfg.StateTTL)
		states, evicter = memory, memory
	}

	var settle time.Duration
	if a.cfg.AutoSettleReferrals {
		settle = settleInterval
	}
	sched, err := scheduler.New(a.service, evicter, scheduler.Options{
		SettleInterval: settle,
		PurgeInterval:  purgeInterval,
		ReloadInterval: a.cfg.ConfigReloadInterval,
		EvictInterval:  evictInterval,
		RateInterval:   a.cfg.RateFeedInterval,
	}, logger)
	if err != nil {
		return err
	}
	if a.cfg.RateFeedInterval > 0 {
		sched.WithRateFeed(ratefeed.NewFeed("", "", 10*time.Second, logger))
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := sched.Shutdown(); err != nil {
			logger.Errorf("Scheduler shutdown failed: %v", err)
		}
	}()

	if a.cfg.MetricsAddr != "" {
		server := &http.Server{
			Addr:              a.cfg.MetricsAddr,
			Handler:           metrics.NewRouter(checks),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Infof("Metrics listening on %s", a.cfg.MetricsAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("Metrics server stopped: %v", err)
			}
		}()
		defer shutdownServer(server, logger)
	}

	cashier := bot.NewBot(bot.NewTelegramMessenger(api, logger), a.service, states, logger, &a.cfg, api.Self.UserName)
	cashier.Start(ctx, api)
	return nil
}

func shutdownServer(server *http.Server, logger *utils.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Metrics server shutdown failed: %v", err)
	}
}

func runMigrate(_ *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(envPath)
	if err != nil {
		return err
	}
	logger := utils.InitLogger(cfg.LogLevel)

	database, err := db.ConnectDb(cfg.DB_URL, logger)
	if err != nil {
		return err
	}
	if sqlDB, err := database.DB(); err == nil {
		defer sqlDB.Close()
	}
	return db.Migrate(database, true, logger)
}

func runSettle(cmd *cobra.Command, _ []string) error {
	readyOnly, _ := cmd.Flags().GetBool("ready-only")

	a, err := bootstrap(cmd.Context(), envPath)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.service.SettleReferrals(cmd.Context(), readyOnly)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "settled %d earnings for %d earners, total %s\n",
		res.Records, res.Earners, res.TotalAmount.StringFixed(2))
	return nil
}

func runPurge(cmd *cobra.Command, _ []string) error {
	a, err := bootstrap(cmd.Context(), envPath)
	if err != nil {
		return err
	}
	defer a.close()

	n, err := a.service.PurgeExpiredGiftCodes(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired gift codes\n", n)
	return nil
}
