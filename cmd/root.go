// Package cmd wires the apiward CLI: configuration, logging, telemetry,
// and the scan/results/checkpoints command tree.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/apiward/apiward/internal/config"
	"github.com/apiward/apiward/internal/core"
	"github.com/apiward/apiward/internal/database"
	"github.com/apiward/apiward/internal/logger"
	"github.com/apiward/apiward/internal/telemetry"
	"github.com/apiward/apiward/pkg/checkpoint"
)

var (
	cfgFile string
	scope   string

	cfg *config.Config
	log *logger.Logger
	tel core.Telemetry
)

var rootCmd = &cobra.Command{
	Use:   "apiward",
	Short: "API compliance and security scanner",
	Long: `apiward probes HTTP APIs for GDPR/UAVG compliance gaps, EU AI Act
transparency issues, and common security weaknesses.

It discovers endpoints (common paths, robots.txt, sitemaps, OpenAPI specs),
probes each one across methods, inspects responses for exposed PII including
Dutch BSN numbers, and rolls everything up into a compliance report with
remediation guidance and regulator notification obligations.

Examples:
  # Scan an API with the defaults
  apiward scan https://api.example.nl

  # Scan specific endpoints and save the report
  apiward scan https://api.example.nl --endpoints /users,/orders --save

  # Resume an interrupted scan
  apiward scan https://api.example.nl --resume api-1a2b3c4d-e5f6a7b8

Configuration comes from flags, APIWARD_* environment variables, or a
.apiward.yaml file in the working directory or home directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}

		var err error
		log, err = logger.New(cfg.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		tel = telemetry.NewNoop()
		if cfg.Telemetry.Enabled {
			t, err := telemetry.New(cmd.Context(), cfg.Telemetry)
			if err != nil {
				log.Warnw("Telemetry init failed, continuing without metrics",
					"endpoint", cfg.Telemetry.Endpoint,
					"error", err.Error(),
				)
			} else {
				tel = t
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if tel != nil {
			if err := tel.Close(); err != nil && log != nil {
				log.Warnw("Telemetry shutdown failed", "error", err.Error())
			}
		}
		if log != nil {
			syncLogger(log)
		}
	},
}

// Execute runs the CLI. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default .apiward.yaml in cwd or home)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (default info)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: console or json (default console)")
	rootCmd.PersistentFlags().String("db-dsn", "", "Postgres DSN for storing scan results")
	rootCmd.PersistentFlags().String("redis-addr", "", "Redis address for checkpoints (default localhost:6379)")
	rootCmd.PersistentFlags().StringVar(&scope, "scope", "", "Checkpoint namespace, keeps concurrent callers isolated")

	viper.BindPFlag("logger.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("logger.format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("database.dsn", rootCmd.PersistentFlags().Lookup("db-dsn"))
	viper.BindPFlag("redis.addr", rootCmd.PersistentFlags().Lookup("redis-addr"))
}

// initConfig layers defaults, an optional config file, APIWARD_* environment
// variables, and bound flags into one Config. Later sources win.
func initConfig() error {
	viper.SetEnvPrefix("APIWARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setViperDefaults(config.DefaultConfig())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".apiward")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg = &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}
	return nil
}

// setViperDefaults registers every config key so AutomaticEnv picks up
// APIWARD_* overrides for keys absent from flags and config files.
func setViperDefaults(d *config.Config) {
	viper.SetDefault("logger.level", d.Logger.Level)
	viper.SetDefault("logger.format", d.Logger.Format)
	viper.SetDefault("logger.output_paths", d.Logger.OutputPaths)

	viper.SetDefault("database.driver", d.Database.Driver)
	viper.SetDefault("database.dsn", d.Database.DSN)
	viper.SetDefault("database.max_connections", d.Database.MaxConnections)
	viper.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	viper.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)

	viper.SetDefault("redis.addr", d.Redis.Addr)
	viper.SetDefault("redis.password", d.Redis.Password)
	viper.SetDefault("redis.db", d.Redis.DB)
	viper.SetDefault("redis.max_retries", d.Redis.MaxRetries)
	viper.SetDefault("redis.dial_timeout", d.Redis.DialTimeout)
	viper.SetDefault("redis.read_timeout", d.Redis.ReadTimeout)
	viper.SetDefault("redis.write_timeout", d.Redis.WriteTimeout)

	viper.SetDefault("telemetry.enabled", d.Telemetry.Enabled)
	viper.SetDefault("telemetry.service_name", d.Telemetry.ServiceName)
	viper.SetDefault("telemetry.exporter_type", d.Telemetry.ExporterType)
	viper.SetDefault("telemetry.endpoint", d.Telemetry.Endpoint)
	viper.SetDefault("telemetry.sample_rate", d.Telemetry.SampleRate)

	viper.SetDefault("scanner.max_endpoints", d.Scanner.MaxEndpoints)
	viper.SetDefault("scanner.timeout", d.Scanner.Timeout)
	viper.SetDefault("scanner.delay", d.Scanner.Delay)
	viper.SetDefault("scanner.batch_size", d.Scanner.BatchSize)
	viper.SetDefault("scanner.workers", d.Scanner.Workers)
	viper.SetDefault("scanner.batch_pause", d.Scanner.BatchPause)
	viper.SetDefault("scanner.follow_redirects", d.Scanner.FollowRedirects)
	viper.SetDefault("scanner.verify_tls", d.Scanner.VerifyTLS)
	viper.SetDefault("scanner.region", d.Scanner.Region)
	viper.SetDefault("scanner.user_agent", d.Scanner.UserAgent)
	viper.SetDefault("scanner.checkpoint_every", d.Scanner.CheckpointEvery)
	viper.SetDefault("scanner.checkpoint_ttl", d.Scanner.CheckpointTTL)

	viper.SetDefault("rate_limit.requests_per_second", d.RateLimit.RequestsPerSecond)
	viper.SetDefault("rate_limit.burst_size", d.RateLimit.BurstSize)
	viper.SetDefault("rate_limit.base_delay", d.RateLimit.BaseDelay)
	viper.SetDefault("rate_limit.max_delay", d.RateLimit.MaxDelay)
	viper.SetDefault("rate_limit.max_retries", d.RateLimit.MaxRetries)

	viper.SetDefault("enrich.enabled", d.Enrich.Enabled)
	viper.SetDefault("enrich.timeout", d.Enrich.Timeout)
}

// newCheckpointManager prefers Redis so checkpoints survive process
// restarts, falling back to process memory when Redis is unreachable.
func newCheckpointManager() *checkpoint.Manager {
	memory := checkpoint.NewMemoryStore()
	store := memory

	if redisStore, err := checkpoint.NewRedisStore(cfg.Redis); err != nil {
		log.Warnw("Redis unavailable, checkpoints will not survive restarts",
			"addr", cfg.Redis.Addr,
			"error", err.Error(),
		)
	} else {
		store = checkpoint.NewFallbackStore(redisStore, memory)
	}

	return checkpoint.NewManager(store, scope, cfg.Scanner.CheckpointTTL)
}

// openStore connects to the configured result database. Scans run without
// one; persistence commands require it.
func openStore() (core.ResultStore, error) {
	if cfg.Database.DSN == "" {
		return nil, errors.New("no database configured: set --db-dsn or APIWARD_DATABASE_DSN")
	}
	return database.NewStore(cfg.Database, log)
}

// syncLogger flushes buffered entries. Stdout and stderr report EINVAL on
// sync; that is expected, not a failure.
func syncLogger(l *logger.Logger) {
	if err := l.Sync(); err != nil {
		msg := err.Error()
		if strings.Contains(msg, "sync /dev/stdout") || strings.Contains(msg, "sync /dev/stderr") {
			return
		}
		fmt.Fprintf(os.Stderr, "logger sync: %v\n", err)
	}
}

// scanContext is the base context for commands. Cancellation is driven by
// the signal handling in the scan command, not here.
func scanContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
