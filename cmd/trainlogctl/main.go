package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/2beens/trainlog/internal/config"
	"github.com/2beens/trainlog/internal/db"
	"github.com/2beens/trainlog/internal/logging"
	"github.com/2beens/trainlog/internal/trainlog/logsync"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	flagEnv        string
	flagConfigPath string
	flagUserID     string
	flagLogLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "trainlogctl",
	Short: "Inspect and maintain stored training logs",
	Long: `trainlogctl works directly against the snapshot storage configured for the
given environment (redis or postgres). Running services pick up the changes
through their subscriptions.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// stdout carries command output
		logging.Setup(logging.LoggerSetupParams{
			Console:  os.Stderr,
			LogLevel: flagLogLevel,
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagEnv, "env", "development", "environment [prod | production | dev | development]")
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "./config.toml", "path for the TOML config file")
	rootCmd.PersistentFlags().StringVarP(&flagUserID, "user", "u", "", "user id owning the training log")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "log level")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func requireUserID() (string, error) {
	if flagUserID == "" {
		return "", errors.New("user id not set, use --user")
	}
	return flagUserID, nil
}

// openRepo connects to the configured snapshot storage; closeRepo releases the connections.
func openRepo(ctx context.Context) (_ logsync.SnapshotRepo, closeRepo func(), err error) {
	cfg, err := config.Load(flagEnv, flagConfigPath)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.SnapshotStorage {
	case config.StorageRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
			Password: os.Getenv("TRAINLOG_REDIS_PASS"),
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		return logsync.NewRedisRepo(rdb, cfg.AppID), func() {
			if err := rdb.Close(); err != nil {
				log.Errorf("close redis client: %s", err)
			}
		}, nil
	case config.StoragePostgres:
		dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
			DBHost:     cfg.PostgresHost,
			DBPort:     cfg.PostgresPort,
			DBName:     cfg.PostgresDBName,
			DBPassword: os.Getenv("TRAINLOG_POSTGRES_PASS"),
			MaxConns:   2,
		})
		if err != nil {
			return nil, nil, err
		}
		repo := logsync.NewPsqlRepo(dbPool, cfg.AppID)
		return repo, func() {
			repo.Close()
			dbPool.Close()
		}, nil
	default:
		return nil, nil, fmt.Errorf("snapshot storage [%s] is not reachable from outside the service", cfg.SnapshotStorage)
	}
}
