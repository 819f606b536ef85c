package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "cloudmining",
		Short:        "Cloud mining share ledger",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("rpc", "", "EVM RPC URL")
	flags.String("holding-key", "", "hex private key of the holding (reservoir) address")
	flags.String("owner", "", "owner address")
	flags.String("caller", "", "address the command acts as (defaults to owner)")
	flags.String("ledger-name", "main", "ledger name in the state store")
	flags.String("state-file", "./data/ledger.json", "ledger state file, used when pg-dsn is empty")
	flags.String("pg-dsn", "", "Postgres DSN for ledger state")
	flags.String("journal", "./data/journal.jsonl", "operation journal JSONL path")
	flags.String("redis-addr", "", "Redis address for the cross-process ledger lock")
	flags.Duration("lock-ttl", 2*time.Minute, "ledger lock lease")
	flags.Duration("lock-wait", 10*time.Second, "how long to wait for a busy ledger lock")
	flags.Int("max-retries", 5, "maximum retry attempts")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		deployCmd(),
		mintCmd(),
		setPriceCmd(),
		setParamsCmd(),
		summaryCmd(),
		enterCmd(),
		transferCmd(),
		balanceCmd(),
		distributeCmd(),
		watchCmd(),
		withdrawCmd(),
		withdrawAllCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
