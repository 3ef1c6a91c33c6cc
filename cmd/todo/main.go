// Command todo is a command-line view over the todo store.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"todo-sync/internal/client"
	"todo-sync/internal/kv"
	"todo-sync/internal/local"
	"todo-sync/internal/store"
	"todo-sync/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

var (
	flagConfig   string
	flagAdapter  string
	flagDBPath   string
	flagRedisURL string
	flagAPIURL   string
	flagTimeout  time.Duration
	flagVerbose  bool
)

var rootCmd = &cobra.Command{
	Use:          "todo",
	Short:        "Keep a todo list in a local file, Redis, or a todo server",
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "todo.toml", "config file")
	pf.StringVar(&flagAdapter, "adapter", "", "storage: local, redis or remote")
	pf.StringVar(&flagDBPath, "db", "", "bolt file for the local adapter")
	pf.StringVar(&flagRedisURL, "redis-url", "", "Redis URL for the redis adapter")
	pf.StringVar(&flagAPIURL, "url", "", "todo server URL for the remote adapter")
	pf.DurationVar(&flagTimeout, "timeout", 0, "per-request timeout")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "log to stderr")
}

// resolveConfig applies flags the user set on top of the config file.
func resolveConfig(cmd *cobra.Command) (cliConfig, error) {
	cfg, err := loadConfig(flagConfig)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("adapter") {
		cfg.Adapter = strings.ToLower(flagAdapter)
	}
	if flags.Changed("db") {
		cfg.DBPath = flagDBPath
	}
	if flags.Changed("redis-url") {
		cfg.RedisURL = flagRedisURL
	}
	if flags.Changed("url") {
		cfg.APIURL = flagAPIURL
	}
	if flags.Changed("timeout") {
		cfg.Timeout.Duration = flagTimeout
	}
	return cfg, cfg.validate()
}

// session is one store on one adapter for the duration of a command.
type session struct {
	store  *store.Store
	closer io.Closer
}

func (s *session) Close() {
	s.store.Close()
	if s.closer != nil {
		s.closer.Close()
	}
}

// openSession builds the adapter, opens the store and waits for its initial load.
func openSession(ctx context.Context, cmd *cobra.Command) (*session, error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return nil, err
	}
	log := logger.Discard()
	if flagVerbose {
		logger.SetLevel("debug")
		log = logger.New(cmd.ErrOrStderr())
	}

	var (
		adapter store.Adapter
		closer  io.Closer
	)
	switch cfg.Adapter {
	case adapterRemote:
		adapter = client.New(cfg.APIURL, client.WithTimeout(cfg.Timeout.Duration))
	case adapterRedis:
		r, err := kv.DialRedis(ctx, cfg.RedisURL, "todo:")
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		adapter, closer = local.New(r), r
	default:
		db, err := kv.OpenBolt(cfg.DBPath, "")
		if err != nil {
			return nil, err
		}
		adapter, closer = local.New(db), db
	}

	s := store.New(adapter, store.WithLogger(log))
	sess := &session{store: s, closer: closer}
	waitCtx, cancel := context.WithTimeout(ctx, cfg.Timeout.Duration+time.Second)
	defer cancel()
	if err := s.WaitReady(waitCtx); err != nil {
		sess.Close()
		return nil, fmt.Errorf("load todos: %w", err)
	}
	return sess, nil
}
