package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/hylla/nexus/internal/adapters/notify/redisnotify"
	serveradapter "github.com/hylla/nexus/internal/adapters/server"
	"github.com/hylla/nexus/internal/adapters/storage/sqlite"
	"github.com/hylla/nexus/internal/app"
	"github.com/hylla/nexus/internal/config"
	"github.com/hylla/nexus/internal/platform"
)

const appName = platform.AppName

// version stores the build version, overridden with -ldflags.
var version = "dev"

// program represents the subset of tea.Program used by the board command.
type program interface {
	Run() (tea.Model, error)
}

// programFactory builds the terminal program for the board command.
var programFactory = func(m tea.Model) program {
	return tea.NewProgram(m)
}

// serveCommandRunner starts the HTTP+MCP serve flow.
var serveCommandRunner = func(ctx context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
	return serveradapter.Run(ctx, cfg, deps)
}

// cliEnv carries process-level inputs so commands can run in tests.
type cliEnv struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string
	now    func() time.Time
}

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	dbPath     string
	devMode    bool
}

// main handles main.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(cliEnv{
		stdout: os.Stdout,
		stderr: os.Stderr,
		getenv: os.Getenv,
		now:    time.Now,
	})
	if err := fang.Execute(ctx, root, fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
}

// newRootCommand assembles the nexus command tree.
func newRootCommand(env cliEnv) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           appName,
		Short:         "Task status workflow with a live board",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(env.stdout)
	root.SetErr(env.stderr)
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config TOML")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	root.PersistentFlags().BoolVar(&opts.devMode, "dev", false, "use dev paths and enable the dev log file")

	root.AddCommand(
		serveCmd(env, opts),
		boardCmd(env, opts),
		pathsCmd(env, opts),
		projectCmd(env, opts),
		taskCmd(env, opts),
		notificationsCmd(env, opts),
	)
	return root
}

// runtime bundles the resolved config, storage, and service for one command.
type runtime struct {
	cfg     config.Config
	paths   platform.Paths
	logger  *runtimeLogger
	repo    *sqlite.Repository
	redis   *redis.Client
	service *app.Service
}

// resolvePaths applies platform defaults, env overrides, and flag overrides in that order.
func resolvePaths(env cliEnv, opts *rootOptions) (platform.Paths, error) {
	paths, err := platform.DefaultPathsWithOptions(platform.Options{
		AppName: appName,
		DevMode: opts.devMode,
	})
	if err != nil {
		return platform.Paths{}, fmt.Errorf("resolve paths: %w", err)
	}
	paths = paths.WithOverrides(env.getenv)
	if v := strings.TrimSpace(opts.configPath); v != "" {
		paths.ConfigPath = v
	}
	if v := strings.TrimSpace(opts.dbPath); v != "" {
		paths.DBPath = v
		paths.DataDir = filepath.Dir(v)
		paths.LogPath = filepath.Join(paths.DataDir, "logs", filepath.Base(paths.LogPath))
	}
	return paths, nil
}

// loadConfig reads and validates config, letting an explicit --db win over the file.
func loadConfig(opts *rootOptions, paths platform.Paths) (config.Config, error) {
	cfg, err := config.Load(paths.ConfigPath, config.Default(paths.DBPath))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config %q: %w", paths.ConfigPath, err)
	}
	if strings.TrimSpace(opts.dbPath) != "" {
		cfg.Database.Path = paths.DBPath
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// openRuntime loads config, opens storage, and constructs the service.
func openRuntime(ctx context.Context, env cliEnv, opts *rootOptions, command string) (*runtime, error) {
	paths, err := resolvePaths(env, opts)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(opts, paths)
	if err != nil {
		return nil, err
	}
	logger, err := newRuntimeLogger(env.stderr, filepath.Dir(paths.LogPath), opts.devMode, cfg.Logging, env.now)
	if err != nil {
		return nil, err
	}
	logger.Debug("command flow start", "command", command, "config_path", paths.ConfigPath)
	if devLog := logger.DevLogPath(); devLog != "" {
		logger.Info("dev log file enabled", "path", devLog)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	logger.Debug("opening sqlite repository", "path", cfg.Database.Path)
	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("sqlite open failed", "path", cfg.Database.Path, "err", err)
		_ = logger.Close()
		return nil, fmt.Errorf("open sqlite repository: %w", err)
	}

	rt := &runtime{
		cfg:    cfg,
		paths:  paths,
		logger: logger,
		repo:   repo,
	}
	notifiers := app.Notifiers{repo}
	if addr := strings.TrimSpace(cfg.Notify.RedisAddr); addr != "" {
		rt.redis = redis.NewClient(&redis.Options{Addr: addr})
		if err := rt.redis.Ping(ctx).Err(); err != nil {
			logger.Warn("redis notifier unreachable; continuing with sqlite inbox only", "addr", addr, "err", err)
		}
		notifiers = append(notifiers, redisnotify.NewPublisher(rt.redis, redisnotify.Config{
			Channel:    cfg.Notify.Channel,
			InboxLimit: cfg.Notify.InboxLimit,
		}))
		logger.Info("redis notifier enabled", "addr", addr, "channel", cfg.Notify.Channel)
	}

	rt.service = app.NewService(repo, uuid.NewString, env.now, app.ServiceConfig{
		Notifier: notifiers,
		Logger:   logger,
		Tracer:   otel.Tracer(appName),
	})
	return rt, nil
}

// Close releases the runtime resources in reverse order.
func (r *runtime) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.redis != nil {
		errs = append(errs, r.redis.Close())
	}
	if r.repo != nil {
		errs = append(errs, r.repo.Close())
	}
	errs = append(errs, r.logger.Close())
	return errors.Join(errs...)
}

// withRuntime opens a runtime for the duration of fn.
func withRuntime(cmd *cobra.Command, env cliEnv, opts *rootOptions, fn func(context.Context, *runtime) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := openRuntime(ctx, env, opts, cmd.CommandPath())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close runtime: %w", closeErr)
		}
	}()
	return fn(ctx, rt)
}
