package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/musictime/internal/events"
	"github.com/desertthunder/musictime/internal/integration"
	"github.com/desertthunder/musictime/internal/repositories"
	"github.com/desertthunder/musictime/internal/services"
	"github.com/desertthunder/musictime/internal/shared"
	"github.com/desertthunder/musictime/internal/ui"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Storage, services and the integration controller are built lazily on the first command that needs them.
type Runner struct {
	config      *shared.Config
	configPath  string
	httpClient  *http.Client
	logger      *log.Logger
	output      io.Writer
	input       io.Reader
	openBrowser func(string) error

	callbackTimeout time.Duration
	callbackAddr    string

	db           *sql.DB
	redis        *redis.Client
	settings     repositories.KeyValueStore
	integrations *repositories.IntegrationRepository
	backend      *services.BackendService
	playback     *services.PlaybackLibrary
	bus          *events.Bus
	prompt       *ui.Prompt
	controller   *integration.Controller
	migrated     bool
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config      *shared.Config
	ConfigPath  string
	HTTPClient  *http.Client
	Logger      *log.Logger
	Output      io.Writer
	Input       io.Reader
	Playback    *services.PlaybackLibrary
	OpenBrowser func(string) error
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}

	return &Runner{
		config:      opts.Config,
		configPath:  opts.ConfigPath,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		output:      opts.Output,
		input:       opts.Input,
		openBrowser: opts.OpenBrowser,
		playback:    opts.Playback,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, sessionCommand, spotifyCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the configuration and .env overrides ahead of any command.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	if r.configPath == "" {
		r.configPath = cmd.String("config")
	}

	if r.config == nil {
		config, err := r.loadConfig()
		if err != nil {
			return ctx, err
		}
		r.config = config
	}

	if err := shared.LoadEnv(cmd.String("env"), r.config); err != nil {
		r.logger.Warn("failed to load .env file", "error", err)
	}

	return ctx, nil
}

// After waits for pending notifications and releases storage connections.
func (r *Runner) After(ctx context.Context, cmd *cli.Command) error {
	return r.Close()
}

// Close waits for pending notifications and releases storage connections.
func (r *Runner) Close() error {
	if r.controller != nil {
		r.controller.Wait()
		r.controller = nil
	}

	var errs []error
	if r.redis != nil {
		errs = append(errs, r.redis.Close())
		r.redis = nil
	}
	if r.db != nil {
		errs = append(errs, r.db.Close())
		r.db = nil
	}
	return errors.Join(errs...)
}

func (r *Runner) loadConfig() (*shared.Config, error) {
	if r.configPath == "" {
		return shared.DefaultConfig(), nil
	}

	config, err := shared.LoadConfig(r.configPath)
	if errors.Is(err, fs.ErrNotExist) {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
		return shared.DefaultConfig(), nil
	}
	return config, err
}

// openDatabase opens the configured SQLite database and applies migrations.
func (r *Runner) openDatabase() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}

	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, err
	}

	r.db = db
	return db, nil
}

func (r *Runner) openSettings(ctx context.Context, db *sql.DB) (repositories.KeyValueStore, error) {
	switch r.config.Storage.Driver {
	case "", "sqlite":
		return repositories.NewSettingsRepository(db), nil
	case "redis":
		client, err := repositories.NewRedisClient(ctx, r.config.Storage.RedisURL)
		if err != nil {
			return nil, err
		}
		r.redis = client
		return repositories.NewRedisKeyValueStore(client, r.config.Storage.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("%w: unknown storage driver %q", shared.ErrInvalidConfig, r.config.Storage.Driver)
	}
}

// init builds storage, services and the controller, then runs the startup sequence:
// fetch client credentials, migrate a legacy token and publish the playback config.
func (r *Runner) init(ctx context.Context) error {
	if r.controller != nil {
		return nil
	}
	if r.config == nil {
		r.config = shared.DefaultConfig()
	}

	db, err := r.openDatabase()
	if err != nil {
		return err
	}

	settings, err := r.openSettings(ctx, db)
	if err != nil {
		return err
	}
	r.settings = settings
	r.integrations = repositories.NewIntegrationRepository(db)

	client := r.httpClient
	if timeout := r.config.Backend.Timeout(); timeout > 0 && client.Timeout == 0 {
		client = &http.Client{Transport: client.Transport, Timeout: timeout}
	}
	r.backend = services.NewBackendService(r.config.Backend.APIEndpoint, client, r.config.Backend.RateLimit)

	if r.playback == nil {
		r.playback = services.NewPlaybackLibrary("", r.httpClient)
	}

	r.bus = events.NewBus()
	r.subscribe()

	r.prompt = ui.NewPrompt(r.input, r.output)

	r.controller = integration.New(integration.Options{
		Store:        r.integrations,
		Settings:     r.settings,
		Backend:      r.backend,
		Bridge:       integration.NewCredentialBridge(r.playback),
		Cache:        integration.NewUserCache(r.integrations, r.playback, r.logger),
		Prompter:     r.prompt,
		Events:       r.bus,
		Plugin:       r.config.Plugin,
		RefreshDelay: r.config.Integration.RefreshDelay(),
		OpenBrowser:  r.openBrowser,
		Logger:       r.logger,
	})

	r.controller.UpdateClientCredentials(ctx)

	migrated, err := r.controller.MigrateLegacyAccess(ctx)
	if err != nil {
		r.logger.Warn("legacy token migration failed", "error", err)
	}
	r.migrated = migrated

	return r.controller.UpdateConfig(ctx)
}

// subscribe stands in for the playlist, recommendation and status bar views.
func (r *Runner) subscribe() {
	logger := shared.WithLogger(r.logger, "component", "views")

	r.bus.Subscribe(events.TopicRefreshPlaylists, func(e events.Event) {
		logger.Debug("refreshing playlists")
	})
	r.bus.Subscribe(events.TopicRefreshRecommendations, func(e events.Event) {
		logger.Debug("refreshing recommendations")
	})
	r.bus.Subscribe(events.TopicSyncPlaybackStatus, func(e events.Event) {
		logger.Debug("syncing playback status", "running", e.Running)
	})
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
