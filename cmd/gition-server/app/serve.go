package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gitionhq/gition-server/internal/api"
	v1 "github.com/gitionhq/gition-server/internal/api/v1"
	"github.com/gitionhq/gition-server/internal/config"
	"github.com/gitionhq/gition-server/internal/content"
	"github.com/gitionhq/gition-server/internal/git"
	"github.com/gitionhq/gition-server/internal/identity"
	"github.com/gitionhq/gition-server/internal/logger"
	"github.com/gitionhq/gition-server/internal/metadata"
	"github.com/gitionhq/gition-server/internal/notes"
	"github.com/gitionhq/gition-server/internal/storage"
	"github.com/gitionhq/gition-server/internal/workingcopy"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gition API server",
	Long: `Start the API server that manages git working copies.

The server requires a configuration file (--config) that specifies:
- The storage root for working copies
- The GitHub OAuth application settings
- Optional PostgreSQL settings for the repository metadata mirror`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second
	// Write timeout has headroom for clone and pull against slow remotes.
	serverReadTimeout  = 10 * time.Second
	serverWriteTimeout = 5 * time.Minute
	serverIdleTimeout  = 60 * time.Second
)

func init() {
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")

	if err := viper.BindPFlag("config", serveCmd.Flags().Lookup("config")); err != nil {
		logger.Fatalf("Failed to bind config flag: %v", err)
	}
	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		logger.Fatalf("Failed to mark config flag as required: %v", err)
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	configPath := viper.GetString("config")
	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Infof("Loaded configuration from %s (storage root: %s)", configPath, cfg.Storage.Root)

	// The github section is optional for migrate but the API cannot run
	// without the identity gateway.
	if cfg.GitHub == nil {
		return fmt.Errorf("github configuration is required to start the server")
	}

	resolver, err := storage.NewResolver(cfg.Storage.Root)
	if err != nil {
		return fmt.Errorf("failed to initialize storage root: %w", err)
	}
	locks := storage.NewLockRegistry()
	client := git.NewClient()

	noteStore, err := notes.Open(cfg.GetNotesPath())
	if err != nil {
		return fmt.Errorf("failed to open notes store: %w", err)
	}
	defer func() {
		if err := noteStore.Close(); err != nil {
			logger.Errorf("Error closing notes store: %v", err)
		}
	}()

	clientSecret, err := cfg.GitHub.GetClientSecret()
	if err != nil {
		return fmt.Errorf("failed to read GitHub client secret: %w", err)
	}
	gateway := identity.NewGateway(cfg.GitHub.ClientID, clientSecret, cfg.GitHub.RedirectURL)

	// The metadata mirror is optional. Without it the server still manages
	// working copies; it only loses the cached repository listing.
	var metaStore *metadata.Store
	if cfg.Database != nil {
		conn, err := metadata.NewConnection(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			if err := conn.Close(); err != nil {
				logger.Errorf("Error closing database connection: %v", err)
			}
		}()
		metaStore = metadata.NewStore(conn)
		logger.Infof("Connected to metadata database at %s:%d", cfg.Database.Host, cfg.Database.Port)
	} else {
		logger.Info("No database configured; repository metadata mirror disabled")
	}

	deps := &v1.Dependencies{
		Manager:     workingcopy.NewManager(resolver, client, locks),
		Index:       content.NewIndex(resolver, client, locks),
		Notes:       noteStore,
		Gateway:     gateway,
		Metadata:    metaStore,
		FrontendURL: cfg.Server.FrontendURL,
	}

	router := api.NewServer(deps,
		api.WithMiddlewares(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			api.LoggingMiddleware,
		),
	)

	address := fmt.Sprintf("%s:%d", cfg.GetHost(), cfg.GetPort())
	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	go func() {
		logger.Infof("Server listening on %s", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
		return err
	}

	logger.Info("Server shutdown complete")
	return nil
}
