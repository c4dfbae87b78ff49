package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blobfront/blobfront/internal/logger"
	"github.com/blobfront/blobfront/pkg/config"
	"github.com/blobfront/blobfront/pkg/host"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the blobfront server",
	Long: `Start the blobfront server with the specified configuration.

Use --config to specify a configuration file; without one the built-in
defaults apply, overridable through BLOBFRONT_* environment variables.

Examples:
  # Start with defaults (in-memory router on port 1174)
  blobfront start

  # Start with a custom config file
  blobfront start --config /etc/blobfront/config.yaml

  # Override settings through the environment
  BLOBFRONT_LOGGING_LEVEL=DEBUG blobfront start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return err
	}

	logger.Info("blobfront starting", "version", Version, "commit", Commit)

	h, err := host.New(cfg, host.Builtin())
	if err != nil {
		return err
	}

	if err := h.Start(); err != nil {
		// Startup does not roll back; tear down whatever came up.
		h.Shutdown()
		return err
	}

	// Wait for a termination signal, then drain.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", "signal", sig.String())
		h.Shutdown()
	}()

	h.AwaitShutdown()
	return nil
}
