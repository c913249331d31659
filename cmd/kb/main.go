// Command kb is a retrieval-augmented knowledge base.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/custodia-labs/kb/internal/adapters/driven/ai"
	"github.com/custodia-labs/kb/internal/adapters/driven/config/file"
	"github.com/custodia-labs/kb/internal/adapters/driving/cli"
	"github.com/custodia-labs/kb/internal/app"
	"github.com/custodia-labs/kb/internal/core/services"
	"github.com/custodia-labs/kb/internal/logger"
)

// version is set by the linker at release time.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cli.SetVersion(version)

	dir, err := file.DefaultDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	configStore, err := file.NewConfigStore(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	settingsService := services.NewSettingsService(configStore, ai.NewConfigValidator(), services.WithDotEnv(".env"))

	svc := cli.Services{Settings: settingsService}

	settings, err := settingsService.Get()
	if err != nil {
		logger.Warn("Could not load settings: %v", err)
	} else if application, err := app.New(ctx, settings); err != nil {
		// Settings commands stay usable so the configuration can be fixed.
		logger.Warn("Knowledge base unavailable: %v", err)
	} else {
		defer func() {
			if err := application.Close(); err != nil {
				logger.Error("Shutdown: %v", err)
			}
		}()
		application.Start(ctx)
		logger.Debug("Backends: %s", application.Describe())
		go reloadOnHangup(ctx, application)

		svc.Ingestion = application.Ingestion
		svc.Document = application.Documents
		svc.Query = application.Query
		svc.Conversation = application.Conversations
		svc.Resume = application.Resume
	}

	cli.SetServices(svc)
	return cli.ExecuteContext(ctx)
}

// reloadOnHangup re-reads prompt files whenever the process gets SIGHUP.
func reloadOnHangup(ctx context.Context, application *app.App) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			application.ReloadPrompts()
		}
	}
}
