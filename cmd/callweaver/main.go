package main

import (
	"context"

	"git.brightsales.dev/crm/golang/callweaver/internal/circuitbreak"
	"git.brightsales.dev/crm/golang/callweaver/internal/config"
	"git.brightsales.dev/crm/golang/callweaver/internal/database"
	"git.brightsales.dev/crm/golang/callweaver/internal/healthchecker"
	"git.brightsales.dev/crm/golang/callweaver/internal/logging"
	"git.brightsales.dev/crm/golang/callweaver/internal/orchestrator"
	"git.brightsales.dev/crm/golang/callweaver/internal/prometheus"
	"git.brightsales.dev/crm/golang/callweaver/internal/webhook"
	"go.uber.org/zap"
)

func main() {
	err := config.Validate()
	if err != nil {
		logging.Logger.Fatal("invalid configuration", zap.String("error", err.Error()))
	}

	go prometheus.Run()

	for {
		ctx, cancel := context.WithCancel(context.Background())

		healthCheckerService := healthchecker.NewService(cancel)

		circuitbreak.Init()

		go healthCheckerService.Monitor()

		dbConn, err := database.NewDatabase()
		if err != nil {
			logging.Logger.Fatal("failed to connect to database", zap.String("error", err.Error()))
		}

		app, err := orchestrator.NewApp(ctx, dbConn)
		if err != nil {
			logging.Logger.Fatal("failed to create callweaver app", zap.String("error", err.Error()))
		}

		app.Run()

		server := webhook.NewServer(app)

		go func() {
			serveErr := server.Run(ctx)
			if serveErr != nil {
				logging.Logger.Error("webhook server stopped", zap.String("error", serveErr.Error()))
				cancel()
			}
		}()

		<-ctx.Done()

		app.Close()

		healthCheckerService.Check()

		cancel()
	}
}
