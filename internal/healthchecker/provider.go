package healthchecker

import (
	"context"
	"errors"

	"git.brightsales.dev/crm/golang/callweaver/internal/config"
	"git.brightsales.dev/crm/golang/callweaver/internal/logging"
	"git.brightsales.dev/crm/golang/callweaver/internal/provider"
	"go.uber.org/zap"
)

// CheckProvider probes the telephony API with the configured sample call.
// A 404 still proves the API is reachable and the credentials work.
func CheckProvider() error {
	client := provider.NewClient()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := client.GetCall(ctx, config.Conf.HealthCheckerSampleCallSid)
	if err != nil && !errors.Is(err, provider.ErrResourceNotFound) {
		logging.Logger.Info("provider call api status", zap.Error(err))
		return err
	}

	return nil
}
