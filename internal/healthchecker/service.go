package healthchecker

import (
	"context"
	"time"

	"git.brightsales.dev/crm/golang/callweaver/internal/circuitbreak"
	"git.brightsales.dev/crm/golang/callweaver/internal/config"
	"git.brightsales.dev/crm/golang/callweaver/internal/logging"
	"go.uber.org/zap"
)

// Healthchecker cancels the application context when a circuit opens and
// blocks the restart until the failed dependency answers again.
type Healthchecker struct {
	CtxCancelFunc context.CancelFunc
	ErrorService  string
}

func NewService(ctxCancelFunc context.CancelFunc) *Healthchecker {
	return &Healthchecker{
		CtxCancelFunc: ctxCancelFunc,
	}
}

func (h *Healthchecker) Monitor() {
	logging.Logger.Info("health checker monitor start successfully")

	serviceName := <-circuitbreak.CircuitBreakChan

	logging.Logger.Info("circuit break happened", zap.String("service", serviceName))
	h.ErrorService = serviceName
	h.CtxCancelFunc()
}

func (h *Healthchecker) Check() {
	// The context can also be canceled without a circuit break, e.g. when
	// the webhook server dies. Nothing to wait on in that case.
	if h.ErrorService == "" {
		logging.Logger.Error("healthchecker error service is empty")
		return
	}

	ticker := time.NewTicker(time.Duration(config.Conf.HealthCheckerMonitorInterval) * time.Second)
	defer ticker.Stop()

	for {
		<-ticker.C

		ok := h.checkErrorService()
		if ok {
			return
		}
	}
}

func (h *Healthchecker) checkErrorService() bool {
	checks := map[string]func() error{
		circuitbreak.ProviderService:      CheckProvider,
		circuitbreak.OpenAIService:        CheckOpenAI,
		circuitbreak.DBService:            CheckDB,
		circuitbreak.MinioService:         CheckMinio,
		circuitbreak.KafkaProducerService: CheckKafkaProducer,
	}

	check, ok := checks[h.ErrorService]
	if !ok {
		logging.Logger.Warn("Unknown service in checkErrorService", zap.String("service", h.ErrorService))
		return false
	}

	err := check()
	if err != nil {
		return false
	}

	logging.Logger.Info(h.ErrorService + " service back healthy")

	return true
}
