package webhook

import (
	"context"
	"errors"
	"net/http"
	"time"

	"git.brightsales.dev/crm/golang/callweaver/internal/config"
	"git.brightsales.dev/crm/golang/callweaver/internal/identity"
	"git.brightsales.dev/crm/golang/callweaver/internal/logging"
	"git.brightsales.dev/crm/golang/callweaver/internal/prometheus"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Handler is what the router needs from the orchestrator.
type Handler interface {
	HandleCallStatus(ctx context.Context, event *Event) error
	HandleDialStatus(ctx context.Context, event *Event) error
	HandleRecordingStatus(ctx context.Context, event *Event) error
	HandleTranscriptStatus(ctx context.Context, event *Event) error
	HandleOperatorResult(ctx context.Context, event *Event) error
	TriggerTranscript(callSid string)
}

type Server struct {
	handler Handler
}

func NewServer(handler Handler) *Server {
	return &Server{handler: handler}
}

// Run serves the webhook ingress until the context is canceled. Callbacks
// are acknowledged with 204 even when processing partially fails: the
// provider retries failed deliveries, and a retried recording-start does
// more damage than a logged partial write.
func (s *Server) Run(ctx context.Context) error {
	router := s.routes()

	server := &http.Server{
		Addr:         ":" + config.Conf.WebhookPort,
		Handler:      router,
		ReadTimeout:  time.Duration(config.Conf.WebhookTimeout) * time.Second,
		WriteTimeout: time.Duration(config.Conf.WebhookTimeout) * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		logging.Logger.Info("webhook server listening", zap.String("addr", server.Addr))

		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

func (s *Server) routes() *chi.Mux {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(time.Duration(config.Conf.WebhookTimeout) * time.Second))

	router.Route("/webhooks/voice", func(r chi.Router) {
		r.Post("/status", s.formEndpoint(EventCallStatus, s.handler.HandleCallStatus))
		r.Post("/dial", s.formEndpoint(EventDialStatus, s.handler.HandleDialStatus))
		r.Post("/recording", s.formEndpoint(EventRecordingStatus, s.handler.HandleRecordingStatus))
		r.Post("/transcript", s.jsonEndpoint(EventTranscriptStatus, s.handler.HandleTranscriptStatus))
		r.Post("/operator", s.jsonEndpoint(EventOperatorResult, s.handler.HandleOperatorResult))
	})

	router.Post("/calls/{callSid}/transcript", s.triggerTranscript)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return router
}

func (s *Server) formEndpoint(
	kind EventKind,
	handle func(context.Context, *Event) error,
) http.HandlerFunc {
	return s.endpoint(kind, ParseFormEvent, handle)
}

func (s *Server) jsonEndpoint(
	kind EventKind,
	handle func(context.Context, *Event) error,
) http.HandlerFunc {
	return s.endpoint(kind, ParseJSONEvent, handle)
}

func (s *Server) endpoint(
	kind EventKind,
	parse func(*http.Request, EventKind) (*Event, error),
	handle func(context.Context, *Event) error,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		event, err := parse(r, kind)
		if err != nil {
			logging.Logger.Warn("failed to parse webhook payload",
				zap.String("event_kind", string(kind)),
				zap.String("error", err.Error()),
			)

			w.WriteHeader(http.StatusBadRequest)

			return
		}

		err = handle(r.Context(), event)
		if err != nil {
			logging.Logger.Error("webhook handling failed",
				zap.String("event_kind", string(kind)),
				zap.String("call_sid", event.CallSid),
				zap.String("error", err.Error()),
			)
		}

		prometheus.WebhookEventDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())

		w.WriteHeader(http.StatusNoContent)
	}
}

// triggerTranscript starts transcript processing for a call on demand. Used
// by the CRM when automatic processing is switched off.
func (s *Server) triggerTranscript(w http.ResponseWriter, r *http.Request) {
	callSid := chi.URLParam(r, "callSid")

	if !identity.ValidCallSid(callSid) {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	s.handler.TriggerTranscript(callSid)

	w.WriteHeader(http.StatusAccepted)
}
