package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Gumbees/homebase-intake/internal/infra/adapters/ai"
	"github.com/Gumbees/homebase-intake/internal/usecase"
)

// QueueDrainer triggers an immediate claim-and-process pass over the task
// queue, outside the periodic cycle.
type QueueDrainer interface {
	Drain(ctx context.Context, n int) (int, error)
}

// ScheduleRunner triggers one schedule-and-evaluate pass.
type ScheduleRunner interface {
	RunOnce(ctx context.Context)
}

// ProviderSnapshotter exposes per-provider health and dispatch stats.
type ProviderSnapshotter interface {
	Snapshot(ctx context.Context) []ai.ProviderStatus
}

// Server wires the intake routes to the usecases.
type Server struct {
	analysis usecase.AnalysisUseCase
	intake   usecase.IntakeUseCase
	drainer  QueueDrainer
	sched    ScheduleRunner
	gateway  ProviderSnapshotter
	auth     *AuthManager
	log      *zerolog.Logger

	httpSrv *http.Server
}

func NewServer(
	analysis usecase.AnalysisUseCase,
	intake usecase.IntakeUseCase,
	drainer QueueDrainer,
	sched ScheduleRunner,
	gateway ProviderSnapshotter,
	auth *AuthManager,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		analysis: analysis,
		intake:   intake,
		drainer:  drainer,
		sched:    sched,
		gateway:  gateway,
		auth:     auth,
		log:      logger,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(s.log))
	r.Use(RequestLog(s.log))
	r.Use(Recover(s.log))
	r.Use(Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/api/v1/session", s.handleSession)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Post("/documents", s.handleEnqueueDocument)
		r.Get("/tasks", s.handleListTasks)
		r.Get("/tasks/{id}", s.handleGetTask)
		r.Post("/tasks/{id}/approve", s.handleApprove)
		r.Post("/tasks/{id}/reject", s.handleReject)
		r.Get("/providers", s.handleProviders)
		r.Post("/triggers/schedule", s.handleTriggerSchedule)
		r.Post("/triggers/drain", s.handleTriggerDrain)
	})

	return r
}

func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Str("addr", addr).Msg("api server listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
