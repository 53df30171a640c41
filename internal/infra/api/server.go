package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"dispatch-bot/internal/domain/model"
	"dispatch-bot/internal/infra/metrics"
	"dispatch-bot/internal/usecase"
)

// PlanService is the subset of usecase.ExecutorPlanUseCase served over HTTP.
type PlanService interface {
	Submit(ctx context.Context, m model.Mutation) (*usecase.CommandResult, error)
	Get(ctx context.Context, id int64) (*model.ExecutorPlan, error)
	FlushBacklog(ctx context.Context) (int, int64, error)
	BacklogDepth(ctx context.Context) (int64, error)
}

var _ PlanService = (*usecase.ExecutorPlanUseCase)(nil)

// Server is the admin HTTP surface: health, metrics and the executor plan API.
type Server struct {
	plans   PlanService
	auth    *Authenticator
	timeout time.Duration
	now     func() time.Time
	log     *zerolog.Logger
	srv     *http.Server
}

func NewServer(plans PlanService, auth *Authenticator, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "AdminAPI").Logger()
	return &Server{
		plans:   plans,
		auth:    auth,
		timeout: 15 * time.Second,
		now:     time.Now,
		log:     &l,
	}
}

// Router builds the chi router with the middleware chain applied.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RequireAdmin(s.auth, s.log))
		r.Route("/executor-plans", func(r chi.Router) {
			r.Post("/", s.createPlan)
			r.Get("/backlog", s.backlogDepth)
			r.Post("/backlog/flush", s.flushBacklog)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getPlan)
				r.Delete("/", s.deletePlan)
				r.Post("/extend", s.extendPlan)
				r.Post("/status", s.setStatus)
				r.Post("/mute", s.mutePlan)
				r.Post("/start", s.setStart)
				r.Post("/comment", s.commentPlan)
			})
		})
	})

	return Chain(r, TraceID(), Recover(s.log), RequestLog(s.log), Timeout(s.timeout))
}

// Start serves on port until Shutdown is called.
func (s *Server) Start(port int) error {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Int("port", port).Msg("admin api listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
