package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/usemanusai/tce/internal/config"
	"github.com/usemanusai/tce/internal/definition"
	"github.com/usemanusai/tce/internal/engine"
	"github.com/usemanusai/tce/internal/executor"
	"github.com/usemanusai/tce/internal/observability"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config      *config.Config
	Engine      *engine.Engine
	Definitions *definition.Registry
	Executors   *executor.Registry
	Store       engine.Store
	Logger      *zap.Logger
	Metrics     *observability.Metrics
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery(logger))
	r.Use(RequestID)

	// Public routes.
	r.Get("/healthz", observability.HandleHealth())
	r.Get("/readyz", observability.HandleReady(observability.ReadinessChecks{
		ExecutorsRegistered: func() bool {
			return deps.Executors == nil || len(deps.Executors.Names()) > 0
		},
		DefinitionsLoaded: func() bool { return deps.Definitions != nil },
		WorkflowStore:     deps.Store,
	}))
	if deps.Config.Observability.Metrics.Enabled {
		r.Method(http.MethodGet, deps.Config.Observability.Metrics.Path, observability.MetricsHandler())
	}

	// API routes: authenticated, traced, timed, logged, measured.
	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticator(deps.Config.Auth, deps.Config.AuthSecret()))
		r.Use(observability.TracingMiddleware)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout.Std()))
		r.Use(RequestLogging(logger))
		r.Use(MetricsRecording(deps.Metrics))

		r.Post("/workflows", handleWorkflowCreate(deps.Engine))
		r.Get("/workflows", handleWorkflowList(deps.Engine))
		r.Get("/workflows/{workflowID}", handleWorkflowGet(deps.Engine))
		r.Get("/workflows/{workflowID}/events", handleWorkflowEvents(deps.Engine))
		r.Post("/workflows/{workflowID}/execute", handleWorkflowExecute(deps.Engine))
		r.Post("/workflows/{workflowID}/cancel", handleWorkflowCancel(deps.Engine))
		r.Delete("/workflows/{workflowID}", handleWorkflowDelete(deps.Engine))

		r.Get("/definitions", handleDefinitionList(deps.Definitions))
		r.Get("/definitions/{definitionID}", handleDefinitionGet(deps.Definitions))
		r.Post("/definitions/{definitionID}/workflows", handleWorkflowCreateFromTemplate(deps.Engine, deps.Definitions))
	})

	return r
}
