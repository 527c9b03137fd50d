package api

import (
	"net/http"

	"answergate/app"
	"answergate/ports"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// App is the HTTP surface of the answer quality gate
type App struct {
	router *chi.Mux
	gate   *app.GateService
	rag    *app.RAGService // nil when generation is not configured
	store  ports.RemediationStore
	oracle ports.ScoringOracle
}

// Config holds the collaborators the HTTP app exposes
type Config struct {
	Gate   *app.GateService
	RAG    *app.RAGService
	Store  ports.RemediationStore
	Oracle ports.ScoringOracle
}

// NewApp creates the HTTP application
func NewApp(cfg Config) *App {
	a := &App{
		router: chi.NewRouter(),
		gate:   cfg.Gate,
		rag:    cfg.RAG,
		store:  cfg.Store,
		oracle: cfg.Oracle,
	}

	a.setupMiddleware()
	a.setupRoutes()
	return a
}

// setupMiddleware configures HTTP middleware
func (a *App) setupMiddleware() {
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Compress(5))
}

// setupRoutes configures the application routes
func (a *App) setupRoutes() {
	a.router.Get("/healthz", a.handleHealth)
	a.router.Get("/v1/stats", a.handleStats)

	a.router.Post("/v1/detect", a.handleDetect)
	a.router.Post("/v1/validate", a.handleValidate)
	if a.rag != nil {
		a.router.Post("/v1/answer", a.handleAnswer)
	}

	a.router.Get("/v1/entries", a.handleListEntries)
	a.router.Post("/v1/entries/{id}/answer", a.handleAnswerEntry)
}

// Router returns the configured handler
func (a *App) Router() http.Handler {
	return a.router
}
