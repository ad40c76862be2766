package httpapi

import (
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/chittycorp/chittyrouter/internal/api/middleware"
	chittyauth "github.com/chittycorp/chittyrouter/internal/auth"
)

// NewRouter builds the full external HTTP surface: routing/health,
// agent substrate, Sync Hub, session, and pipeline routes, behind the
// mandatory auth middleware.
func NewRouter(d *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(telemetry)
	r.Use(middleware.Logger)

	authMW := chittyauth.NewMiddleware(d.AuthChain)
	r.Use(authMW.Handler)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id", "X-API-Key", "X-Service-Token"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := &handlers{d: d}

	r.Get("/health", h.health)
	r.Get("/router/stats", h.routerStats)
	r.Get("/evidence/dlq", h.evidenceDLQ)
	r.Get("/email/dlq", h.emailDLQ)

	r.Route("/agents/{name}", func(r chi.Router) {
		r.Post("/complete", h.agentComplete)
		r.Get("/stats", h.agentStats)
		r.Get("/health", h.agentHealth)
	})

	r.Route("/api/todos", func(r chi.Router) {
		r.Get("/", h.listTodos)
		r.Post("/", h.createTodo)
		r.Post("/sync", h.syncTodos)
		r.Get("/since/{timestamp}", h.todosSince)
		r.Get("/watch", h.watchTodos)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getTodo)
			r.Put("/", h.updateTodo)
			r.Delete("/", h.deleteTodo)
		})
	})

	r.Route("/session", func(r chi.Router) {
		r.Post("/init", h.sessionInit)
		r.Post("/state", h.sessionState)
		r.Post("/atomic-facts", h.sessionAtomicFacts)
		r.Get("/status", h.sessionStatus)
	})

	r.Route("/pipeline", func(r chi.Router) {
		r.Post("/{kind}/generate", h.pipelineGenerate)
		r.Get("/status/{id}", h.pipelineStatus)
	})

	return r
}

// handlers groups every route handler method; d is the shared
// dependency bundle, matching the teacher's single *handlers.Handlers
// receiver style.
type handlers struct {
	d *Deps
}

func corsOrigins() []string {
	raw := os.Getenv("CHITTYROUTER_CORS_ORIGINS")
	if raw == "" {
		return []string{"*"}
	}
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
