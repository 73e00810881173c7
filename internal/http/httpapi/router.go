package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"campaignforge/internal/http/handlers"
	"campaignforge/internal/infra"
	"campaignforge/internal/middleware"
)

// Options configures the router.
type Options struct {
	CORSAllowedOrigins []string
	// RateLimitPerMin bounds enqueue requests per client IP. Zero disables it.
	RateLimitPerMin int
	// Static serves locally stored assets under /static when set.
	Static http.Handler
	Logger *infra.Logger
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(*infra.LoggerOrDiscard(opts.Logger)),
		middleware.CORS(opts.CORSAllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/campaigns", func(r chi.Router) {
		r.With(middleware.RateLimit(opts.RateLimitPerMin, time.Minute)).Post("/", app.EnqueueCampaign)
		r.Get("/{id}", app.GetCampaign)
	})
	r.Get("/v1/brains/{id}", app.GetBrain)

	if opts.Static != nil {
		r.Handle("/static/*", http.StripPrefix("/static/", opts.Static))
	}

	return r
}
