package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"edugen/internal/http/handlers"
	"edugen/internal/infra"
	"edugen/internal/middleware"
)

// Options configures the middleware stack in front of the API routes.
type Options struct {
	Logger        infra.Logger
	CORSOrigins   []string
	RatePerMinute int
	DefaultLocale string
	Country       middleware.CountryLookup
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RealIP,
		chimw.Recoverer,
		middleware.RequestID,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
		middleware.I18N(opts.DefaultLocale, opts.Country),
		middleware.RateLimit(opts.RatePerMinute, time.Minute),
	)

	app.Mount(r)
	return r
}
