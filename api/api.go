package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/yunghundse/synclulu--sub007/db"
	"github.com/yunghundse/synclulu--sub007/proximity"
)

// APIConfig holds the dependencies of the API HTTP server.
type APIConfig struct {
	Engine *proximity.Service
	DB     *db.Database
	// MetricsID enables go-chi prometheus metrics under the given ID.
	// Empty disables metrics.
	MetricsID string
}

// API type represents the HTTP server exposing the proximity core.
type API struct {
	engine   *proximity.Service
	database *db.Database
	Router   *chi.Mux
}

// New creates a new API HTTP server. It does not start the server. Use Start() for that.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if conf.Engine == nil {
		return nil, fmt.Errorf("proximity engine cannot be nil")
	}
	a := &API{
		engine:   conf.Engine,
		database: conf.DB,
	}
	a.Router = a.router(conf.MetricsID)
	return a, nil
}

// Start starts the API HTTP server (non blocking).
func (a *API) Start(host string, port int) {
	go func() {
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", host, port), a.Router); err != nil {
			log.Fatal().Err(err).Msg("failed to start api router")
		}
	}()
}

// Close closes the API service database, if any.
func (a *API) Close() {
	if a.database == nil {
		return
	}
	if err := a.database.Close(context.Background()); err != nil {
		log.Warn().Err(err).Msg("failed to close database")
	}
}

// router creates the router with all the routes and middleware.
func (a *API) router(metricsID string) *chi.Mux {
	// Create the router with a basic middleware stack
	r := chi.NewRouter()
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	if metricsID != "" {
		a.enablePrometheusMetrics(r, metricsID)
	}
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Throttle(100))
	r.Use(middleware.ThrottleBacklog(5000, 40000, 30*time.Second))
	r.Use(middleware.Timeout(30 * time.Second))

	// Caller routes: identity arrives via the X-User-ID header, injected
	// by the upstream gateway (authentication is out of scope here).
	r.Group(func(r chi.Router) {
		r.Use(a.requireUser)

		a.RegisterProximityRoutes(r)
		a.RegisterProfileRoutes(r)
	})

	// Public routes
	r.Group(func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			if _, err := w.Write([]byte(".")); err != nil {
				log.Error().Err(err).Msg("failed to write response")
			}
		})

		// Info route
		log.Info().Msg("register route GET /info")
		r.Get("/info", a.routerHandler(a.infoHandler))
	})

	return r
}

// requireUser rejects requests without a caller identity before any engine
// state is touched.
func (a *API) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-User-ID") == "" {
			writeJSONError(w, ErrMissingUserID.Message, ErrMissingUserID.Code)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// info handler returns the basic info about the API.
func (a *API) infoHandler(r *Request) (interface{}, error) {
	cfg := a.engine.Config()
	info := &Info{
		HotspotVersion:  a.engine.Hotspots().Version(),
		HotspotCells:    len(a.engine.Hotspots().Cells()),
		MinRadiusKm:     cfg.MinRadiusKm,
		MaxRadiusKm:     cfg.MaxRadiusKm,
		MinAnonymitySet: cfg.MinAnonymitySet,
	}
	if a.database != nil {
		users, err := a.database.ProfileService.CountProfiles(r.Context.Request.Context())
		if err != nil {
			return nil, ErrInternalServerError.WithErr(fmt.Errorf("failed to count profiles: %w", err))
		}
		info.Users = users
	}
	return info, nil
}
