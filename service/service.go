package service

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yunghundse/synclulu--sub007/api"
	"github.com/yunghundse/synclulu--sub007/db"
	"github.com/yunghundse/synclulu--sub007/proximity"
)

// Service is the main service struct for the proximity backend. It owns the
// database connection (optional), the proximity engine and the HTTP API.
type Service struct {
	Database  *db.Database
	Engine    *proximity.Service
	API       *api.API
	metricsID string
}

// Config carries the service-level settings. Engine tuning lives in
// proximity.Config; MongoURI may be empty to run without persistence (no
// profiles, no published hotspots — the engine falls back to its static
// hotspot seed and skips the interest filter).
type Config struct {
	MongoURI  string
	Engine    *proximity.Config
	MetricsID string
	Debug     bool
}

// New creates a new proximity service. It connects the database when a Mongo
// URI is given, wires the engine and prepares the API router. It also sets
// the global log level to InfoLevel or DebugLevel if debug is true.
// The service must be started with Service.Start().
// The service must be closed with Service.Close().
func New(conf *Config) (*Service, error) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout}).With().Caller().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if conf.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Info().Msg("starting proximity backend")

	var database *db.Database
	var profiles proximity.ProfileSource
	var hotspots proximity.HotspotSource
	if conf.MongoURI != "" {
		var err error
		database, err = db.New(conf.MongoURI)
		if err != nil {
			return nil, err
		}
		if err := database.CreateTables(); err != nil {
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
		profiles = database.ProfileService
		hotspots = database.HotspotService
	} else {
		log.Warn().Msg("no mongo uri provided, running without profiles and hotspot publishing")
	}

	engine, err := proximity.NewService(conf.Engine, profiles, hotspots)
	if err != nil {
		return nil, err
	}

	a, err := api.New(&api.APIConfig{
		Engine:    engine,
		DB:        database,
		MetricsID: conf.MetricsID,
	})
	if err != nil {
		engine.Close()
		return nil, err
	}

	return &Service{
		Database:  database,
		Engine:    engine,
		API:       a,
		metricsID: conf.MetricsID,
	}, nil
}

// Start starts the API service.
func (s *Service) Start(host string, port int) {
	s.API.Start(host, port)
	log.Info().Msgf("api service started at %s:%d", host, port)
}

// Close stops the engine loops and closes the database, if any.
func (s *Service) Close() {
	s.Engine.Close()
	s.API.Close()
}
