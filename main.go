package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rs/zerolog/log"

	"github.com/yunghundse/synclulu--sub007/geocell"
	"github.com/yunghundse/synclulu--sub007/proximity"
	"github.com/yunghundse/synclulu--sub007/service"
)

func main() {
	defaults := proximity.DefaultConfig()

	flag.Bool("debug", false, "sets log level to debug")
	flag.Int("port", 3333, "sets the port to listen on")
	flag.String("host", "0.0.0.0", "sets the host to listen on")
	flag.String("mongo", "", "sets the mongo URI, empty runs without persistence")
	flag.String("metricsID", "", "enables prometheus metrics under the given ID")

	flag.Int("resolution", defaults.Resolution, "cell resolution occupancy is indexed at")
	flag.Int("minAnonymitySet", defaults.MinAnonymitySet, "minimum occupants before a cell is disclosed")
	flag.Int("maxCoarsening", defaults.MaxCoarsening, "levels the anonymity resolver may coarsen")
	flag.Duration("stalenessWindow", defaults.StalenessWindow, "how long a location stays valid without updates")
	flag.Duration("sweepInterval", defaults.SweepInterval, "cadence of background eviction sweeps")
	flag.Float64("minRadiusKm", defaults.MinRadiusKm, "lower bound of the elastic search radius")
	flag.Float64("maxRadiusKm", defaults.MaxRadiusKm, "upper bound of the elastic search radius")
	flag.Float64("densityLow", defaults.DensityLow, "lower edge of the target density band (users/km2)")
	flag.Float64("densityHigh", defaults.DensityHigh, "upper edge of the target density band (users/km2)")
	flag.Float64("growFactor", defaults.GrowFactor, "target radius multiplier under sparse density")
	flag.Float64("shrinkFactor", defaults.ShrinkFactor, "target radius multiplier under crowded density")
	flag.Float64("smoothingFactor", defaults.SmoothingFactor, "per-observation radius smoothing in (0,1]")
	flag.Int("tunnelAfterZeroQueries", defaults.TunnelAfterZeroQueries, "empty observations at max radius before tunneling")
	flag.Duration("auraIdleTimeout", defaults.AuraIdleTimeout, "inactivity before a user's radius state expires")
	flag.Duration("queryTimeout", defaults.QueryTimeout, "per-query deadline, exceeded queries return partial results")
	flag.Int("shards", defaults.Shards, "shard count of the occupancy index")
	flag.Duration("hotspotRefresh", defaults.HotspotRefresh, "reload cadence of the hotspot table")
	flag.StringSlice("hotspotSeed", nil, "static hotspot cells used until a set is published")

	flag.Parse()

	// Initialize Viper
	viper.SetEnvPrefix("SYNCLULU")
	if err := viper.BindPFlags(flag.CommandLine); err != nil {
		panic(err)
	}
	viper.AutomaticEnv()
	// read the configuration
	host := viper.GetString("host")
	port := viper.GetInt("port")
	debug := viper.GetBool("debug")
	mongoURI := viper.GetString("mongo")
	metricsID := viper.GetString("metricsID")

	engineConf := &proximity.Config{
		Resolution:             viper.GetInt("resolution"),
		MinAnonymitySet:        viper.GetInt("minAnonymitySet"),
		MaxCoarsening:          viper.GetInt("maxCoarsening"),
		StalenessWindow:        viper.GetDuration("stalenessWindow"),
		SweepInterval:          viper.GetDuration("sweepInterval"),
		MinRadiusKm:            viper.GetFloat64("minRadiusKm"),
		MaxRadiusKm:            viper.GetFloat64("maxRadiusKm"),
		DensityLow:             viper.GetFloat64("densityLow"),
		DensityHigh:            viper.GetFloat64("densityHigh"),
		GrowFactor:             viper.GetFloat64("growFactor"),
		ShrinkFactor:           viper.GetFloat64("shrinkFactor"),
		SmoothingFactor:        viper.GetFloat64("smoothingFactor"),
		TunnelAfterZeroQueries: viper.GetInt("tunnelAfterZeroQueries"),
		AuraIdleTimeout:        viper.GetDuration("auraIdleTimeout"),
		QueryTimeout:           viper.GetDuration("queryTimeout"),
		Shards:                 viper.GetInt("shards"),
		HotspotRefresh:         viper.GetDuration("hotspotRefresh"),
	}
	for _, seed := range viper.GetStringSlice("hotspotSeed") {
		engineConf.HotspotSeed = append(engineConf.HotspotSeed, geocell.Cell(seed))
	}

	s, err := service.New(&service.Config{
		MongoURI:  mongoURI,
		Engine:    engineConf,
		MetricsID: metricsID,
		Debug:     debug,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create service")
	}
	defer s.Close()
	s.Start(host, port)

	log.Info().Msg("startup complete")

	// close if interrupt received
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Warn().Msgf("received SIGTERM, exiting at %s", time.Now().Format(time.RFC850))
	os.Exit(0)
}
