package api

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/yunghundse/synclulu--sub007/geocell"
	"github.com/yunghundse/synclulu--sub007/proximity"
)

// RegisterProximityRoutes registers all proximity-related routes
func (a *API) RegisterProximityRoutes(r chi.Router) {
	log.Info().Msg("register route POST /location")
	r.Post("/location", a.routerHandler(a.updateLocationHandler))

	log.Info().Msg("register route POST /nearby")
	r.Post("/nearby", a.routerHandler(a.queryNearbyHandler))

	log.Info().Msg("register route DELETE /session")
	r.Delete("/session", a.routerHandler(a.endSessionHandler))
}

// RegisterProfileRoutes registers all profile-related routes
func (a *API) RegisterProfileRoutes(r chi.Router) {
	log.Info().Msg("register route POST /profile/interests")
	r.Post("/profile/interests", a.routerHandler(a.setInterestsHandler))
}

// updateLocationHandler ingests one coordinate and answers with the
// anonymized cell the caller is now discoverable under.
func (a *API) updateLocationHandler(r *Request) (interface{}, error) {
	var req LocationUpdate
	if err := json.Unmarshal(r.Data, &req); err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}

	result, err := a.engine.UpdateLocation(r.Context.Request.Context(), r.UserID, req.Coordinate())
	if err != nil {
		return nil, mapEngineError(err)
	}
	if a.database != nil {
		// Presence bookkeeping only, never the coordinate.
		if err := a.database.ProfileService.TouchLastSeen(r.Context.Request.Context(), r.UserID); err != nil {
			log.Debug().Err(err).Str("user", r.UserID).Msg("failed to touch profile last seen")
		}
	}
	return &LocationUpdateResponse{
		CellID:     string(result.Cell),
		Anonymized: result.Anonymized,
	}, nil
}

// queryNearbyHandler answers "who is near me" with anonymized, tiered results.
func (a *API) queryNearbyHandler(r *Request) (interface{}, error) {
	var req NearbyRequest
	if err := json.Unmarshal(r.Data, &req); err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}

	coord := geocell.Coordinate{Latitude: req.Latitude, Longitude: req.Longitude}
	result, err := a.engine.QueryNearby(r.Context.Request.Context(), r.UserID, coord, proximity.QueryOptions{
		Interests: req.Interests,
	})
	if err != nil {
		return nil, mapEngineError(err)
	}
	return &NearbyResponse{
		Results:  result.Results,
		RadiusKm: result.RadiusKm,
		State:    result.Trend,
		Partial:  result.Partial,
	}, nil
}

// endSessionHandler drops the caller's occupancy record and aura state.
func (a *API) endSessionHandler(r *Request) (interface{}, error) {
	a.engine.EndSession(r.UserID)
	return nil, nil
}

// setInterestsHandler replaces the caller's declared interests.
func (a *API) setInterestsHandler(r *Request) (interface{}, error) {
	if a.database == nil {
		return nil, ErrProfilesUnavailable
	}
	var req SetInterestsRequest
	if err := json.Unmarshal(r.Data, &req); err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}
	if err := a.database.ProfileService.SetInterests(r.Context.Request.Context(), r.UserID, req.Interests); err != nil {
		return nil, ErrInternalServerError.WithErr(fmt.Errorf("failed to set interests: %w", err))
	}
	return nil, nil
}

// mapEngineError converts engine errors to their HTTP counterparts.
func mapEngineError(err error) error {
	switch {
	case errors.Is(err, proximity.ErrMissingUser):
		return ErrMissingUserID.WithErr(err)
	case errors.Is(err, geocell.ErrInvalidCoordinate):
		return ErrInvalidCoordinate.WithErr(err)
	default:
		return ErrInternalServerError.WithErr(err)
	}
}
