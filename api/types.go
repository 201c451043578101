package api

import (
	"github.com/yunghundse/synclulu--sub007/geocell"
	"github.com/yunghundse/synclulu--sub007/proximity"
)

// Response is the default response of the API
type Response struct {
	Header ResponseHeader `json:"header"`
	Data   any            `json:"data,omitempty"`
}

// ResponseHeader is the header of the response
type ResponseHeader struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// LocationUpdate is the body of a location update: one fresh GPS reading.
// The coordinate is used for cell encoding and then discarded; it is never
// echoed back, persisted or logged.
type LocationUpdate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Coordinate converts the request body to an engine coordinate.
func (l *LocationUpdate) Coordinate() geocell.Coordinate {
	return geocell.Coordinate{Latitude: l.Latitude, Longitude: l.Longitude}
}

// LocationUpdateResponse reports which anonymized cell the caller is now
// discoverable under.
type LocationUpdateResponse struct {
	CellID     string `json:"cellId"`
	Anonymized bool   `json:"anonymized"`
}

// NearbyRequest is the body of a nearby query.
type NearbyRequest struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Interests []string `json:"interests,omitempty"`
}

// NearbyResponse is the anonymized answer to a nearby query. Results never
// contain coordinates, only cells and tiers.
type NearbyResponse struct {
	Results  []proximity.NearbyResult `json:"results"`
	RadiusKm float64                  `json:"radiusKm"`
	State    proximity.Trend          `json:"state"`
	Partial  bool                     `json:"partial"`
}

// SetInterestsRequest replaces the caller's declared interests.
type SetInterestsRequest struct {
	Interests []string `json:"interests"`
}

// Info is the basic public info about the service.
type Info struct {
	Users           int64   `json:"users"`
	HotspotVersion  int64   `json:"hotspotVersion"`
	HotspotCells    int     `json:"hotspotCells"`
	MinRadiusKm     float64 `json:"minRadiusKm"`
	MaxRadiusKm     float64 `json:"maxRadiusKm"`
	MinAnonymitySet int     `json:"minAnonymitySet"`
}
