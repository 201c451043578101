package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/yunghundse/synclulu--sub007/proximity"
)

func testEngineConfig() *proximity.Config {
	cfg := proximity.DefaultConfig()
	cfg.MinAnonymitySet = 2
	cfg.SweepInterval = 0
	cfg.HotspotRefresh = 0
	cfg.QueryTimeout = 0
	cfg.AuraIdleTimeout = time.Hour
	return cfg
}

func newTestAPI(c *qt.C) *API {
	engine, err := proximity.NewService(testEngineConfig(), nil, nil)
	c.Assert(err, qt.IsNil)
	c.Cleanup(engine.Close)

	a, err := New(&APIConfig{Engine: engine})
	c.Assert(err, qt.IsNil)
	return a
}

// doRequest runs one request through the full router and decodes the
// response envelope.
func doRequest(c *qt.C, a *API, method, path, userID string, body interface{}) (int, *Response) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		c.Assert(err, qt.IsNil)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, req)

	resp := &Response{}
	if rec.Body.Len() > 0 {
		c.Assert(json.Unmarshal(rec.Body.Bytes(), resp), qt.IsNil,
			qt.Commentf("body: %s", rec.Body.String()))
	}
	return rec.Code, resp
}

func TestPing(t *testing.T) {
	c := qt.New(t)
	a := newTestAPI(c)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, req)

	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(rec.Body.String(), qt.Equals, ".")
}

func TestMissingUserID(t *testing.T) {
	c := qt.New(t)
	a := newTestAPI(c)

	code, resp := doRequest(c, a, http.MethodPost, "/location", "",
		&LocationUpdate{Latitude: 41.688407, Longitude: 2.491027})
	c.Assert(code, qt.Equals, http.StatusUnauthorized)
	c.Assert(resp.Header.Success, qt.IsFalse)
}

func TestInvalidCoordinate(t *testing.T) {
	c := qt.New(t)
	a := newTestAPI(c)

	code, resp := doRequest(c, a, http.MethodPost, "/location", "alice",
		&LocationUpdate{Latitude: 123, Longitude: 0})
	c.Assert(code, qt.Equals, http.StatusBadRequest)
	c.Assert(resp.Header.Success, qt.IsFalse)
}

func TestInvalidRequestBody(t *testing.T) {
	c := qt.New(t)
	a := newTestAPI(c)

	req := httptest.NewRequest(http.MethodPost, "/nearby", bytes.NewReader([]byte("{not json")))
	req.Header.Set("X-User-ID", "alice")
	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, req)
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
}

func TestUpdateAndQueryFlow(t *testing.T) {
	c := qt.New(t)
	a := newTestAPI(c)

	update := &LocationUpdate{Latitude: 41.688407, Longitude: 2.491027}

	// A lone user is never disclosed at full resolution.
	code, resp := doRequest(c, a, http.MethodPost, "/location", "alice", update)
	c.Assert(code, qt.Equals, http.StatusOK)
	c.Assert(resp.Header.Success, qt.IsTrue)
	var loc LocationUpdateResponse
	c.Assert(remarshal(resp.Data, &loc), qt.IsNil)
	c.Assert(loc.Anonymized, qt.IsFalse)

	// Populate the same spot past the anonymity threshold.
	for i := 0; i < 3; i++ {
		code, _ = doRequest(c, a, http.MethodPost, "/location", fmt.Sprintf("bob%d", i), update)
		c.Assert(code, qt.Equals, http.StatusOK)
	}

	code, resp = doRequest(c, a, http.MethodPost, "/location", "alice", update)
	c.Assert(code, qt.Equals, http.StatusOK)
	c.Assert(remarshal(resp.Data, &loc), qt.IsNil)
	c.Assert(loc.Anonymized, qt.IsTrue)

	code, resp = doRequest(c, a, http.MethodPost, "/nearby", "alice",
		&NearbyRequest{Latitude: update.Latitude, Longitude: update.Longitude})
	c.Assert(code, qt.Equals, http.StatusOK)
	c.Assert(resp.Header.Success, qt.IsTrue)
	var nearby NearbyResponse
	c.Assert(remarshal(resp.Data, &nearby), qt.IsNil)
	c.Assert(nearby.Results, qt.HasLen, 3)
	for _, res := range nearby.Results {
		c.Assert(res.Tier, qt.Equals, proximity.TierSame)
		c.Assert(string(res.Cell), qt.Equals, loc.CellID)
		c.Assert(res.UserID, qt.Not(qt.Equals), "alice")
	}
	c.Assert(nearby.RadiusKm >= testEngineConfig().MinRadiusKm, qt.IsTrue)
}

func TestEndSessionRoute(t *testing.T) {
	c := qt.New(t)
	a := newTestAPI(c)

	update := &LocationUpdate{Latitude: 41.688407, Longitude: 2.491027}
	for i := 0; i < 3; i++ {
		code, _ := doRequest(c, a, http.MethodPost, "/location", fmt.Sprintf("bob%d", i), update)
		c.Assert(code, qt.Equals, http.StatusOK)
	}

	code, resp := doRequest(c, a, http.MethodDelete, "/session", "bob0", nil)
	c.Assert(code, qt.Equals, http.StatusOK)
	c.Assert(resp.Header.Success, qt.IsTrue)

	code, resp = doRequest(c, a, http.MethodPost, "/nearby", "bob1",
		&NearbyRequest{Latitude: update.Latitude, Longitude: update.Longitude})
	c.Assert(code, qt.Equals, http.StatusOK)
	var nearby NearbyResponse
	c.Assert(remarshal(resp.Data, &nearby), qt.IsNil)
	for _, res := range nearby.Results {
		c.Assert(res.UserID, qt.Not(qt.Equals), "bob0")
	}
}

func TestInterestsUnavailableWithoutDatabase(t *testing.T) {
	c := qt.New(t)
	a := newTestAPI(c)

	code, resp := doRequest(c, a, http.MethodPost, "/profile/interests", "alice",
		&SetInterestsRequest{Interests: []string{"chess"}})
	c.Assert(code, qt.Equals, http.StatusServiceUnavailable)
	c.Assert(resp.Header.Success, qt.IsFalse)
}

func TestInfoRoute(t *testing.T) {
	c := qt.New(t)
	a := newTestAPI(c)

	code, resp := doRequest(c, a, http.MethodGet, "/info", "", nil)
	c.Assert(code, qt.Equals, http.StatusOK)
	var info Info
	c.Assert(remarshal(resp.Data, &info), qt.IsNil)
	c.Assert(info.MinAnonymitySet, qt.Equals, 2)
	c.Assert(info.MaxRadiusKm, qt.Equals, testEngineConfig().MaxRadiusKm)
}

// remarshal converts the envelope's generic data field into a typed struct.
func remarshal(data interface{}, out interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
