package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"path"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/yunghundse/synclulu--sub007/db"
	"github.com/yunghundse/synclulu--sub007/proximity"
	"github.com/yunghundse/synclulu--sub007/service"
)

// TestService is a test service for the API.
type TestService struct {
	s   *service.Service
	t   *testing.T
	url string
	c   *http.Client
}

// NewTestService creates a new test service backed by a MongoDB container.
// Engine tuning may be nil to use test-friendly defaults (small anonymity
// set, no background sweeps).
func NewTestService(t *testing.T, engineConf *proximity.Config) *TestService {
	ctx := context.Background()

	// Start MongoDB container
	container, err := db.StartMongoContainer(ctx)
	qt.Assert(t, err, qt.IsNil, qt.Commentf("Failed to start MongoDB container"))
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	// Get MongoDB connection string
	mongoURI, err := container.Endpoint(ctx, "mongodb")
	qt.Assert(t, err, qt.IsNil, qt.Commentf("Failed to get MongoDB connection string"))

	if engineConf == nil {
		engineConf = proximity.DefaultConfig()
		engineConf.MinAnonymitySet = 2
		engineConf.SweepInterval = 0
		engineConf.HotspotRefresh = 0
		engineConf.QueryTimeout = 0
	}

	s, err := service.New(&service.Config{
		MongoURI: mongoURI,
		Engine:   engineConf,
		Debug:    true,
	})
	qt.Assert(t, err, qt.IsNil)
	t.Cleanup(s.Close)

	port := 20000 + rand.New(rand.NewSource(time.Now().UnixNano())).Intn(8192)
	s.Start("127.0.0.1", port)
	time.Sleep(time.Second * 1) // Wait for HTTP server to start
	return &TestService{
		s:   s,
		t:   t,
		url: fmt.Sprintf("http://localhost:%d", port),
		c:   http.DefaultClient,
	}
}

// Service exposes the underlying service, for direct database access.
func (s *TestService) Service() *service.Service {
	return s.s
}

// Request sends a request to the service and returns the response body and status code.
// The body is expected to be a JSON object or null.
// If userID is not empty, it will be sent as the X-User-ID header.
func (s *TestService) Request(method, userID string, jsonBody any, urlPath ...string) ([]byte, int) {
	body, err := json.Marshal(jsonBody)
	qt.Assert(s.t, err, qt.IsNil)
	u, err := url.Parse(s.url)
	qt.Assert(s.t, err, qt.IsNil)
	u.Path = path.Join(u.Path, path.Join(urlPath...))
	headers := http.Header{}
	if userID != "" {
		headers = http.Header{"X-User-ID": []string{userID}}
	}
	req, err := http.NewRequest(method, u.String(), bytes.NewReader(body))
	qt.Assert(s.t, err, qt.IsNil)
	req.Header = headers
	resp, err := s.c.Do(req)
	if err != nil {
		s.t.Logf("http error: %v", err)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		s.t.Logf("read error: %v", err)
	}
	return data, resp.StatusCode
}
