package test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/yunghundse/synclulu--sub007/api"
	"github.com/yunghundse/synclulu--sub007/test/utils"
)

// Test coordinates (Barcelona).
const (
	testLatitude  = 41.385064
	testLongitude = 2.173404
)

func TestProximityFlow(t *testing.T) {
	c := utils.NewTestService(t, nil)

	update := api.LocationUpdate{Latitude: testLatitude, Longitude: testLongitude}

	t.Run("Lone User Is Not Disclosed At Full Resolution", func(t *testing.T) {
		resp, code := c.Request(http.MethodPost, "alice", update, "location")
		qt.Assert(t, code, qt.Equals, 200)

		var locResp struct {
			Data api.LocationUpdateResponse `json:"data"`
		}
		qt.Assert(t, json.Unmarshal(resp, &locResp), qt.IsNil)
		qt.Assert(t, locResp.Data.Anonymized, qt.IsFalse)
	})

	t.Run("Anonymity Threshold Unlocks Disclosure", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			_, code := c.Request(http.MethodPost, fmt.Sprintf("bob%d", i), update, "location")
			qt.Assert(t, code, qt.Equals, 200)
		}

		resp, code := c.Request(http.MethodPost, "alice", update, "location")
		qt.Assert(t, code, qt.Equals, 200)

		var locResp struct {
			Data api.LocationUpdateResponse `json:"data"`
		}
		qt.Assert(t, json.Unmarshal(resp, &locResp), qt.IsNil)
		qt.Assert(t, locResp.Data.Anonymized, qt.IsTrue)
	})

	t.Run("Nearby Query Never Leaks Coordinates", func(t *testing.T) {
		resp, code := c.Request(http.MethodPost, "alice",
			api.NearbyRequest{Latitude: testLatitude, Longitude: testLongitude}, "nearby")
		qt.Assert(t, code, qt.Equals, 200)

		var nearbyResp struct {
			Data api.NearbyResponse `json:"data"`
		}
		qt.Assert(t, json.Unmarshal(resp, &nearbyResp), qt.IsNil)
		qt.Assert(t, len(nearbyResp.Data.Results), qt.Equals, 3)
		for _, res := range nearbyResp.Data.Results {
			qt.Assert(t, strings.HasPrefix(res.UserID, "bob"), qt.IsTrue)
			qt.Assert(t, res.Cell, qt.Not(qt.Equals), "")
		}

		// The wire payload must never carry a latitude or longitude for
		// another user.
		qt.Assert(t, strings.Contains(string(resp), "latitude"), qt.IsFalse,
			qt.Commentf("response leaked a coordinate: %s", resp))
		qt.Assert(t, strings.Contains(string(resp), "longitude"), qt.IsFalse)
	})

	t.Run("End Session Removes User", func(t *testing.T) {
		_, code := c.Request(http.MethodDelete, "bob0", nil, "session")
		qt.Assert(t, code, qt.Equals, 200)

		resp, code := c.Request(http.MethodPost, "alice",
			api.NearbyRequest{Latitude: testLatitude, Longitude: testLongitude}, "nearby")
		qt.Assert(t, code, qt.Equals, 200)

		var nearbyResp struct {
			Data api.NearbyResponse `json:"data"`
		}
		qt.Assert(t, json.Unmarshal(resp, &nearbyResp), qt.IsNil)
		for _, res := range nearbyResp.Data.Results {
			qt.Assert(t, res.UserID, qt.Not(qt.Equals), "bob0")
		}
	})
}

func TestInterestFilterOverHTTP(t *testing.T) {
	c := utils.NewTestService(t, nil)

	update := api.LocationUpdate{Latitude: testLatitude, Longitude: testLongitude}

	// Three users at the same spot, two of them declared chess players.
	for _, uid := range []string{"chess1", "chess2", "runner"} {
		_, code := c.Request(http.MethodPost, uid, update, "location")
		qt.Assert(t, code, qt.Equals, 200)
	}
	for _, uid := range []string{"chess1", "chess2"} {
		_, code := c.Request(http.MethodPost, uid,
			api.SetInterestsRequest{Interests: []string{"chess"}}, "profile", "interests")
		qt.Assert(t, code, qt.Equals, 200)
	}
	_, code := c.Request(http.MethodPost, "runner",
		api.SetInterestsRequest{Interests: []string{"running"}}, "profile", "interests")
	qt.Assert(t, code, qt.Equals, 200)

	_, code = c.Request(http.MethodPost, "alice", update, "location")
	qt.Assert(t, code, qt.Equals, 200)

	resp, code := c.Request(http.MethodPost, "alice",
		api.NearbyRequest{
			Latitude:  testLatitude,
			Longitude: testLongitude,
			Interests: []string{"chess"},
		}, "nearby")
	qt.Assert(t, code, qt.Equals, 200)

	var nearbyResp struct {
		Data api.NearbyResponse `json:"data"`
	}
	qt.Assert(t, json.Unmarshal(resp, &nearbyResp), qt.IsNil)
	qt.Assert(t, len(nearbyResp.Data.Results), qt.Equals, 2)
	for _, res := range nearbyResp.Data.Results {
		qt.Assert(t, strings.HasPrefix(res.UserID, "chess"), qt.IsTrue)
	}
}

func TestHotspotPublishing(t *testing.T) {
	c := utils.NewTestService(t, nil)

	ctx := context.Background()
	hotspots := c.Service().Database.HotspotService
	version, err := hotspots.Publish(ctx, nil)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, version, qt.Equals, int64(1))

	qt.Assert(t, c.Service().Engine.Hotspots().Reload(ctx), qt.IsNil)
	qt.Assert(t, c.Service().Engine.Hotspots().Version(), qt.Equals, int64(1))
}

func TestAuthRejection(t *testing.T) {
	c := utils.NewTestService(t, nil)

	_, code := c.Request(http.MethodPost, "",
		api.LocationUpdate{Latitude: testLatitude, Longitude: testLongitude}, "location")
	qt.Assert(t, code, qt.Equals, 401)
}
