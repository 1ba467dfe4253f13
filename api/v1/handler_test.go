// Package v1_test exercises the API through the mounted routes.
package v1_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"footprint/internal"
	"footprint/internal/testsupport"
	"footprint/internal/visitors"
)

const (
	visitorFP = "0a1b2c3d"
	visitorIP = "203.0.113.7"
)

func newTestApp(t *testing.T) (*fiber.App, *internal.Services) {
	t.Helper()
	db := testsupport.SetupTestDB(t)
	return testsupport.CreateMinimalTestApp(t, db)
}

func doRequest(t *testing.T, app *fiber.App, method, target string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		payload, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", testsupport.ChromeUA)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, 30000)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return out
}

func viewPayload(url string) map[string]any {
	return map[string]any{
		"type":        "view",
		"domain":      "example.com",
		"fingerprint": visitorFP,
		"url":         url,
		"referrer":    "https://www.google.com/search?q=footprint",
		"timezone":    "Europe/Berlin",
		"language":    "de-DE",
		"typeData":    map[string]any{"pageTitle": "Home", "pageUrl": url},
	}
}

func collectView(t *testing.T, app *fiber.App, url string) map[string]any {
	t.Helper()
	resp, body := doRequest(t, app, "POST", "/api/collect", viewPayload(url),
		map[string]string{"X-Forwarded-For": visitorIP})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))
	return decode(t, body)
}

func TestCollectAction(t *testing.T) {
	t.Run("stores a view and marks the visitor online", func(t *testing.T) {
		app, _ := newTestApp(t)

		result := collectView(t, app, "https://example.com/pricing")
		assert.Equal(t, true, result["stored"])
		assert.Equal(t, visitorFP, result["fingerprint"])
		assert.NotEmpty(t, result["id"])

		resp, body := doRequest(t, app, "GET", "/api/presence?domain=Example.com", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, float64(1), decode(t, body)["activeNow"])

		resp, body = doRequest(t, app, "GET", "/api/stats?domain=example.com&days=7", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
		overview := decode(t, body)["overview"].(map[string]any)
		assert.Equal(t, float64(1), overview["totalPageViews"])
		assert.Equal(t, float64(1), overview["uniqueVisitors"])
	})

	t.Run("computes a fingerprint from signals", func(t *testing.T) {
		app, _ := newTestApp(t)

		payload := viewPayload("https://example.com/")
		delete(payload, "fingerprint")
		payload["signals"] = map[string]any{"language": "en-US", "platform": "Win32", "screenResolution": "1920x1080"}

		resp, body := doRequest(t, app, "POST", "/api/collect", payload, nil)
		require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))
		fp, _ := decode(t, body)["fingerprint"].(string)
		assert.Len(t, fp, 8)
	})

	t.Run("acknowledges malformed events without storing them", func(t *testing.T) {
		app, _ := newTestApp(t)

		resp, body := doRequest(t, app, "POST", "/api/collect",
			map[string]any{"type": "view", "domain": "example.com", "fingerprint": visitorFP}, nil)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.Equal(t, false, decode(t, body)["stored"])

		resp, body = doRequest(t, app, "GET", "/api/recent?domain=example.com", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, decode(t, body)["events"])
	})

	t.Run("rejects unparseable bodies", func(t *testing.T) {
		app, _ := newTestApp(t)

		resp, body := doRequest(t, app, "POST", "/api/collect", "{not json", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_JSON", decode(t, body)["code"])
	})

	t.Run("heartbeat keeps presence without storing an event", func(t *testing.T) {
		app, _ := newTestApp(t)
		collectView(t, app, "https://example.com/")

		resp, body := doRequest(t, app, "POST", "/api/collect",
			map[string]any{"type": "heartbeat", "fingerprint": visitorFP}, nil)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.Equal(t, false, decode(t, body)["stored"])

		resp, body = doRequest(t, app, "GET", "/api/recent?domain=example.com", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Len(t, decode(t, body)["events"], 1)
	})

	t.Run("answers preflight with CORS headers", func(t *testing.T) {
		app, _ := newTestApp(t)

		resp, _ := doRequest(t, app, "OPTIONS", "/api/collect", nil, map[string]string{
			"Origin":                        "https://example.com",
			"Access-Control-Request-Method": "POST",
		})
		assert.Less(t, resp.StatusCode, 300)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	})
}

func TestCollectBeaconAction(t *testing.T) {
	app, _ := newTestApp(t)

	resp, _ := doRequest(t, app, "POST", "/api/collect/beacon", "garbage", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	collectView(t, app, "https://example.com/")
	resp, _ = doRequest(t, app, "POST", "/api/collect/beacon",
		map[string]any{"type": "page_exit", "fingerprint": visitorFP}, nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, body := doRequest(t, app, "GET", "/api/presence?domain=example.com", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), decode(t, body)["activeNow"])
}

func TestStatsAction(t *testing.T) {
	app, _ := newTestApp(t)

	tests := []struct {
		name   string
		target string
		status int
	}{
		{name: "default window", target: "/api/stats?domain=example.com", status: http.StatusOK},
		{name: "explicit dates", target: "/api/stats?domain=example.com&startDate=2024-01-01&endDate=2024-01-31", status: http.StatusOK},
		{name: "reversed dates", target: "/api/stats?startDate=2024-02-01&endDate=2024-01-01", status: http.StatusBadRequest},
		{name: "bad date", target: "/api/stats?startDate=yesterday&endDate=2024-01-01", status: http.StatusBadRequest},
		{name: "bad days", target: "/api/stats?days=-3", status: http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := doRequest(t, app, "GET", tc.target, nil, nil)
			assert.Equal(t, tc.status, resp.StatusCode, string(body))
			if tc.status == http.StatusBadRequest {
				assert.Equal(t, "INVALID_WINDOW", decode(t, body)["code"])
			}
		})
	}

	t.Run("explicit window is dense", func(t *testing.T) {
		resp, body := doRequest(t, app, "GET", "/api/stats?startDate=2024-01-01&endDate=2024-01-31", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Len(t, decode(t, body)["dailyStats"], 31)
	})
}

func TestPresenceActions(t *testing.T) {
	app, _ := newTestApp(t)
	collectView(t, app, "https://example.com/")

	resp, _ := doRequest(t, app, "GET", "/api/presence", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := doRequest(t, app, "GET", "/api/presence/online?domain=example.com", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{visitorFP}, decode(t, body)["onlineFingerprints"])

	resp, body = doRequest(t, app, "GET", "/api/domains", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	domains := decode(t, body)["domains"].([]any)
	require.Len(t, domains, 1)
	domain := domains[0].(map[string]any)
	assert.Equal(t, "example.com", domain["domain"])
	assert.Equal(t, float64(1), domain["activeNow"])
	assert.Equal(t, "active", domain["status"])
}

func TestUpdateNotesAction(t *testing.T) {
	app, _ := newTestApp(t)
	collectView(t, app, "https://example.com/")

	t.Run("by fingerprint and ip", func(t *testing.T) {
		resp, body := doRequest(t, app, "POST", "/api/notes",
			map[string]any{"fingerprint": visitorFP, "ip": visitorIP, "notes": "returning customer"}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
		detail := decode(t, body)
		assert.Equal(t, "returning customer", detail["notes"])
		assert.Equal(t, "Chrome", detail["browserName"])
		assert.Equal(t, "https://www.google.com/search?q=footprint", detail["referrer"])
	})

	t.Run("by id", func(t *testing.T) {
		resp, body := doRequest(t, app, "GET", "/api/visitors/"+visitorFP, nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		details := decode(t, body)["details"].([]any)
		require.Len(t, details, 1)
		id := details[0].(map[string]any)["id"]

		resp, body = doRequest(t, app, "POST", "/api/notes", map[string]any{"detailId": id, "notes": "edited"}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
		assert.Equal(t, "edited", decode(t, body)["notes"])
	})

	t.Run("unknown detail", func(t *testing.T) {
		resp, body := doRequest(t, app, "POST", "/api/notes", map[string]any{"detailId": 9999, "notes": "x"}, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "DETAIL_NOT_FOUND", decode(t, body)["code"])
	})

	t.Run("missing target", func(t *testing.T) {
		resp, _ := doRequest(t, app, "POST", "/api/notes", map[string]any{"fingerprint": visitorFP, "notes": "x"}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestVisitorActions(t *testing.T) {
	app, _ := newTestApp(t)
	collectView(t, app, "https://example.com/")
	collectView(t, app, "https://example.com/docs")

	t.Run("list", func(t *testing.T) {
		resp, body := doRequest(t, app, "GET", "/api/visitors?domain=example.com", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		list := decode(t, body)["visitors"].([]any)
		require.Len(t, list, 1)
		v := list[0].(map[string]any)
		assert.Equal(t, visitorFP, v["fingerprint"])
		assert.Equal(t, visitors.Alias(visitorFP), v["alias"])
		assert.Equal(t, visitorIP, v["ip"])
		assert.Equal(t, true, v["online"])
	})

	t.Run("detail", func(t *testing.T) {
		resp, body := doRequest(t, app, "GET", "/api/visitors/"+visitorFP, nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		out := decode(t, body)
		assert.Equal(t, true, out["visitor"].(map[string]any)["online"])
		assert.Len(t, out["recentEvents"], 2)
	})

	t.Run("unknown", func(t *testing.T) {
		resp, _ := doRequest(t, app, "GET", "/api/visitors/ffffffff", nil, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("oversized fingerprint", func(t *testing.T) {
		resp, _ := doRequest(t, app, "GET", "/api/visitors/"+strings.Repeat("f", 200), nil, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("recent newest first with limit", func(t *testing.T) {
		resp, body := doRequest(t, app, "GET", "/api/recent?domain=example.com&limit=1", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		list := decode(t, body)["events"].([]any)
		require.Len(t, list, 1)
		assert.Equal(t, "https://example.com/docs", list[0].(map[string]any)["url"])
	})

	t.Run("live requires a domain", func(t *testing.T) {
		resp, _ := doRequest(t, app, "GET", "/api/live", nil, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestDetectAction(t *testing.T) {
	app, _ := newTestApp(t)

	resp, body := doRequest(t, app, "GET",
		"/api/detect?ua=curl%2F8.4.0", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	class := decode(t, body)["classification"].(map[string]any)
	assert.Equal(t, true, class["bot"])

	resp, body = doRequest(t, app, "GET", "/api/detect", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode(t, body)
	assert.Equal(t, testsupport.ChromeUA, out["userAgent"])
	class = out["classification"].(map[string]any)
	assert.Equal(t, "Chrome", class["browserName"])
	assert.Equal(t, "Windows", class["osName"])
	assert.Equal(t, "Desktop", class["deviceClass"])
}

func TestGetSDKAction(t *testing.T) {
	app, _ := newTestApp(t)

	resp, body := doRequest(t, app, "GET", "/sdk.js", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/javascript", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), "/api/collect")
	assert.Contains(t, string(body), "heartbeatMillis = 90000")

	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)
	resp, body = doRequest(t, app, "GET", "/sdk.js", nil, map[string]string{"If-None-Match": etag})
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)
	assert.Empty(t, body)
}

func TestOperationalRoutes(t *testing.T) {
	app, _ := newTestApp(t)
	collectView(t, app, "https://example.com/")

	resp, body := doRequest(t, app, "GET", "/_health", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode(t, body)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "ok", health["presence_status"])

	resp, body = doRequest(t, app, "GET", "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `footprint_events_received_total{type="view"} 1`)
}

func TestPresenceQueryDoesNotLabelUnknownDomains(t *testing.T) {
	app, _ := newTestApp(t)
	collectView(t, app, "https://example.com/")

	resp, _ := doRequest(t, app, "GET", "/api/presence?domain=never-tracked.test", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doRequest(t, app, "GET", "/api/domains", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doRequest(t, app, "GET", "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `footprint_online_visitors{domain="example.com"} 1`)
	assert.NotContains(t, string(body), "never-tracked.test")
}

func TestClientChosenFingerprintIsReachable(t *testing.T) {
	app, _ := newTestApp(t)
	payload := viewPayload("https://example.com/")
	payload["fingerprint"] = "Visitor-42"
	resp, body := doRequest(t, app, "POST", "/api/collect", payload, map[string]string{"X-Forwarded-For": visitorIP})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	resp, body = doRequest(t, app, "GET", "/api/visitors?domain=example.com", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode(t, body)["visitors"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "Visitor-42", list[0].(map[string]any)["fingerprint"])

	resp, body = doRequest(t, app, "GET", "/api/visitors/Visitor-42", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
}

func TestCollectIssuesFingerprintRecord(t *testing.T) {
	app, _ := newTestApp(t)
	payload := viewPayload("https://example.com/")
	delete(payload, "fingerprint")
	payload["signals"] = map[string]any{
		"language":         "de-DE",
		"platform":         "Win32",
		"screenResolution": "1920x1080",
		"timezone":         "Europe/Berlin",
	}

	resp, body := doRequest(t, app, "POST", "/api/collect", payload, map[string]string{"X-Forwarded-For": visitorIP})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))
	out := decode(t, body)
	record, ok := out["record"].(map[string]any)
	require.True(t, ok, "response carries the record to keep: %s", body)
	assert.Equal(t, out["fingerprint"], record["id"])
	assert.NotEmpty(t, record["expiresAt"])

	// Echoing the record back with the same signals keeps the id and issues nothing.
	payload["fingerprint"] = record["id"]
	payload["stored"] = record
	resp, body = doRequest(t, app, "POST", "/api/collect", payload, map[string]string{"X-Forwarded-For": visitorIP})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))
	again := decode(t, body)
	assert.Equal(t, record["id"], again["fingerprint"])
	assert.NotContains(t, again, "record")
}
