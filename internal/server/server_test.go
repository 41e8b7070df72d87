package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/andreiashu/pinbed"
	"github.com/andreiashu/pinbed/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, loadErr error) *Server {
	t.Helper()
	records, err := pinbed.EmbeddedLoader{}.LoadPincodes(context.Background())
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bed := pinbed.FromRecords(records, pinbed.WithLogger(logger))
	if loadErr != nil {
		bed = pinbed.FromRecords(nil, pinbed.WithLogger(logger))
	}
	return New(bed, Options{
		CORS:      config.CORS{AllowedOrigins: []string{"http://localhost:3000"}, MaxAge: 60},
		Logger:    logger,
		LoadError: loadErr,
	})
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = do(t, s, http.MethodGet, "/api/v1/health/detailed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	h := decode[healthResponse](t, rec)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 6, h.Records)
	assert.Empty(t, h.LoadError)
}

func TestHealthDegraded(t *testing.T) {
	s := newTestServer(t, errors.New("HTTP GET https://api.example.com: status 503"))
	assert.True(t, s.Degraded())

	h := decode[healthResponse](t, do(t, s, http.MethodGet, "/api/v1/health/detailed", ""))
	assert.Equal(t, "degraded", h.Status)
	assert.Equal(t, 0, h.Records)
	assert.Contains(t, h.LoadError, "status 503")

	// An empty dataset still answers lookups with empty options.
	res := decode[pinbed.AreaResolution](t, do(t, s, http.MethodGet, "/api/v1/pincodes/500038/areas", ""))
	assert.Equal(t, "", res.City)
	assert.NotNil(t, res.Areas)
	assert.Empty(t, res.Areas)
}

func TestHealthStale(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()
	fresh, err := pinbed.NewPinbed(context.Background(), pinbed.WithCacheDir(dir), pinbed.WithStoreCache(true), pinbed.WithLogger(logger))
	require.NoError(t, err)

	failing := pinbed.LoaderFunc(func(context.Context) ([]pinbed.PincodeRecord, error) {
		return nil, errors.New("HTTP GET https://api.example.com: status 503")
	})
	bed, err := pinbed.NewPinbed(context.Background(), pinbed.WithLoader(failing), pinbed.WithCacheDir(dir), pinbed.WithLogger(logger))
	require.NoError(t, err)

	s := New(bed, Options{Logger: logger})
	assert.True(t, s.Stale())
	assert.False(t, s.Degraded())

	h := decode[healthResponse](t, do(t, s, http.MethodGet, "/api/v1/health/detailed", ""))
	assert.Equal(t, "stale", h.Status)
	assert.Equal(t, fresh.Len(), h.Records)
	assert.Contains(t, h.SourceError, "status 503")
	assert.Empty(t, h.LoadError)
}

func TestGetPincode(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/api/v1/pincodes/560034", "")
	require.Equal(t, http.StatusOK, rec.Code)
	r := decode[pinbed.PincodeRecord](t, rec)
	assert.Equal(t, "Bengaluru", r.City)
	assert.Equal(t, "Koramangala", r.Areas[0].Name)

	rec = do(t, s, http.MethodGet, "/api/v1/pincodes/999999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode[map[string]string](t, rec)["code"])
}

func TestSearchPincodes(t *testing.T) {
	s := newTestServer(t, nil)

	got := decode[pincodeList](t, do(t, s, http.MethodGet, "/api/v1/pincodes?q=hyderabad&limit=2", ""))
	assert.Equal(t, 2, got.Count)
	assert.Equal(t, "500038", got.Pincodes[0].Code)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/v1/pincodes", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/v1/pincodes?q=5&limit=ten", "").Code)
}

func TestAreasAndSubAreas(t *testing.T) {
	s := newTestServer(t, nil)

	res := decode[pinbed.AreaResolution](t, do(t, s, http.MethodGet, "/api/v1/pincodes/500038/areas", ""))
	assert.Equal(t, "Hyderabad", res.City)
	assert.Equal(t, "Telangana", res.State)
	require.Len(t, res.Areas, 2)
	assert.Equal(t, "SR Nagar", res.Areas[0].Name)

	sorted := decode[pinbed.AreaResolution](t, do(t, s, http.MethodGet, "/api/v1/pincodes/500038/areas?sort=name", ""))
	assert.Equal(t, "Ameerpet", sorted.Areas[0].Name)

	rec := do(t, s, http.MethodGet, "/api/v1/pincodes/999999/areas", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"city":"","state":"","areas":[]}`, rec.Body.String())

	path := "/api/v1/pincodes/500038/areas/" + url.PathEscape("SR Nagar") + "/subareas"
	subs := decode[subAreaList](t, do(t, s, http.MethodGet, path, ""))
	require.Len(t, subs.SubAreas, 2)
	assert.Equal(t, "Fatima Nagar", subs.SubAreas[0].Name)

	rec = do(t, s, http.MethodGet, "/api/v1/pincodes/500038/areas/Madhapur/subareas", "")
	assert.JSONEq(t, `{"subAreas":[]}`, rec.Body.String())
}

func TestSubAreasWithSlashInAreaName(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bed := pinbed.FromRecords([]pinbed.PincodeRecord{{
		ID: "1", Code: "500072", City: "Hyderabad", State: "Telangana",
		Areas: []pinbed.AreaRecord{{
			ID: "a", Name: "KPHB Phase 1/2",
			SubAreas: []pinbed.SubAreaRecord{{ID: "s", Name: "Road No 1"}},
		}},
	}}, pinbed.WithLogger(logger))
	s := New(bed, Options{Logger: logger})

	path := "/api/v1/pincodes/500072/areas/" + url.PathEscape("KPHB Phase 1/2") + "/subareas"
	rec := do(t, s, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	subs := decode[subAreaList](t, rec)
	require.Len(t, subs.SubAreas, 1)
	assert.Equal(t, "Road No 1", subs.SubAreas[0].Name)
}

func TestLocations(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/locations", `{"pincode":"500081","areaName":"Madhapur"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	loc := decode[LocationResponse](t, rec)
	assert.Equal(t, "area-resolved", loc.Stage)
	assert.Equal(t, "Hyderabad", loc.State.ResolvedCity)
	assert.Len(t, loc.Areas, 2)
	assert.Len(t, loc.SubAreas, 2)

	loc = decode[LocationResponse](t, do(t, s, http.MethodPost, "/api/v1/locations", `{"pincode":"999999"}`))
	assert.Equal(t, "pincode-resolved", loc.Stage)
	assert.Empty(t, loc.Areas)
	assert.Equal(t, "", loc.State.ResolvedCity)

	loc = decode[LocationResponse](t, do(t, s, http.MethodPost, "/api/v1/locations", `{}`))
	assert.Equal(t, "empty", loc.Stage)

	rec = do(t, s, http.MethodPost, "/api/v1/locations", `{"pincode":"500038","areaName":"Madhapur"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "UNKNOWN_AREA", decode[map[string]string](t, rec)["code"])

	rec = do(t, s, http.MethodPost, "/api/v1/locations", `{"pincode":"500038","subAreaName":"BK Guda"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "INCOMPLETE_SELECTION", decode[map[string]string](t, rec)["code"])

	rec = do(t, s, http.MethodPost, "/api/v1/locations", `{"pincode":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNearest(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/api/v1/nearest?lat=12.9352&lng=77.6245", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "560034", decode[pinbed.PincodeRecord](t, rec).Code)
	assert.Equal(t, 1, s.cache.ItemCount())

	// Same geohash cell is served from the cache.
	rec = do(t, s, http.MethodGet, "/api/v1/nearest?lat=12.93521&lng=77.62451", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, s.cache.ItemCount())

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/v1/nearest?lat=51.5&lng=-0.12", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/v1/nearest?lat=91&lng=0", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/v1/nearest?lat=NaN&lng=0", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/v1/nearest?lat=12.9", "").Code)
}

func TestSuggestAreas(t *testing.T) {
	s := newTestServer(t, nil)

	got := decode[suggestionList](t, do(t, s, http.MethodGet, "/api/v1/suggest/areas?pincode=500038&q=amerpet", ""))
	require.Len(t, got.Suggestions, 1)
	assert.Equal(t, "Ameerpet", got.Suggestions[0].Area.Name)
	assert.Equal(t, 1, got.Suggestions[0].Distance)

	cached := decode[suggestionList](t, do(t, s, http.MethodGet, "/api/v1/suggest/areas?pincode=500038&q=AMERPET", ""))
	assert.Equal(t, got, cached)

	got = decode[suggestionList](t, do(t, s, http.MethodGet, "/api/v1/suggest/areas?pincode=500038&q=amerpet&distance=0", ""))
	assert.Empty(t, got.Suggestions)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/v1/suggest/areas?q=sr", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/v1/suggest/areas?pincode=500038&q=sr&distance=x", "").Code)
}

func TestStates(t *testing.T) {
	s := newTestServer(t, nil)
	got := decode[map[string][]string](t, do(t, s, http.MethodGet, "/api/v1/states", ""))
	assert.Contains(t, got["states"], "Telangana")
}

func TestSubmissions(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/submissions/registration", `{"pincode":"500038","areaName":"Ameerpet"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{
		"form": "registration",
		"submission": {"pincode":"500038","areaName":"Ameerpet","subAreaName":"-","city":"Hyderabad","state":"Telangana"}
	}`, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/v1/submissions/registration", `{"pincode":"500038","areaName":"Ameerpet","subAreaName":"-","city":"Hyderabad","state":"Telangana"}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/v1/submissions/search-filter", `{"pincode":"530017"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", decode[submissionResponse](t, rec).Submission.SubAreaName)
}

func TestSubmissionsRejected(t *testing.T) {
	s := newTestServer(t, nil)
	tests := []struct {
		name     string
		form     string
		body     string
		status   int
		wantCode string
	}{
		{"unknown form", "checkout", `{"pincode":"500038"}`, http.StatusNotFound, "UNKNOWN_FORM"},
		{"missing area", "registration", `{"pincode":"500038"}`, http.StatusUnprocessableEntity, "INVALID_SUBMISSION"},
		{"unknown pincode", "contact", `{"pincode":"999999"}`, http.StatusUnprocessableEntity, "UNKNOWN_PINCODE"},
		{"tampered city", "profile-update", `{"pincode":"500038","areaName":"SR Nagar","city":"Mumbai","state":"Telangana"}`, http.StatusUnprocessableEntity, "CITY_STATE_MISMATCH"},
		{"foreign sub-area", "profile-update", `{"pincode":"500038","areaName":"SR Nagar","subAreaName":"Cyber Towers"}`, http.StatusUnprocessableEntity, "UNKNOWN_SUB_AREA"},
		{"bad body", "contact", `[`, http.StatusBadRequest, "INVALID_BODY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/v1/submissions/"+tt.form, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			var body struct {
				Code   string              `json:"code"`
				Fields []pinbed.FieldError `json:"fields"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Code)
			if tt.wantCode == "INVALID_SUBMISSION" {
				assert.Equal(t, []pinbed.FieldError{{Field: "areaName", Rule: "required"}}, body.Fields)
			}
		})
	}
}

func TestRoutingErrors(t *testing.T) {
	s := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/v2/health", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, s, http.MethodDelete, "/api/v1/pincodes/500038", "").Code)
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/locations", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCompressMiddleware(t *testing.T) {
	payload := strings.Repeat(`{"name":"Fatima Nagar"},`, 200)
	h := compressMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(payload))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	assert.Less(t, rec.Body.Len(), len(payload))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Equal(t, payload, rec.Body.String())
}

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := recoveryMiddleware(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error","code":"INTERNAL_ERROR"}`, rec.Body.String())
}

func TestGetCacheKey(t *testing.T) {
	assert.Equal(t, "suggest:500038:sr:2", GetCacheKey("suggest", "500038", "sr", 2))
	assert.Equal(t, "nearest", GetCacheKey("nearest"))
}

func TestRunShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0") }()
	cancel()
	assert.NoError(t, <-done)
}
