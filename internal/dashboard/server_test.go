package dashboard

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/wheelhouse/internal/models"
	"github.com/eddiefleurent/wheelhouse/internal/quote"
	"github.com/eddiefleurent/wheelhouse/internal/storage"
)

func newTestServer(t *testing.T, authToken string, withRun bool) *Server {
	t.Helper()

	store, err := storage.NewJSONStorage(filepath.Join(t.TempDir(), "runs.json"), 10)
	require.NoError(t, err)

	if withRun {
		run := storage.NewRun()
		run.Record(models.Evaluation{
			Outcome: models.OutcomeFound,
			Result:  &models.RollResult{Symbol: "XYZ", CurrentStrike: 100},
		})
		run.Record(models.Evaluation{Outcome: models.OutcomeNotEligible})
		run.Finish()
		require.NoError(t, store.RecordRun(run))
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	stats := func() CacheStats {
		c := quote.NewCache(0)
		return CacheStats{Options: c.Stats(), Stocks: c.Stats()}
	}

	return NewServer(Config{Port: 0, AuthToken: authToken}, store, stats, logger)
}

func get(s *Server, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, "", false)

	rec := get(s, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestRunEndpoint(t *testing.T) {
	s := newTestServer(t, "", true)

	rec := get(s, "/api/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var run storage.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.NotEmpty(t, run.RunID)
	assert.Equal(t, 1, run.Counts[models.OutcomeFound])
	assert.Equal(t, 1, run.Counts[models.OutcomeNotEligible])
}

func TestRunEndpointBeforeFirstRun(t *testing.T) {
	s := newTestServer(t, "", false)
	rec := get(s, "/api/run", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResultsEndpoint(t *testing.T) {
	s := newTestServer(t, "", true)

	rec := get(s, "/api/results", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var results []*models.RollResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "XYZ", results[0].Symbol)
}

func TestResultsEndpointEmptyWithoutRun(t *testing.T) {
	s := newTestServer(t, "", false)

	rec := get(s, "/api/results", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestHistoryEndpoint(t *testing.T) {
	s := newTestServer(t, "", true)

	rec := get(s, "/api/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var history []storage.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Equal(t, 2, history[0].Positions)
}

func TestCacheEndpoint(t *testing.T) {
	s := newTestServer(t, "", false)

	rec := get(s, "/api/cache", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats CacheStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Zero(t, stats.Options.TotalRequests)
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t, "sekrit", true)

	t.Run("missing token rejected", func(t *testing.T) {
		rec := get(s, "/api/run", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong token rejected", func(t *testing.T) {
		rec := get(s, "/api/run", map[string]string{"X-Auth-Token": "nope"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("header token accepted", func(t *testing.T) {
		rec := get(s, "/api/run", map[string]string{"X-Auth-Token": "sekrit"})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("query token accepted", func(t *testing.T) {
		rec := get(s, "/api/run?token=sekrit", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("health bypasses auth", func(t *testing.T) {
		rec := get(s, "/health", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
