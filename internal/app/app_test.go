package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rotationsync/internal/config"
	"rotationsync/internal/handlers"
)

func upstream(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("method") != "report" || r.Header.Get("token") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func memoryConfig(endpoint string) config.Config {
	var cfg config.Config
	cfg.API.Endpoint = endpoint
	cfg.API.FetchTimeout = time.Minute
	cfg.Warehouse.Driver = config.DriverMemory
	cfg.Warehouse.Project = "proj"
	cfg.Warehouse.Dataset = "ds"
	cfg.Jobs.CurrentTable = "cr24"
	cfg.Jobs.CurrentToken = "tok24"
	cfg.Log.Level = "error"
	return cfg
}

func TestEndToEndMemoryWarehouse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := upstream(t, `[{"Fecha":"15-03-2024 10:30:00","Hora":"08:45:00","Puesto Nº":"P-1"}]`)

	a, err := Build(context.Background(), memoryConfig(srv.URL))
	require.NoError(t, err)
	defer a.Close()

	router := handlers.NewRouter(a.API, a.Registry)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/carga_bigquery/cr_24", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true,"message":"processed and loaded","records_processed":1}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/carga_bigquery/cr_hist", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var failure handlers.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &failure))
	assert.Contains(t, failure.Error, "ConfigurationError")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.True(t, strings.Contains(rec.Body.String(), `rotation_sync_runs_total{job="cr_24",outcome="success"} 1`))
}

func TestBuildRejectsBadCipherKey(t *testing.T) {
	cfg := memoryConfig("http://127.0.0.1:1")
	cfg.Secrets.TokenKeyB64 = "not-base64!"
	_, err := Build(context.Background(), cfg)
	assert.Error(t, err)
}
