package controlroll

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rotationsync/internal/syncerr"
)

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"Fecha":"15-03-2024 10:30:00"}]`))
	}))
	defer srv.Close()

	resp, err := New(srv.URL).Fetch(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.ContentType)
	assert.Equal(t, `[{"Fecha":"15-03-2024 10:30:00"}]`, string(resp.Body))
}

func TestFetch_SendsReportHeaders(t *testing.T) {
	var gotMethod, gotToken, gotVerb string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotVerb = r.Method
		gotMethod = r.Header.Get("method")
		gotToken = r.Header.Get("token")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Fetch(context.Background(), "secret-token-123")
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, gotVerb)
	assert.Equal(t, "report", gotMethod)
	assert.Equal(t, "secret-token-123", gotToken)
}

func TestFetch_NonSuccessIsTransportFailure(t *testing.T) {
	var calls atomic.Int32
	long := strings.Repeat("x", 2000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(long))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Fetch(context.Background(), "tok")
	require.Error(t, err)
	assert.Equal(t, syncerr.TransportFailure, syncerr.KindOf(err))

	var se *syncerr.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.Status)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Len(t, apiErr.Body, maxErrorBody)

	assert.Equal(t, int32(1), calls.Load(), "no retries")
}

func TestFetch_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(url).Fetch(context.Background(), "tok")
	require.Error(t, err)
	assert.Equal(t, syncerr.TransportFailure, syncerr.KindOf(err))
}

func TestFetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := New(srv.URL, WithTimeout(50*time.Millisecond)).Fetch(context.Background(), "tok")
	require.Error(t, err)
	assert.Equal(t, syncerr.TransportFailure, syncerr.KindOf(err))
}

func TestFetch_MissingEndpoint(t *testing.T) {
	_, err := New("  ").Fetch(context.Background(), "tok")
	require.Error(t, err)
	assert.Equal(t, syncerr.ConfigurationError, syncerr.KindOf(err))
	assert.Contains(t, err.Error(), "API_LOCAL_URL")
}

func TestNew_DefaultTimeout(t *testing.T) {
	c := New("http://upstream")
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)

	c = New("http://upstream", WithTimeout(0))
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout, "zero keeps the default")
}
