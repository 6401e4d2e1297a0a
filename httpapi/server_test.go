// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package httpapi_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/tempmesh/tempmesh/aggregate"
	"github.com/tempmesh/tempmesh/httpapi"
)

type staticSource struct{ status httpapi.Status }

func (s *staticSource) Status() httpapi.Status { return s.status }

func serve(
	t *testing.T,
	src httpapi.StatusSource,
	method, path string,
) *httptest.ResponseRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tempmesh_test_total",
		Help: "Test counter.",
	}))

	srv := httpapi.New(src, reg, nil)
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

var live = httpapi.Status{
	Mean:   25,
	OK:     true,
	Now:    5,
	Cycles: 3,
	Records: []aggregate.Record{
		{PublisherID: 1, Temperature: 20, Time: 86390},
		{PublisherID: 2, Temperature: 30, Time: 0},
	},
}

func TestHealth(t *testing.T) {
	w := serve(t, &staticSource{}, http.MethodGet, "/health")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = serve(t, &staticSource{live}, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok","cycles":3}`, w.Body.String())
}

func TestAverage(t *testing.T) {
	w := serve(t, &staticSource{live}, http.MethodGet, "/average")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.JSONEq(t,
		`{"temperature":25,"publishers":2,"time":5}`, w.Body.String())

	w = serve(t, &staticSource{httpapi.Status{Cycles: 1}},
		http.MethodGet, "/average")
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Empty(t, w.Body.String())
}

func TestPublishers(t *testing.T) {
	w := serve(t, &staticSource{live}, http.MethodGet, "/publishers")
	require.Equal(t, http.StatusOK, w.Code)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 2)
	require.EqualValues(t, 1, got[0]["publisher_id"])
	require.EqualValues(t, 15, got[0]["age"])
	require.EqualValues(t, 5, got[1]["age"])

	w = serve(t, &staticSource{}, http.MethodGet, "/publishers")
	require.JSONEq(t, `[]`, w.Body.String())
}

func TestPublisher(t *testing.T) {
	w := serve(t, &staticSource{live}, http.MethodGet, "/publishers/2")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t,
		`{"publisher_id":2,"temperature":30,"time":0,"age":5}`,
		w.Body.String())

	w = serve(t, &staticSource{live}, http.MethodGet, "/publishers/3")
	require.Equal(t, http.StatusNotFound, w.Code)

	w = serve(t, &staticSource{live}, http.MethodGet, "/publishers/99999999999")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMethodAndMetrics(t *testing.T) {
	w := serve(t, &staticSource{live}, http.MethodPost, "/average")
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = serve(t, &staticSource{live}, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "tempmesh_test_total 0")
}

type panicSource struct{}

func (panicSource) Status() httpapi.Status { panic("boom") }

func TestRecovers(t *testing.T) {
	w := serve(t, panicSource{}, http.MethodGet, "/average")
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestServe(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- httpapi.New(&staticSource{live}, nil, nil).Serve(ctx, addr)
	}()

	require.Eventually(t, func() bool {
		res, err := http.Get(fmt.Sprintf("http://%s/health", addr))
		if err != nil {
			return false
		}
		defer res.Body.Close()
		return res.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
