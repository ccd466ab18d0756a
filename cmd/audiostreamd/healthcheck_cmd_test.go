package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthcheck(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	var gotPath atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()
	addr := strings.TrimPrefix(srv.URL, "http://")

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 0, runHealthcheckCLI([]string{"-addr", addr}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "successful (ready)")
	assert.Equal(t, "/readyz", gotPath.Load())

	assert.Equal(t, 0, runHealthcheckCLI([]string{"-addr", addr, "-mode", "live"}, &stdout, &stderr))
	assert.Equal(t, "/healthz", gotPath.Load())

	assert.Equal(t, 2, runHealthcheckCLI([]string{"-addr", addr, "-mode", "deep"}, &stdout, &stderr))

	status.Store(http.StatusServiceUnavailable)
	stderr.Reset()
	assert.Equal(t, 1, runHealthcheckCLI([]string{"-addr", addr}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "503")
}

func TestHealthcheck_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, runHealthcheckCLI([]string{"-addr", addr, "-timeout", "1s"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "network")
}
