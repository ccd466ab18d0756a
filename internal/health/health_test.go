package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/audiostream/internal/stream"
)

type staticChecker struct {
	name   string
	status Status
}

func (c staticChecker) Name() string { return c.name }

func (c staticChecker) Check(context.Context) CheckResult { return CheckResult{Status: c.status} }

func TestReady_NoCheckers(t *testing.T) {
	resp := NewManager("v1").Ready(context.Background())
	assert.True(t, resp.Ready)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1", resp.Version)
	assert.Empty(t, resp.Checks)
}

func TestReady_Aggregation(t *testing.T) {
	tests := []struct {
		name       string
		statuses   []Status
		wantReady  bool
		wantStatus Status
	}{
		{"all_healthy", []Status{StatusHealthy, StatusHealthy}, true, StatusHealthy},
		{"one_degraded", []Status{StatusHealthy, StatusDegraded}, true, StatusDegraded},
		{"unhealthy_wins", []Status{StatusUnhealthy, StatusDegraded}, false, StatusUnhealthy},
		{"degraded_after_unhealthy", []Status{StatusDegraded, StatusUnhealthy, StatusDegraded}, false, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("")
			for i, s := range tt.statuses {
				m.RegisterChecker(staticChecker{name: string(rune('a' + i)), status: s})
			}
			resp := m.Ready(context.Background())
			assert.Equal(t, tt.wantReady, resp.Ready)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Len(t, resp.Checks, len(tt.statuses))
		})
	}
}

func TestServeReady(t *testing.T) {
	m := NewManager("v1")
	failing := false
	m.RegisterChecker(NewPingChecker("db", func(context.Context) error {
		if failing {
			return errors.New("database is locked")
		}
		return nil
	}))

	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	failing = true
	rec = httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Ready)
	assert.Equal(t, "database is locked", resp.Checks["db"].Error)
}

func TestPingChecker_HonorsTimeout(t *testing.T) {
	m := NewManager("")
	m.timeout = 10 * time.Millisecond
	m.RegisterChecker(NewPingChecker("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	resp := m.Ready(context.Background())
	assert.False(t, resp.Ready)
	assert.Contains(t, resp.Checks["slow"].Error, "deadline")
}

func TestFileChecker(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.wav")
	full := filepath.Join(dir, "tone.wav")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	require.NoError(t, os.WriteFile(full, []byte("RIFF"), 0o600))

	tests := []struct {
		path string
		want Status
	}{
		{"", StatusHealthy},
		{full, StatusHealthy},
		{empty, StatusDegraded},
		{filepath.Join(dir, "missing.wav"), StatusUnhealthy},
		{dir, StatusUnhealthy},
	}
	for _, tt := range tests {
		got := NewFileChecker("source", tt.path).Check(context.Background())
		assert.Equal(t, tt.want, got.Status, tt.path)
	}
}

func TestStreamChecker(t *testing.T) {
	var snaps []stream.Snapshot
	c := NewStreamChecker(func() []stream.Snapshot { return snaps })

	assert.Equal(t, StatusDegraded, c.Check(context.Background()).Status)

	snaps = []stream.Snapshot{{ID: "a", State: "ACTIVE"}}
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)

	snaps = append(snaps, stream.Snapshot{ID: "b", State: "ERROR"})
	got := c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, got.Status)
	assert.Equal(t, "b", got.Message)
}
