// Package history records finished daemon sessions: as a YAML report file
// next to the run and as rows in a SQLite database.
package history

import (
	"fmt"
	"os"
	"time"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// Report summarizes one session.
type Report struct {
	SessionID  string        `yaml:"session_id" json:"session_id"`
	StreamID   string        `yaml:"stream_id" json:"stream_id"`
	Direction  string        `yaml:"direction" json:"direction"`
	Driver     string        `yaml:"driver" json:"driver"`
	Format     string        `yaml:"format" json:"format"`
	StartedAt  time.Time     `yaml:"started_at" json:"started_at"`
	Duration   time.Duration `yaml:"duration" json:"duration_ns"`
	Frames     int64         `yaml:"frames" json:"frames"`
	Bytes      int64         `yaml:"bytes" json:"bytes"`
	Commands   int           `yaml:"commands" json:"commands"`
	Reopens    int           `yaml:"reopens" json:"reopens"`
	FinalState string        `yaml:"final_state" json:"final_state"`
	Error      string        `yaml:"error,omitempty" json:"error,omitempty"`
}

// Succeeded reports whether the session ended without error.
func (r Report) Succeeded() bool { return r.Error == "" }

// WriteReport replaces path atomically with r encoded as YAML.
func WriteReport(path string, r Report) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) (Report, error) {
	var r Report
	// #nosec G304 -- report paths come from operator configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return r, fmt.Errorf("read report %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("decode report %s: %w", path, err)
	}
	return r, nil
}
