package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/audiostream/internal/config"
	"github.com/ManuGH/audiostream/internal/history"
	"github.com/ManuGH/audiostream/internal/version"
)

// runSessionsCLI lists recorded sessions from the history database.
func runSessionsCLI(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("audiostreamd sessions", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var file, db, format string
	var limit int
	fs.StringVar(&file, "config", "", "path to YAML configuration file")
	fs.StringVar(&db, "db", "", "history database (overrides history.path)")
	fs.StringVar(&format, "format", "table", "output format: table, yaml or json")
	fs.IntVar(&limit, "limit", 20, "number of sessions to show")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if limit <= 0 {
		fmt.Fprintln(stderr, "Error: -limit must be positive")
		return 2
	}

	if db == "" {
		path := strings.TrimSpace(file)
		if path == "" {
			path = resolveDefaultConfigPath()
		}
		cfg, err := config.NewLoader(path, version.Version).Load()
		if err != nil {
			fmt.Fprintf(stderr, "Configuration error in %s:\n  %v\n", describePath(path), err)
			return 1
		}
		db = cfg.History.Path
	}

	store, err := history.Open(db, 0)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to open history %s: %v\n", db, err)
		return 1
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	reports, err := store.List(ctx, limit)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to list sessions: %v\n", err)
		return 1
	}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "table":
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SESSION\tSTARTED\tDIRECTION\tDRIVER\tDURATION\tFRAMES\tREOPENS\tSTATE\tERROR")
		for _, r := range reports {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
				r.SessionID, r.StartedAt.Format(time.RFC3339), r.Direction, r.Driver,
				r.Duration.Round(time.Millisecond), r.Frames, r.Reopens, r.FinalState, r.Error)
		}
		_ = tw.Flush()
	case "yaml", "yml":
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		if err := enc.Encode(reports); err != nil {
			fmt.Fprintf(stderr, "Failed to encode YAML: %v\n", err)
			return 1
		}
		_ = enc.Close()
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			fmt.Fprintf(stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
	default:
		fmt.Fprintf(stderr, "Unsupported format: %s (use table, yaml or json)\n", format)
		return 2
	}
	return 0
}
