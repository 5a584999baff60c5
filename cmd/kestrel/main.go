// Package main provides the kestrel-lang REPL entry point: it wires a
// Postgres-backed store, an HTTP datasource manager (only when
// KESTREL_DATASOURCE_URL is set; the Kafka transport is not wired here), and
// session configuration, then reads pre-parsed statements from stdin and
// runs them through the command executors (internal/exec).
//
// The grammar/parser that turns DSL text into statement.Statement values is
// an external collaborator (spec.md §1); this binary accepts one JSON-encoded
// statement.Statement per line as a thin front door for manual testing and
// scripting, the same way cmd/correlator/main.go composes its HTTP server
// from already-built collaborators rather than parsing anything itself.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"

	"github.com/raymundl/kestrel-lang/internal/config"
	"github.com/raymundl/kestrel-lang/internal/datasource"
	"github.com/raymundl/kestrel-lang/internal/datasource/httpds"
	"github.com/raymundl/kestrel-lang/internal/display"
	"github.com/raymundl/kestrel-lang/internal/exec"
	"github.com/raymundl/kestrel-lang/internal/session"
	"github.com/raymundl/kestrel-lang/internal/statement"
	"github.com/raymundl/kestrel-lang/internal/store/postgres"
)

const (
	versionString = "0.1.0"
	name          = "kestrel"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "show version information")
		configPath  = flag.String("config", "", "path to session config YAML (default: "+config.DefaultConfigPath+" or "+config.ConfigPathEnvVar+")")
	)

	flag.Parse()

	if *showVersion {
		fmt.Printf("%s v%s\n", name, versionString)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("KESTREL_LOG_LEVEL", slog.LevelInfo),
	}))

	logger.Info("starting kestrel session",
		slog.String("service", name),
		slog.String("version", versionString))

	sessCfg := loadSessionConfig(*configPath)

	conn, err := postgres.NewConnection(postgres.LoadConfig())
	if err != nil {
		logger.Error("failed to connect to store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = conn.Close() }()

	st := postgres.New(conn, logger)

	var ds datasource.Manager
	if url := config.GetEnvStr("KESTREL_DATASOURCE_URL", ""); url != "" {
		ds = httpds.New(&http.Client{})
	}

	sess := session.New(uuid.NewString(), st, ds, nil, sessCfg)
	sess.Logger = logger

	logger.Info("session ready", slog.String("session_id", sess.ID))

	runREPL(sess)
}

// loadSessionConfig honors --config when given, else falls back to
// config.LoadSessionFromEnv's KESTREL_CONFIG_PATH/DefaultConfigPath lookup.
func loadSessionConfig(explicitPath string) config.Session {
	if explicitPath != "" {
		return config.LoadSession(explicitPath)
	}

	return config.LoadSessionFromEnv()
}

// runREPL reads one JSON-encoded statement.Statement per line from stdin,
// dispatches it through exec.Dispatch, and prints the resulting variable
// binding or display to stdout. Blank lines and lines starting with "#" are
// skipped.
func runREPL(sess *session.Session) {
	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || line[0] == '#' {
			continue
		}

		runLine(ctx, sess, line)
	}

	if err := scanner.Err(); err != nil {
		log.Fatalf("kestrel: reading stdin: %v", err)
	}
}

func runLine(ctx context.Context, sess *session.Session, line string) {
	var stmt statement.Statement
	if err := json.Unmarshal([]byte(line), &stmt); err != nil {
		fmt.Fprintf(os.Stderr, "kestrel: invalid statement: %v\n", err)

		return
	}

	executor, ok := exec.Dispatch(stmt.Command)
	if !ok {
		fmt.Fprintf(os.Stderr, "kestrel: unknown command: %s\n", stmt.Command)

		return
	}

	v, d, err := executor(ctx, stmt, sess)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kestrel: %s failed: %v\n", stmt.Command, err)

		return
	}

	if v != nil {
		fmt.Println(v.Summary())
	}

	if d != nil {
		printDisplay(*d)
	}
}

// printDisplay renders a Display to stdout in a plain form suitable for a
// manual-testing REPL; a richer presentation (HTML, tables) is the display
// subsystem's concern, not this CLI's (see internal/display/html for the
// optional HTML adapter).
func printDisplay(d display.Display) {
	switch d.Kind {
	case display.KindText:
		fmt.Println(d.Text)
	case display.KindMapping:
		for _, key := range d.MappingKeys {
			fmt.Printf("%s: %v\n", key, d.Mapping[key])
		}
	case display.KindTable:
		for _, row := range d.Table {
			vals := make([]any, len(d.Columns))
			for i, col := range d.Columns {
				vals[i] = row[col]
			}

			fmt.Println(d.Columns, vals)
		}
	case display.KindTracker:
		for _, path := range d.Tracker.Paths {
			fmt.Println(path)
		}
	}
}
