package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where the SQL files live in the source tree. The binaries
// carry their own copy, see Migrations.
const DefaultDir = "pkg/migrate/migrations"

const (
	CommandUp      = "up"
	CommandDown    = "down"
	CommandRedo    = "redo"
	CommandStatus  = "status"
	CommandVersion = "version"
)

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations returns the schema baked into the binary.
func Migrations() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Source picks the migration set for dir. An empty dir means the embedded
// set; anything else is read from disk so new files can be tried before a
// rebuild.
func Source(dir string) fs.FS {
	if dir == "" {
		return Migrations()
	}
	return os.DirFS(dir)
}

// Step is one line of a goose run: a migration that was applied, rolled
// back, or (for status) inspected.
type Step struct {
	Version  int64
	Path     string
	Action   string
	Duration time.Duration
}

// Apply runs command against db. target is only read by CommandVersion,
// which moves the schema up or down until it sits at that version.
// Migrations target Postgres; sqlite databases get their schema from the
// models instead, see MaybeRunDev.
func Apply(ctx context.Context, db *sql.DB, fsys fs.FS, command string, target int64) ([]Step, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}

	switch command {
	case CommandUp:
		results, err := provider.Up(ctx)
		return fromResults(results), wrapGoose(command, err)
	case CommandDown:
		result, err := provider.Down(ctx)
		return fromResults([]*goose.MigrationResult{result}), wrapGoose(command, err)
	case CommandRedo:
		down, err := provider.Down(ctx)
		if err != nil {
			return fromResults([]*goose.MigrationResult{down}), wrapGoose(command, err)
		}
		up, err := provider.UpByOne(ctx)
		return fromResults([]*goose.MigrationResult{down, up}), wrapGoose(command, err)
	case CommandStatus:
		statuses, err := provider.Status(ctx)
		if err != nil {
			return nil, wrapGoose(command, err)
		}
		steps := make([]Step, 0, len(statuses))
		for _, st := range statuses {
			if st == nil || st.Source == nil {
				continue
			}
			steps = append(steps, Step{Version: st.Source.Version, Path: st.Source.Path, Action: string(st.State)})
		}
		return steps, nil
	case CommandVersion:
		return toVersion(ctx, provider, target)
	default:
		return nil, fmt.Errorf("unknown migrate command %q", command)
	}
}

func toVersion(ctx context.Context, provider *goose.Provider, target int64) ([]Step, error) {
	if target <= 0 {
		return nil, errors.New("target version is required")
	}
	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("get db version: %w", err)
	}
	switch {
	case current < target:
		results, err := provider.UpTo(ctx, target)
		return fromResults(results), wrapGoose(fmt.Sprintf("up-to %d", target), err)
	case current > target:
		results, err := provider.DownTo(ctx, target)
		return fromResults(results), wrapGoose(fmt.Sprintf("down-to %d", target), err)
	default:
		return nil, nil
	}
}

func fromResults(results []*goose.MigrationResult) []Step {
	steps := make([]Step, 0, len(results))
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		steps = append(steps, Step{
			Version:  res.Source.Version,
			Path:     res.Source.Path,
			Action:   res.Direction,
			Duration: res.Duration,
		})
	}
	return steps
}

func wrapGoose(command string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("goose %s: %w", command, err)
}
