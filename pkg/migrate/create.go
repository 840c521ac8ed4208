package migrate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"
)

const versionLayout = "20060102150405"

var slugStripRe = regexp.MustCompile(`[^a-z0-9]+`)

var migrationTemplate = template.Must(template.New("migration").Parse(`-- +goose Up
-- +goose StatementBegin
-- {{.Slug}}
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- revert {{.Slug}}
-- +goose StatementEnd
`))

// Slug turns a free form description into the snake_case tail of a
// migration filename.
func Slug(name string) string {
	lowered := strings.ToLower(strings.TrimSpace(name))
	return strings.Trim(slugStripRe.ReplaceAllString(lowered, "_"), "_")
}

// CreateSQLMigration writes an empty goose migration named
// <dir>/<UTC version>_<slug>.sql and returns its path.
func CreateSQLMigration(dir, name string) (string, error) {
	if dir == "" {
		return "", errors.New("dir is required")
	}
	slug := Slug(name)
	if slug == "" {
		return "", fmt.Errorf("name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	target := filepath.Join(dir, time.Now().UTC().Format(versionLayout)+"_"+slug+".sql")
	file, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration: %w", err)
	}
	defer file.Close()

	if err := migrationTemplate.Execute(file, struct{ Slug string }{slug}); err != nil {
		return "", fmt.Errorf("write migration %s: %w", target, err)
	}
	return target, nil
}
