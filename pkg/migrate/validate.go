package migrate

import (
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strings"

	"go.uber.org/multierr"
)

var migrationNameRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

var requiredAnnotations = []string{"-- +goose Up", "-- +goose Down"}

// Validate checks every .sql file at the root of fsys: the name must be
// <14-digit version>_<snake_name>.sql, versions must be unique and both
// goose sections must be present. All problems are reported together.
func Validate(fsys fs.FS) error {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	if len(names) == 0 {
		return fmt.Errorf("no migrations found")
	}

	var problems error
	versions := make(map[string]string, len(names))
	for _, name := range names {
		match := migrationNameRe.FindStringSubmatch(path.Base(name))
		if match == nil {
			problems = multierr.Append(problems, fmt.Errorf("%s: expected YYYYMMDDHHMMSS_name.sql", name))
			continue
		}
		if prev, dup := versions[match[1]]; dup {
			problems = multierr.Append(problems, fmt.Errorf("%s: version %s already used by %s", name, match[1], prev))
		}
		versions[match[1]] = name

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			problems = multierr.Append(problems, fmt.Errorf("%s: %w", name, err))
			continue
		}
		for _, annotation := range requiredAnnotations {
			if !strings.Contains(string(body), annotation) {
				problems = multierr.Append(problems, fmt.Errorf("%s: missing %q", name, annotation))
			}
		}
	}
	return problems
}
