// Package enums holds the string-backed value sets stored in the database
// and carried on the wire.
package enums

import (
	"fmt"
	"slices"
)

type stringEnum interface {
	~string
}

func parse[T stringEnum](kind, value string, known []T) (T, error) {
	if slices.Contains(known, T(value)) {
		return T(value), nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, value)
}
