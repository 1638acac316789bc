// Package migrations holds the SQL schema files, embedded so the migrate
// command ships as a single binary.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// List returns the migration file names in apply order.
func List() ([]string, error) {
	entries, err := FS.ReadDir(".")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
