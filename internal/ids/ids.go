package ids

import "github.com/segmentio/ksuid"

// New returns a sortable, URL-safe identifier.
func New() string {
	return ksuid.New().String()
}

// Valid reports whether s is a well-formed identifier produced by New.
func Valid(s string) bool {
	_, err := ksuid.Parse(s)
	return err == nil
}
