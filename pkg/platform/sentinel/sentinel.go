// Package sentinel holds errors for infrastructure facts. Stores return them,
// optionally wrapped, and callers test them with errors.Is.
package sentinel

import "errors"

// ErrNotFound means the entry does not exist or has expired.
var ErrNotFound = errors.New("not found")
