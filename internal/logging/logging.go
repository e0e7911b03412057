// Package logging threads a single go-kit logger through the certificate
// manager, CRL generator, and signature pipeline, per SPEC_FULL.md §4.11.
package logging

import (
	"os"

	"github.com/go-kit/kit/log"
)

// NewDefault returns a logfmt logger writing to stderr with a UTC timestamp,
// the go-kit idiom used throughout the teacher's own services.
func NewDefault() log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	return log.With(logger, "ts", log.DefaultTimestampUTC)
}

// WithComponent returns logger scoped with a "component" key, so every line
// a given package emits is attributable without repeating the key at each
// call site.
func WithComponent(logger log.Logger, component string) log.Logger {
	return log.With(logger, "component", component)
}
