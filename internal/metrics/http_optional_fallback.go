//go:build !prometheus

package metrics

import (
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
)

// OptionalHTTPHandler is nil unless the binary is built with -tags prometheus.
func OptionalHTTPHandler(_ *prom.Registry) http.Handler { return nil }
