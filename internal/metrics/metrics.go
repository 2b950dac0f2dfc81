// Package metrics configures the process-wide VictoriaMetrics push
// client used by every counter/histogram registered across the
// orchestrator's packages. Grounded on internal/metrics/metrics.go,
// unchanged beyond the import path.
package metrics

import (
	"log"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/suncoastpay/orchestrator/internal/config"
)

// Setup starts pushing registered metrics to cfg.URL, a no-op when URL
// is unset (local development).
func Setup(cfg config.Metrics) {
	if cfg.URL == "" {
		return
	}

	err := metrics.InitPush(cfg.URL, time.Duration(cfg.IntervalMs)*time.Millisecond, cfg.CommonLabels, true)
	if err != nil {
		log.Printf("Error initializing metrics push: %v", err)
	}

}
