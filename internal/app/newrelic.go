package app

import (
	"log"

	"github.com/newrelic/go-agent/v3/newrelic"

	"carrental/internal/config"
)

// NewNewRelicApp starts the New Relic agent. It returns nil when the agent is
// disabled or fails to start; the service runs uninstrumented in that case.
func NewNewRelicApp(cfg config.NewRelicConfig) *newrelic.Application {
	if !cfg.Enabled || cfg.LicenseKey == "" {
		return nil
	}

	nrApp, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
	)
	if err != nil {
		log.Printf("failed to initialize New Relic: %v", err)
		return nil
	}

	log.Printf("New Relic enabled: app=%s (with DB instrumentation)", cfg.AppName)
	return nrApp
}
