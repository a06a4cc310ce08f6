// Package testutil provides common utility functions for testing.
package testutil

import (
	"testing"

	"github.com/iwvelando/tax-atlas/internal/catalog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// CatalogYAML is a small catalog with one country of every rule kind.
// Flatland and Twofold are priced in FLT; the rest are in USD.
const CatalogYAML = `
countries:
  - name: Flatland
    currency: FLT
    link: https://flatland.example
    components:
      - {name: income, flat: 0.2}
  - name: Steppes
    components:
      - name: income
        brackets:
          - {upTo: 10000, rate: 0}
          - {upTo: .inf, rate: 0.5}
  - name: Haven
    kind: zero
    notice: Income is not taxed
  - name: Fog
    kind: none
  - name: Twofold
    kind: branching
    currency: FLT
    branches:
      married:
        - {name: income, flat: 0.1}
      single:
        - {name: income, flat: 0.3}
`

// NewCatalog builds the CatalogYAML catalog, failing the test on error.
func NewCatalog(tb testing.TB) *catalog.Catalog {
	tb.Helper()
	c, err := catalog.New(zap.NewNop(), []byte(CatalogYAML))
	if err != nil {
		tb.Fatalf("catalog.New() error = %v", err)
	}
	return c
}

// ObservedLogger returns a logger whose entries at or above level are
// recorded for inspection.
func ObservedLogger(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}
