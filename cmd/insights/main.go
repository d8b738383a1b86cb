// Command insights runs the analytics engine: event ingest, friction
// detection, journey and cohort analytics, and A/B test evaluation.
package main

import (
	"go.uber.org/fx"

	"github.com/tablewise/insights/internal/infrastructure/container"
)

func main() {
	fx.New(container.Module).Run()
}
