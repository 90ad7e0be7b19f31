package app

import (
	"github.com/coursegraph/catalog-backend/internal/platform/logger"
	"github.com/coursegraph/catalog-backend/internal/utils"
)

// Config carries the knobs the wiring layer itself consumes. Component-level
// tuning (search precisions, index lifecycle thresholds, client timeouts)
// lives with the component constructors that read it.
type Config struct {
	WorkerConcurrency int
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		WorkerConcurrency: utils.GetEnvAsInt("JOB_WORKER_CONCURRENCY", 2, log),
	}
}
