package logger_test

import (
	"errors"

	"github.com/wonny/urdash/pkg/config"
	"github.com/wonny/urdash/pkg/logger"
)

// Example_withFields demonstrates structured logging with fields
func Example_withFields() {
	cfg := &config.Config{
		Env:       "production",
		LogLevel:  "info",
		LogFormat: "json",
	}

	log := logger.New(cfg).Component("location")

	log.WithFields(map[string]interface{}{
		"countries": 112,
		"timestamp": 1760000000000,
	}).Info("Inserted snapshot")

	log.WithError(errors.New("database is locked")).Error("Hourly update failed")
}
