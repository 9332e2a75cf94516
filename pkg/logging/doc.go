// Package logging builds the slog loggers used across mockfleet.
//
// Create a logger once in the composition root and hand it to components
// through their WithLogger options:
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.ParseLevel("debug"),
//	    Format: logging.FormatJSON,
//	})
//	logger.Info("service started", "service", "users", "port", 8001)
//
// Components that receive no logger fall back to logging.Nop().
package logging
