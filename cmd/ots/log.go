// Copyright (c) 2026 The opentimestamps-client developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"

	"github.com/nobodyinperson/opentimestamps-client/cache"
	"github.com/nobodyinperson/opentimestamps-client/calendar"
	"github.com/nobodyinperson/opentimestamps-client/chain"
	"github.com/nobodyinperson/opentimestamps-client/client"
)

// logWriter implements an io.Writer that outputs to standard error and,
// when rotation is configured, the log file.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stderr.Write(p)
	if logRotator != nil {
		logRotator.Write(p)
	}
	return len(p), nil
}

var (
	backendLog = slog.NewBackend(logWriter{})

	// logRotator is one of the logging outputs.  It should be closed on
	// application shutdown.
	logRotator *rotator.Rotator

	log     = backendLog.Logger("OTS")
	calLog  = backendLog.Logger("CALR")
	cchLog  = backendLog.Logger("CACH")
	chnLog  = backendLog.Logger("CHIN")
	clntLog = backendLog.Logger("CLNT")
)

func init() {
	calendar.UseLogger(calLog)
	cache.UseLogger(cchLog)
	chain.UseLogger(chnLog)
	client.UseLogger(clntLog)
}

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]slog.Logger{
	"OTS":  log,
	"CALR": calLog,
	"CACH": cchLog,
	"CHIN": chnLog,
	"CLNT": clntLog,
}

// initLogRotator initializes the logging rotator to write logs to logFile.
// It must be called before the package-global log rotator variable is used.
func initLogRotator(logFile string) error {
	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %v", err)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %v", err)
	}
	logRotator = r
	return nil
}

// setLogLevels sets the log level for all subsystem loggers.
func setLogLevels(level slog.Level) {
	for _, logger := range subsystemLoggers {
		logger.SetLevel(level)
	}
}
