// Copyright (c) 2026 The opentimestamps-client developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/decred/dcrd/dcrutil/v2"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "ots.conf"
	defaultCacheDirname   = "cache"
	defaultLogFilename    = "ots.log"
)

var (
	defaultHomeDir    = dcrutil.AppDataDir("ots", false)
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultCacheDir   = filepath.Join(defaultHomeDir, defaultCacheDirname)
	defaultLogFile    = filepath.Join(defaultHomeDir, defaultLogFilename)
)

// config defines the configuration options for ots.
//
// See loadConfig for details on the configuration load process.
type config struct {
	Whitelist          []string `long:"whitelist" description:"Additional whitelisted calendar URL (may be repeated)"`
	NoDefaultWhitelist bool     `long:"nodefaultwhitelist" description:"Do not load the default remote calendar whitelist"`
	CacheDir           string   `long:"cachedir" description:"Location of the timestamp cache"`
	NoCache            bool     `long:"nocache" description:"Disable the timestamp cache"`
	BitcoinNode        string   `long:"bitcoinnode" description:"Bitcoin node RPC address for local verification"`
	BitcoinRPCUser     string   `long:"bitcoinrpcuser" description:"Bitcoin node RPC username"`
	BitcoinRPCPass     string   `long:"bitcoinrpcpass" description:"Bitcoin node RPC password"`
	Explorer           string   `long:"explorer" description:"Block explorer API base URL"`
	LogFile            string   `long:"logfile" description:"Log to the given file in addition to standard error"`
}

// loadConfig initializes the config with defaults and overrides them from
// the config file, if one exists.  Command line flags are applied on top
// by the individual subcommands.
func loadConfig() (*config, error) {
	// An empty logfile= entry in the config file disables file logging.
	cfg := config{
		CacheDir: defaultCacheDir,
		LogFile:  defaultLogFile,
	}

	err := flags.IniParse(defaultConfigFile, &cfg)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	if err := initHomeDirectory(defaultHomeDir); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// initHomeDirectory creates the home directory if it doesn't already exist.
func initHomeDirectory(homeDir string) error {
	err := os.MkdirAll(homeDir, 0700)
	if err != nil {
		// Show a nicer error message if it's because a symlink is
		// linked to a directory that does not exist (probably because
		// it's not mounted).
		if e, ok := err.(*os.PathError); ok && os.IsExist(err) {
			if link, lerr := os.Readlink(e.Path); lerr == nil {
				return fmt.Errorf("is symlink %s -> %s mounted?",
					e.Path, link)
			}
		}
		return fmt.Errorf("failed to create home directory: %v", err)
	}

	return nil
}
