// Copyright (c) 2026 The opentimestamps-client developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/slog"

	"github.com/nobodyinperson/opentimestamps-client/cache"
	"github.com/nobodyinperson/opentimestamps-client/calendar"
	"github.com/nobodyinperson/opentimestamps-client/chain"
	"github.com/nobodyinperson/opentimestamps-client/client"
	"github.com/nobodyinperson/opentimestamps-client/ots"
	"github.com/nobodyinperson/opentimestamps-client/util"
)

const (
	otsVersion = "0.1.0"
	userAgent  = "opentimestamps-client-go/" + otsVersion

	otsExtension = ".ots"
)

// stringSlice collects repeated flag values.
type stringSlice []string

func (s *stringSlice) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// commonOpts are the flags shared by every subcommand.
type commonOpts struct {
	verbose            bool
	quiet              bool
	debug              bool
	calendars          stringSlice
	whitelist          stringSlice
	noDefaultWhitelist bool
	cacheDir           string
	noCache            bool
	wait               bool
	waitInterval       int
	queryExplorer      int
	bitcoinNode        string
	bitcoinRPCUser     string
	bitcoinRPCPass     string
}

func addCommonOpts(fs *flag.FlagSet, cfg *config) *commonOpts {
	opts := &commonOpts{
		cacheDir: cfg.CacheDir,
		noCache:  cfg.NoCache,
	}
	fs.BoolVar(&opts.verbose, "v", false, "Verbose")
	fs.BoolVar(&opts.quiet, "q", false, "Quiet, warnings and errors only")
	fs.BoolVar(&opts.debug, "debug", false, "Print debug dumps")
	fs.Var(&opts.calendars, "c", "Override calendar URL (may be repeated)")
	fs.Var(&opts.whitelist, "l", "Add a calendar to the whitelist "+
		"(may be repeated)")
	fs.BoolVar(&opts.noDefaultWhitelist, "no-default-whitelist",
		cfg.NoDefaultWhitelist, "Do not load the default remote "+
			"calendar whitelist")
	fs.StringVar(&opts.cacheDir, "cache", cfg.CacheDir,
		"Location of the timestamp cache")
	fs.BoolVar(&opts.noCache, "no-cache", cfg.NoCache,
		"Disable the timestamp cache")
	fs.BoolVar(&opts.wait, "w", false, "Wait until the timestamp is "+
		"complete")
	fs.IntVar(&opts.waitInterval, "wait-interval", 30,
		"Seconds between upgrade attempts while waiting")
	fs.IntVar(&opts.queryExplorer, "query-blockstream", 1,
		"Maximum number of attestations to check against the block "+
			"explorer, 0 to disable")
	fs.StringVar(&opts.bitcoinNode, "bitcoin-node", cfg.BitcoinNode,
		"Bitcoin node RPC address for local verification")
	fs.StringVar(&opts.bitcoinRPCUser, "bitcoin-rpcuser",
		cfg.BitcoinRPCUser, "Bitcoin node RPC username")
	fs.StringVar(&opts.bitcoinRPCPass, "bitcoin-rpcpass",
		cfg.BitcoinRPCPass, "Bitcoin node RPC password")
	return opts
}

func (o *commonOpts) applyLogging() {
	switch {
	case o.verbose:
		setLogLevels(slog.LevelDebug)
	case o.quiet:
		setLogLevels(slog.LevelWarn)
	default:
		setLogLevels(slog.LevelInfo)
	}
}

// buildWhitelist assembles the calendar whitelist from defaults, config
// file entries and command line additions.
func buildWhitelist(cfg *config, opts *commonOpts) (*calendar.Whitelist, error) {
	wl := calendar.NewWhitelist()
	if !opts.noDefaultWhitelist {
		wl = calendar.NewDefaultWhitelist()
	}
	for _, entry := range cfg.Whitelist {
		if err := wl.Add(entry); err != nil {
			return nil, err
		}
	}
	for _, entry := range opts.whitelist {
		if err := wl.Add(entry); err != nil {
			return nil, err
		}
	}
	return wl, nil
}

// openCache opens the timestamp cache unless disabled.  A cache that fails
// to open is a warning, not a fatal error; everything works without one.
func openCache(opts *commonOpts) *cache.Cache {
	if opts.noCache || opts.cacheDir == "" {
		return nil
	}
	c, err := cache.New(opts.cacheDir)
	if err != nil {
		log.Warnf("Could not open timestamp cache %v: %v",
			opts.cacheDir, err)
		return nil
	}
	return c
}

func makeCalendars(urls []string) []client.Calendar {
	cals := make([]client.Calendar, 0, len(urls))
	for _, url := range urls {
		cals = append(cals, calendar.New(url, userAgent, nil))
	}
	return cals
}

func newHTTPCalendar(url string) client.Calendar {
	return calendar.New(url, userAgent, nil)
}

func upgradeConfig(cfg *config, opts *commonOpts, c *cache.Cache) (client.UpgradeConfig, error) {
	wl, err := buildWhitelist(cfg, opts)
	if err != nil {
		return client.UpgradeConfig{}, err
	}
	ucfg := client.UpgradeConfig{
		Calendars:    makeCalendars(opts.calendars),
		Whitelist:    wl,
		NewCalendar:  newHTTPCalendar,
		Wait:         opts.wait,
		WaitInterval: time.Duration(opts.waitInterval) * time.Second,
	}
	if c != nil {
		ucfg.Cache = c
	}
	return ucfg, nil
}

// localVerifier connects to the configured bitcoind, if any.
func localVerifier(opts *commonOpts) chain.Verifier {
	if opts.bitcoinNode == "" {
		return nil
	}
	b, err := chain.NewBitcoind(opts.bitcoinNode, opts.bitcoinRPCUser,
		opts.bitcoinRPCPass)
	if err != nil {
		log.Warnf("Could not connect to bitcoin node %v: %v",
			opts.bitcoinNode, err)
		return nil
	}
	return b
}

func readProofFile(filename string) (*ots.DetachedFile, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d, err := ots.DeserializeFile(f)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp file %v: %w",
			filename, err)
	}
	return d, nil
}

// rewriteProofFile backs the proof file up to its .bak companion and
// writes the new proof in its place.
func rewriteProofFile(filename string, d *ots.DetachedFile) error {
	backup, err := util.BackupFile(filename)
	if err != nil {
		return err
	}
	log.Debugf("Renamed existing timestamp to %v", backup)

	return util.WriteFileExcl(filename, d.Serialize)
}

func stampCommand(cfg *config, args []string) error {
	fs := flag.NewFlagSet("stamp", flag.ExitOnError)
	opts := addCommonOpts(fs, cfg)
	m := fs.Int("m", 2, "Number of calendar responses required")
	timeout := fs.Int("timeout", 5, "Per-calendar timeout in seconds")
	fs.Parse(args)
	opts.applyLogging()

	files := fs.Args()
	if len(files) == 0 {
		return fmt.Errorf("nothing to do")
	}

	detached := make([]*ots.DetachedFile, 0, len(files))
	for _, filename := range files {
		if !util.IsFile(filename) {
			return fmt.Errorf("%v is not a valid file", filename)
		}
		digest, err := util.DigestFile(ots.NewOpSHA256(), filename)
		if err != nil {
			return fmt.Errorf("could not read %v: %w", filename,
				err)
		}
		log.Debugf("%x %v", digest, filename)
		detached = append(detached,
			ots.NewDetachedFile(ots.NewOpSHA256(), digest))
	}

	urls := []string(opts.calendars)
	if len(urls) == 0 {
		urls = calendar.DefaultAggregators
	}

	root, err := client.Stamp(detached, makeCalendars(urls), *m,
		time.Duration(*timeout)*time.Second)
	if err != nil {
		return fmt.Errorf("failed to create timestamp: %w", err)
	}

	if opts.wait {
		c := openCache(opts)
		if c != nil {
			defer c.Close()
		}
		ucfg, err := upgradeConfig(cfg, opts, c)
		if err != nil {
			return err
		}
		client.Upgrade(root, ucfg)
		log.Infof("Timestamp complete; saving")
	}

	for i, filename := range files {
		outName := filename + otsExtension
		err := util.WriteFileExcl(outName, detached[i].Serialize)
		if err != nil {
			return fmt.Errorf("failed to create timestamp %v: %w",
				outName, err)
		}
	}

	return nil
}

func upgradeCommand(cfg *config, args []string) error {
	fs := flag.NewFlagSet("upgrade", flag.ExitOnError)
	opts := addCommonOpts(fs, cfg)
	dryRun := fs.Bool("n", false, "Perform a trial upgrade without "+
		"modifying the timestamp file")
	fs.Parse(args)
	opts.applyLogging()

	if len(fs.Args()) == 0 {
		return fmt.Errorf("nothing to do")
	}

	c := openCache(opts)
	if c != nil {
		defer c.Close()
	}
	ucfg, err := upgradeConfig(cfg, opts, c)
	if err != nil {
		return err
	}

	var incomplete []string
	for _, filename := range fs.Args() {
		log.Debugf("Upgrading %v", filename)

		d, err := readProofFile(filename)
		if err != nil {
			return err
		}

		changed := client.Upgrade(d.Timestamp, ucfg)

		if changed && !*dryRun {
			if err := rewriteProofFile(filename, d); err != nil {
				return err
			}
		}

		if d.Timestamp.IsComplete() {
			log.Infof("Success! %v complete", filename)
		} else {
			log.Warnf("Failed! %v not complete", filename)
			incomplete = append(incomplete, filename)
		}
	}

	if len(incomplete) > 0 {
		return fmt.Errorf("not complete: %v",
			strings.Join(incomplete, ", "))
	}
	return nil
}

// parseDigestArg decodes a digest given on the command line.  Digests for
// sha256 proofs must be in the canonical 64 hex character form.
func parseDigestArg(s string, op ots.HashOp) ([]byte, error) {
	if op.Tag() == ots.OpTagSHA256 && !calendar.RegexpSHA256.MatchString(s) {
		return nil, fmt.Errorf("digest must be 64 hexadecimal " +
			"characters")
	}
	digest, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("digest must be hexadecimal")
	}
	return digest, nil
}

func verifyCommand(cfg *config, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	opts := addCommonOpts(fs, cfg)
	target := fs.String("f", "", "Verify the given file against the "+
		"timestamp")
	hexDigest := fs.String("d", "", "Verify the given hex digest "+
		"against the timestamp")
	fs.Parse(args)
	opts.applyLogging()

	if *target != "" && *hexDigest != "" {
		return fmt.Errorf("-f and -d cannot be used simultaneously")
	}
	if len(fs.Args()) != 1 {
		return fmt.Errorf("verify takes a single timestamp file")
	}
	proofName := fs.Arg(0)

	d, err := readProofFile(proofName)
	if err != nil {
		return err
	}

	if *hexDigest != "" {
		digest, err := parseDigestArg(*hexDigest, d.FileHashOp)
		if err != nil {
			return err
		}
		if !bytes.Equal(digest, d.FileDigest()) {
			return fmt.Errorf("digest provided does not match "+
				"digest in timestamp, %x (%v)", d.FileDigest(),
				d.FileHashOp)
		}
	} else {
		targetName := *target
		if targetName == "" {
			if !strings.HasSuffix(proofName, otsExtension) {
				return fmt.Errorf("timestamp filename does "+
					"not end in %v", otsExtension)
			}
			targetName = strings.TrimSuffix(proofName, otsExtension)
			log.Infof("Assuming target filename is %v", targetName)
		}

		log.Debugf("Hashing file, algorithm %v", d.FileHashOp)
		digest, err := util.DigestFile(d.FileHashOp, targetName)
		if err != nil {
			return fmt.Errorf("could not open target: %w", err)
		}
		log.Debugf("Got digest %x", digest)

		if !bytes.Equal(digest, d.FileDigest()) {
			log.Debugf("Expected digest %x", d.FileDigest())
			return fmt.Errorf("file does not match original")
		}
	}

	c := openCache(opts)
	if c != nil {
		defer c.Close()
	}
	ucfg, err := upgradeConfig(cfg, opts, c)
	if err != nil {
		return err
	}
	// Pending attestations resolve through the whitelist here, never
	// through an override list.
	ucfg.Calendars = nil
	client.Upgrade(d.Timestamp, ucfg)

	vcfg := client.VerifyConfig{
		Bitcoin: localVerifier(opts),
	}
	if opts.queryExplorer > 0 {
		vcfg.Explorer = chain.NewExplorer(cfg.Explorer, nil)
		vcfg.MaxExplorerQueries = opts.queryExplorer
	}

	if _, ok := client.Verify(d.Timestamp, vcfg); !ok {
		return fmt.Errorf("could not verify %v", proofName)
	}
	return nil
}

func infoCommand(cfg *config, args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	opts := addCommonOpts(fs, cfg)
	fs.Parse(args)
	opts.applyLogging()

	if len(fs.Args()) != 1 {
		return fmt.Errorf("info takes a single timestamp file")
	}

	d, err := readProofFile(fs.Arg(0))
	if err != nil {
		return err
	}

	if opts.debug {
		fmt.Print(spew.Sdump(d))
	}

	fmt.Printf("File %v hash: %x\n", d.FileHashOp, d.FileDigest())
	fmt.Printf("Timestamp:\n%v", d.Timestamp.Dump())
	return nil
}

// parsePruneSpecs translates the command line verify/discard specs into
// engine terms.
func parsePruneSpecs(verifySpecs, discardSpecs []string, noVerify bool) ([]ots.Kind, client.DiscardSet, error) {
	var verify []ots.Kind
	for _, s := range verifySpecs {
		switch s {
		case "btc":
			verify = append(verify, ots.KindBitcoin)
		default:
			return nil, client.DiscardSet{}, fmt.Errorf("invalid "+
				"verify choice %q (choose from 'btc')", s)
		}
	}
	if len(verify) == 0 && !noVerify {
		verify = []ots.Kind{ots.KindBitcoin}
	}

	discard := client.NewDiscardSet()
	if len(discardSpecs) == 0 {
		discard.Kinds[ots.KindPending] = true
	}
	for _, s := range discardSpecs {
		switch {
		case s == "btc":
			discard.Kinds[ots.KindBitcoin] = true
		case s == "ltc":
			discard.Kinds[ots.KindLitecoin] = true
		case s == "unknown":
			discard.Kinds[ots.KindUnknown] = true
		case s == "pending:*":
			discard.Kinds[ots.KindPending] = true
		case strings.HasPrefix(s, "pending:"):
			discard.PendingURIs[strings.TrimPrefix(s, "pending:")] = true
		default:
			return nil, client.DiscardSet{}, fmt.Errorf("invalid "+
				"discard choice %q (choose from 'btc', 'ltc', "+
				"'unknown', 'pending:*', 'pending:uri')", s)
		}
	}

	return verify, discard, nil
}

func pruneCommand(cfg *config, args []string) error {
	fs := flag.NewFlagSet("prune", flag.ExitOnError)
	opts := addCommonOpts(fs, cfg)
	var verifySpecs, discardSpecs stringSlice
	fs.Var(&verifySpecs, "verify", "Attestation kind to verify before "+
		"pruning (may be repeated)")
	noVerify := fs.Bool("no-verify", false, "Skip attestation "+
		"verification")
	fs.Var(&discardSpecs, "discard", "Attestation spec to discard "+
		"(may be repeated)")
	fs.Parse(args)
	opts.applyLogging()

	if len(fs.Args()) != 1 {
		return fmt.Errorf("prune takes a single timestamp file")
	}
	proofName := fs.Arg(0)

	verify, discard, err := parsePruneSpecs(verifySpecs, discardSpecs,
		*noVerify)
	if err != nil {
		return err
	}

	d, err := readProofFile(proofName)
	if err != nil {
		return err
	}

	verifier := localVerifier(opts)
	if verifier == nil && opts.queryExplorer > 0 {
		verifier = chain.NewExplorer(cfg.Explorer, nil)
	}

	result, err := client.Prune(d.Timestamp, verify, discard, verifier)
	if err != nil {
		return err
	}
	if result.Prunable {
		return fmt.Errorf("failed: all attestations would be discarded")
	}
	if !result.Changed {
		return fmt.Errorf("failed: nothing to discard")
	}

	if err := rewriteProofFile(proofName, d); err != nil {
		return err
	}

	log.Infof("Success! Timestamp pruned")
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, "ots v%v - create and verify blockchain "+
		"anchored timestamp proofs\n\n", otsVersion)
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  ots stamp [flags] FILE...\n")
	fmt.Fprintf(os.Stderr, "  ots upgrade [flags] FILE.ots...\n")
	fmt.Fprintf(os.Stderr, "  ots verify [flags] FILE.ots\n")
	fmt.Fprintf(os.Stderr, "  ots info [flags] FILE.ots\n")
	fmt.Fprintf(os.Stderr, "  ots prune [flags] FILE.ots\n\n")
	fmt.Fprintf(os.Stderr, "Run 'ots COMMAND -h' for command flags.\n")
}

func _main() error {
	if len(os.Args) < 2 {
		usage()
		return fmt.Errorf("no command given")
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("could not load configuration file: %w", err)
	}
	if cfg.LogFile != "" {
		if err := initLogRotator(cfg.LogFile); err != nil {
			return err
		}
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	command, args := os.Args[1], os.Args[2:]
	switch command {
	case "stamp":
		return stampCommand(cfg, args)
	case "upgrade":
		return upgradeCommand(cfg, args)
	case "verify":
		return verifyCommand(cfg, args)
	case "info":
		return infoCommand(cfg, args)
	case "prune":
		return pruneCommand(cfg, args)
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func main() {
	err := _main()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
