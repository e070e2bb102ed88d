package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jessevdk/go-flags"

	"github.com/matrixbuilderops/solominerd/chaincfg"
	"github.com/matrixbuilderops/solominerd/utils"
)

const (
	defaultConfigFilename = "minerworker.conf"
	defaultLogLevel       = "info"
)

var (
	minerHomeDir    = utils.AppDataDir("solominerd", false)
	defaultCoordDir = filepath.Join(minerHomeDir, "coordination")
	netParams       = &chaincfg.MainNetParams
)

// config defines the configuration options for a standalone mining worker
// process.
//
// See loadConfig for details on the configuration load process.
type config struct {
	ConfigFile     string `short:"C" long:"configfile" description:"Path to configuration file"`
	CoordDir       string `short:"d" long:"coorddir" description:"Coordination directory shared with the mining daemon"`
	WorkerID       string `short:"w" long:"workerid" description:"Worker identity; generated when empty"`
	BatchSize      uint32 `long:"batchsize" description:"Nonce attempts per search batch"`
	DebugLevel     string `long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`
	ShowVersion    bool   `short:"V" long:"version" description:"Display version information and exit"`
	SimNet         bool   `long:"simnet" description:"Use the simulation test network"`
	TestNet        bool   `long:"testnet" description:"Use the test network"`
	RegressionTest bool   `long:"regtest" description:"Use the regression test network"`
	WorkingDir     string `long:"workingdir" description:"Working directory"`
}

// cleanAndExpandPath expands environement variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(minerHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but they variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

func loadConfig() (*config, []string, error) {
	// Default config.
	cfg := config{
		ConfigFile: defaultConfigFilename,
		CoordDir:   defaultCoordDir,
		DebugLevel: defaultLogLevel,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.  Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			return nil, nil, err
		}
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show options", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version())
		os.Exit(0)
	}

	if preCfg.WorkingDir != "" {
		err := os.Chdir(preCfg.WorkingDir)
		if err != nil {
			return nil, nil, err
		}
	}

	// Load additional config from file.
	parser := flags.NewParser(&cfg, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
	if err != nil {
		if _, ok := err.(*os.PathError); !ok {
			fmt.Fprintf(os.Stderr, "Error parsing config file: %v\n",
				err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, nil, err
		}
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return nil, nil, err
	}

	// The worker must mine against the same network as the daemon that
	// publishes its templates.
	numNets := 0
	if cfg.TestNet {
		numNets++
		netParams = &chaincfg.TestNet3Params
	}
	if cfg.SimNet {
		numNets++
		netParams = &chaincfg.SimNetParams
	}
	if cfg.RegressionTest {
		numNets++
		netParams = &chaincfg.RegNetParams
	}
	if numNets > 1 {
		str := "%s: the testnet, simnet and regtest params can't be used together"
		err := fmt.Errorf(str, "loadConfig")
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}
	chaincfg.ActiveNetParams = netParams

	cfg.CoordDir = cleanAndExpandPath(cfg.CoordDir)

	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	return &cfg, remainingArgs, nil
}
