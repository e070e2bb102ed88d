package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"

	flags "github.com/jessevdk/go-flags"

	"github.com/matrixbuilderops/solominerd/chaincfg"
	"github.com/matrixbuilderops/solominerd/constdef"
	"github.com/matrixbuilderops/solominerd/utils"
)

const (
	defaultConfigFilename = "solominerd.conf"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "solominerd.log"
	defaultCoordDirname   = "coordination"
	defaultDbType         = "mysql"
	defaultLogLevel       = "info"
	defaultDbAddress      = "127.0.0.1:3306"
	defaultDatabaseName   = "solominerd"
)

var (
	defaultHomeDir  = utils.AppDataDir("solominerd", false)
	defaultCAFile   = filepath.Join(defaultHomeDir, "rpc.cert")
	localConfigFile = defaultConfigFilename
	knownDbTypes    = []string{"mysql"}
	defaultLogDir   = filepath.Join(defaultHomeDir, defaultLogDirname)
	defaultCoordDir = filepath.Join(defaultHomeDir, defaultCoordDirname)
	netParams       = &chaincfg.MainNetParams
)

// config defines the configuration options for the miner daemon.
//
// See loadConfig for details on the configuration load process.
type config struct {
	AppDataDir *utils.ExplicitString `short:"A" long:"appdata" description:"Application data directory for config, logs and the coordination tree"`
	ConfigFile string                `short:"C" long:"configfile" description:"Path to configuration file"`
	CoordDir   string                `long:"coorddir" description:"Root of the shared filesystem coordination directory (default: <appdata>/coordination)"`
	DebugLevel string                `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	LogDir     string                `long:"logdir" description:"Directory to log output."`
	WorkingDir string                `long:"workingdir" description:"Working directory"`

	RPCConnect            string                `short:"c" long:"rpcconnect" description:"Hostname/IP and port of the chain RPC server to connect to"`
	RPCUser               string                `short:"u" long:"rpcuser" description:"Username for RPC connections with the chain server"`
	RPCPass               string                `short:"P" long:"rpcpass" default-mask:"-" description:"Password for RPC connections with the chain server"`
	CAFile                *utils.ExplicitString `long:"cafile" description:"File containing root certificates to authenticate a TLS connection with the chain server"`
	DisableClientTLS      bool                  `long:"noclienttls" description:"Disable TLS for the connection with the chain server"`
	DisableConnectToChain bool                  `long:"noconnect" description:"Do not connect to a chain server; mine from the cached or synthetic template"`
	Proxy                 string                `long:"proxy" description:"Connect via SOCKS5 proxy (eg. 127.0.0.1:9050)"`
	ProxyUser             string                `long:"proxyuser" description:"Username for proxy server"`
	ProxyPass             string                `long:"proxypass" default-mask:"-" description:"Password for proxy server"`

	UseDB               bool   `long:"usedb" description:"Record proofs, worker status and errors into the database ledger"`
	DbType              string `long:"dbtype" description:"Database backend to use for the ledger"`
	DbUsername          string `long:"dbusername" description:"username which is used to connect with database"`
	DbPassword          string `long:"dbpassword" default-mask:"-" description:"password which is used to connect with database"`
	DbAddress           string `long:"dbaddress" description:"ip address and port of database (default: 127.0.0.1:3306)"`
	DbName              string `long:"dbname" description:"name of the ledger database (default: solominerd)"`
	DisableAutoCreateDB bool   `long:"noautocreatedb" description:"Disable creating database and tables automatically"`

	WorkerNum         int      `long:"workernum" description:"Number of co-located mining workers to start (default: 1)"`
	BatchSize         uint32   `long:"batchsize" description:"Number of nonces each worker tries between command polls"`
	ExternalWorkerIDs []string `long:"externalworker" description:"Provision a coordination folder for an external worker process with the given id"`

	ProfilePort    string `long:"profileport" description:"Enable HTTP profiling on given port -- NOTE port must be between 1024 and 65536"`
	RegressionTest bool   `long:"regtest" description:"Use the regression test network"`
	ShowVersion    bool   `short:"V" long:"version" description:"Display version information and exit"`
	SimNet         bool   `long:"simnet" description:"Use the simulation test network"`
	TestNet        bool   `long:"testnet" description:"Use the test network"`
}

// newConfigParser returns a new command line flags parser.
func newConfigParser(cfg *config, options flags.Options) *flags.Parser {
	parser := flags.NewParser(cfg, options)
	return parser
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(defaultHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// supportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func supportedSubsystems() []string {
	// Convert the subsystemLoggers map keys to a slice.
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}

	// Sort the subsystems for stable display.
	sort.Strings(subsystems)
	return subsystems
}

// fileExists reports whether the named file or directory exists.
func fileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace":
		fallthrough
	case "debug":
		fallthrough
	case "info":
		fallthrough
	case "warn":
		fallthrough
	case "error":
		fallthrough
	case "critical":
		return true
	}
	return false
}

// validDbType returns whether or not dbType is a supported database type.
func validDbType(dbType string) bool {
	for _, knownType := range knownDbTypes {
		if dbType == knownType {
			return true
		}
	}

	return false
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		// Validate debug log level.
		if !validLogLevel(debugLevel) {
			str := "The specified debug level [%v] is invalid"
			return fmt.Errorf(str, debugLevel)
		}

		// Change the logging level for all subsystems.
		setLogLevels(debugLevel)

		return nil
	}

	// Split the specified string into subsystem/level pairs while detecting
	// issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			str := "The specified debug level contains an invalid " +
				"subsystem/level pair [%v]"
			return fmt.Errorf(str, logLevelPair)
		}

		// Extract the specified subsystem and log level.
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		// Validate subsystem.
		if _, exists := subsystemLoggers[subsysID]; !exists {
			str := "The specified subsystem [%v] is invalid -- " +
				"supported subsytems %v"
			return fmt.Errorf(str, subsysID, supportedSubsystems())
		}

		// Validate log level.
		if !validLogLevel(logLevel) {
			str := "The specified debug level [%v] is invalid"
			return fmt.Errorf(str, logLevel)
		}

		setLogLevel(subsysID, logLevel)
	}

	return nil
}

// normalizeAddress returns addr with the passed default port appended if
// there is not already a port specified.
func normalizeAddress(addr, defaultPort string) string {
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		return net.JoinHostPort(addr, defaultPort)
	}
	return addr
}

// loadConfig initializes and parses the config using a config file and
// command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
func loadConfig() (*config, []string, error) {
	cfg := config{
		ConfigFile: localConfigFile,
		CAFile:     utils.NewExplicitString(""),
		AppDataDir: utils.NewExplicitString(defaultHomeDir),
		DebugLevel: defaultLogLevel,
		LogDir:     defaultLogDir,
		CoordDir:   defaultCoordDir,
		DbType:     defaultDbType,
		DbAddress:  defaultDbAddress,
		DbName:     defaultDatabaseName,
		WorkerNum:  constdef.DefaultWorkerNum,
		BatchSize:  constdef.DefaultBatchSize,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.  Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := cfg
	preParser := newConfigParser(&preCfg, flags.HelpFlag)
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
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
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

	// Load additional config from file when one is present.
	var configFileError error
	parser := newConfigParser(&cfg, flags.Default)
	if fileExists(preCfg.ConfigFile) {
		err = flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile)
		if err != nil {
			if _, ok := err.(*os.PathError); !ok {
				fmt.Fprintf(os.Stderr, "Error parsing config "+
					"file: %v\n", err)
				fmt.Fprintln(os.Stderr, usageMessage)
				return nil, nil, err
			}
			configFileError = err
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

	// Create the home directory if it doesn't already exist.
	funcName := "loadConfig"
	err = os.MkdirAll(defaultHomeDir, 0700)
	if err != nil {
		// Show a nicer error message if it's because a symlink is
		// linked to a directory that does not exist (probably because
		// it's not mounted).
		if e, ok := err.(*os.PathError); ok && os.IsExist(err) {
			if link, lerr := os.Readlink(e.Path); lerr == nil {
				str := "is symlink %s -> %s mounted?"
				err = fmt.Errorf(str, e.Path, link)
			}
		}

		str := "%s: Failed to create home directory: %v"
		err := fmt.Errorf(str, funcName, err)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	// Multiple networks can't be selected simultaneously.
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
		str := "%s: The testnet, simnet and regtest params can't be " +
			"used together -- choose one"
		err := fmt.Errorf(str, funcName)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}
	chaincfg.ActiveNetParams = netParams

	// Expand the log and coordination directories.
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.CoordDir = cleanAndExpandPath(cfg.CoordDir)

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Initialize log rotation. After log rotation has been initialized, the
	// logger variables may be used.
	initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("%s: %v", funcName, err.Error())
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Show version at startup.
	log.Infof("Version %s", version())

	// Validate database type.
	if cfg.UseDB && !validDbType(cfg.DbType) {
		str := "%s: The specified database type [%v] is invalid -- " +
			"supported types %v"
		err := fmt.Errorf(str, funcName, cfg.DbType, knownDbTypes)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	if cfg.WorkerNum <= 0 {
		str := "%s: workernum must be positive"
		err := fmt.Errorf(str, funcName)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Connection to the chain server requires an address and credentials.
	if !cfg.DisableConnectToChain {
		if cfg.RPCConnect == "" {
			cfg.RPCConnect = net.JoinHostPort("localhost", netParams.RPCClientPort)
		}
		cfg.RPCConnect = normalizeAddress(cfg.RPCConnect, netParams.RPCClientPort)

		if cfg.RPCUser == "" || cfg.RPCPass == "" {
			str := "%s: rpcuser and rpcpass must be specified to connect " +
				"to a chain server"
			err := fmt.Errorf(str, funcName)
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, nil, err
		}

		if !cfg.DisableClientTLS && !cfg.CAFile.ExplicitlySet() {
			cfg.CAFile.Value = defaultCAFile
		}
	}

	// Warn about missing config file only after all other configuration is
	// done.  This prevents the warning on help messages and invalid
	// options.  Note this should go directly before the return.
	if configFileError != nil {
		log.Warnf("%v", configFileError)
	}

	return &cfg, remainingArgs, nil
}
