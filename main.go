package main

import (
	"fmt"
	"io/ioutil"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"runtime"

	chain "github.com/matrixbuilderops/solominerd/chainclient"
	"github.com/matrixbuilderops/solominerd/dal"
)

var (
	cfg *config
)

func readCAFile(filepath string) []byte {
	// Read certificate file if TLS is not disabled.
	certs, err := ioutil.ReadFile(filepath)
	if err != nil {
		log.Warnf("Cannot open CA file: %v", err)
		// If there's an error reading the CA file, continue
		// with nil certs and without the client connection.
		certs = nil
	}

	return certs
}

// startChainRPC opens a RPC client connection to the chain server.  This
// function uses the RPC options from the global config and there is no
// recovery in case the server is not available or if there is an
// authentication error.  Instead, all requests to the client will simply
// error.
func startChainRPC(certs []byte) (*chain.RPCClient, error) {
	log.Infof("Attempting RPC client connection to chain server (%v)", cfg.RPCConnect)
	rpcc, err := chain.NewRPCClient(cfg.RPCConnect, cfg.RPCUser, cfg.RPCPass,
		certs, cfg.DisableClientTLS, 0, cfg.Proxy, cfg.ProxyUser, cfg.ProxyPass)
	if err != nil {
		return nil, err
	}
	err = rpcc.Start()
	return rpcc, err
}

func chainRPCClientConnectLoop(cfg *config, rpc *chainClients) {
	var certs []byte
	if !cfg.DisableClientTLS {
		certs = readCAFile(cfg.CAFile.Value)
	}

	for {
		var (
			chainClient *chain.RPCClient
			err         error
		)

		chainClient, err = startChainRPC(certs)
		if err != nil {
			log.Errorf("Unable to open connection to chain RPC server: %v", err)
			continue
		}

		rpc.setChainClient(chainClient)

		chainClient.WaitForShutdown()
		break
	}
}

func startProfileServer() {
	listenAddr := net.JoinHostPort("localhost", cfg.ProfilePort)
	log.Infof("Profile server listening on %s", listenAddr)
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	log.Errorf("%v", http.ListenAndServe(listenAddr, mux))
}

func minerMain() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	tcfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = tcfg

	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	defer log.Info("Shutdown complete")

	// Enable http profiling server if requested.
	if cfg.ProfilePort != "" {
		go func() {
			startProfileServer()
		}()
	}

	// Initiate the database ledger when configured.  Its absence is not
	// fatal: the filesystem durable store remains the persistence floor.
	if cfg.UseDB {
		err = dal.InitDB(&dal.DBConfig{
			Username:     cfg.DbUsername,
			Password:     cfg.DbPassword,
			Address:      cfg.DbAddress,
			DatabaseName: cfg.DbName,
		}, !cfg.DisableAutoCreateDB)
		if err != nil {
			log.Errorf("Unable to connect to the ledger database: %v", err)
			log.Info("Continuing without the database ledger")
			cfg.UseDB = false
		}
	}

	// Create a container for the chain client and start connecting unless
	// running disconnected.
	rpc, err := createChainClient(cfg)
	if err != nil {
		log.Errorf("Unable to create chain RPC client: %v", err)
		return err
	}
	if !cfg.DisableConnectToChain {
		go chainRPCClientConnectLoop(cfg, rpc)
	}

	// Create and start the server: template manager, submit manager and
	// the mining workers.
	svr, err := newServer(rpc)
	if err != nil {
		return err
	}

	svr.Start()

	if rpc != nil {
		addInterruptHandler(func() {
			rpc.Stop()
		})
	}
	if svr != nil {
		addInterruptHandler(func() {
			svr.Stop()
		})
	}

	// Wait until the interrupt signal is received from an OS signal or
	// shutdown is requested through one of the subsystems.
	<-interruptHandlersDone
	return nil
}

func main() {
	// Use all processor cores.
	runtime.GOMAXPROCS(runtime.NumCPU())

	if err := minerMain(); err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}
}
