package main

import (
	"errors"
	"sync"

	"github.com/matrixbuilderops/solominerd/chainclient"
)

// chainClients is the container for the chain RPC client, which is connected
// asynchronously by the connect loop.  Callbacks registered through onReady
// run once the client becomes available.
type chainClients struct {
	cfg         *config
	chainClient *chainclient.RPCClient
	onReady     []func(*chainclient.RPCClient)
	handlerMu   sync.Mutex
}

func (server *chainClients) setChainClient(client *chainclient.RPCClient) {
	server.handlerMu.Lock()
	server.chainClient = client
	callbacks := server.onReady
	server.handlerMu.Unlock()

	for _, callback := range callbacks {
		callback(client)
	}
}

// whenReady registers a callback to run when the chain client connects.  If
// the client is already connected the callback runs immediately.
func (server *chainClients) whenReady(callback func(*chainclient.RPCClient)) {
	server.handlerMu.Lock()
	client := server.chainClient
	if client == nil {
		server.onReady = append(server.onReady, callback)
	}
	server.handlerMu.Unlock()

	if client != nil {
		callback(client)
	}
}

// SubmitBlock forwards a serialized block to the connected chain client.  It
// satisfies the submission collaborator interface of the submit manager.
func (server *chainClients) SubmitBlock(serializedHex string) error {
	server.handlerMu.Lock()
	client := server.chainClient
	server.handlerMu.Unlock()

	if client == nil {
		return errors.New("chain client not connected")
	}
	return client.SubmitBlock(serializedHex)
}

func (server *chainClients) Stop() {
	chainClient := server.chainClient
	if chainClient != nil {
		log.Warn("Stopping chain RPC client...")
		chainClient.Stop()
		log.Info("Chain RPC client shutdown complete")
	}
}

func createChainClient(cfg *config) (*chainClients, error) {
	newClient := chainClients{
		cfg: cfg,
	}
	return &newClient, nil
}
