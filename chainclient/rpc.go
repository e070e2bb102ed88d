// Package chainclient maintains the persistent connection to the chain RPC
// server: it polls for block templates, listens for block notifications, and
// fans both out to subscribers through a callback interface.
package chainclient

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matrixbuilderops/solominerd/chainjson"
	"github.com/matrixbuilderops/solominerd/constdef"
	"github.com/matrixbuilderops/solominerd/model"
	"github.com/matrixbuilderops/solominerd/rpcclient"
)

// NotificationType represents the type of a notification message.
type NotificationType int

// NotificationCallback is used for a caller to provide a callback for
// notifications about various events.
type NotificationCallback func(*Notification)

// Constants for the type of a notification message.
const (
	// NTTemplateChanged indicates a new block template was obtained from
	// the chain server.
	NTTemplateChanged NotificationType = iota

	// NTBlockConnected indicates a block was connected to the chain,
	// which invalidates the current template.
	NTBlockConnected

	// NTClientConnected indicates the connection to the chain server was
	// established or reestablished.
	NTClientConnected
)

// notificationTypeStrings is a map of notification types back to their
// constant names for pretty printing.
var notificationTypeStrings = map[NotificationType]string{
	NTTemplateChanged: "NTTemplateChanged",
	NTBlockConnected:  "NTBlockConnected",
	NTClientConnected: "NTClientConnected",
}

// String returns the NotificationType in human-readable form.
func (n NotificationType) String() string {
	if s, ok := notificationTypeStrings[n]; ok {
		return s
	}
	return fmt.Sprintf("Unknown Notification Type (%d)", int(n))
}

// Notification defines a notification that is sent to subscribers via the
// callback function provided during Subscribe.  The data depends on the type
// as follows:
//   - NTTemplateChanged:  *model.BlockTemplate
//   - NTBlockConnected:   *model.BlockNotification
//   - NTClientConnected:  nil
type Notification struct {
	Type NotificationType
	Data interface{}
}

// RPCClient represents a persistent client connection to the chain RPC
// server.
type RPCClient struct {
	*rpcclient.Client
	connConfig        *rpcclient.ConnConfig
	reconnectAttempts int

	currentBlockTemplate *model.BlockTemplate
	templateMtx          sync.Mutex

	// refreshChan forces an immediate template fetch, ahead of the next
	// polling tick.
	refreshChan chan struct{}

	quit    chan struct{}
	quitMtx sync.Mutex
	started bool
	wg      sync.WaitGroup

	// The notifications field stores a slice of callbacks to be executed
	// on certain events.
	notificationsLock sync.RWMutex
	notifications     []NotificationCallback
}

// NewRPCClient creates a client connection to the server described by the
// connect string.  If disableTLS is false, the remote RPC certificate must
// be provided in the certs slice.  The connection is not established
// immediately, but must be done using the Start method.
func NewRPCClient(connect, user, pass string, certs []byte, disableTLS bool,
	reconnectAttempts int, proxy, proxyUser, proxyPass string) (*RPCClient, error) {

	if reconnectAttempts < 0 {
		return nil, errors.New("reconnectAttempts must be positive")
	}

	client := &RPCClient{
		connConfig: &rpcclient.ConnConfig{
			Host:                 connect,
			Endpoint:             "ws",
			User:                 user,
			Pass:                 pass,
			Certificates:         certs,
			DisableAutoReconnect: false,
			DisableConnectOnNew:  true,
			DisableTLS:           disableTLS,
			Proxy:                proxy,
			ProxyUser:            proxyUser,
			ProxyPass:            proxyPass,
			Alias:                "chain",
		},
		reconnectAttempts: reconnectAttempts,
		refreshChan:       make(chan struct{}, 1),
		quit:              make(chan struct{}),
	}
	ntfnCallbacks := &rpcclient.NotificationHandlers{
		OnClientConnected: client.onClientConnect,
		OnBlockConnected:  client.onBlockConnect,
	}
	rpcClient, err := rpcclient.New(client.connConfig, ntfnCallbacks)
	if err != nil {
		return nil, err
	}
	client.Client = rpcClient
	return client, nil
}

// Subscribe registers a callback to be executed when various events take
// place.
func (c *RPCClient) Subscribe(callback NotificationCallback) {
	c.notificationsLock.Lock()
	c.notifications = append(c.notifications, callback)
	c.notificationsLock.Unlock()
}

// sendNotification sends a notification with the passed type and data to
// every subscriber.
func (c *RPCClient) sendNotification(typ NotificationType, data interface{}) {
	n := Notification{Type: typ, Data: data}
	c.notificationsLock.RLock()
	for _, callback := range c.notifications {
		callback(&n)
	}
	c.notificationsLock.RUnlock()
}

// Start attempts to establish a client connection with the remote server.
// If successful, handler goroutines are started to poll for templates and
// process notifications sent by the server.  After a limited number of
// connection attempts, this function gives up and returns the error.
func (c *RPCClient) Start() error {
	err := c.Connect(c.reconnectAttempts)
	if err != nil {
		return err
	}

	c.quitMtx.Lock()
	c.started = true
	c.quitMtx.Unlock()
	return nil
}

// Stop disconnects the client and signals the shutdown of all goroutines
// started by Start.
func (c *RPCClient) Stop() {
	c.quitMtx.Lock()
	select {
	case <-c.quit:
	default:
		close(c.quit)
		c.Client.Shutdown()
	}
	c.quitMtx.Unlock()
	log.Trace("Chain client done")
}

// WaitForShutdown blocks until both the client has finished disconnecting
// and all handlers have exited.
func (c *RPCClient) WaitForShutdown() {
	c.Client.WaitForShutdown()
	c.wg.Wait()
}

// onClientConnect runs on every (re)connection: it registers for block
// notifications and starts the template polling handler.
func (c *RPCClient) onClientConnect() {
	log.Info("Connected to chain RPC server")
	c.sendNotification(NTClientConnected, nil)

	if err := c.NotifyBlocks(10); err != nil {
		log.Warnf("Unable to register for block notifications: %v", err)
	}

	c.wg.Add(1)
	go c.templateHandler()
}

// onBlockConnect forwards the block notification and forces an immediate
// template refresh, since a connected block invalidates the current one.
func (c *RPCClient) onBlockConnect(hash string, height int64, t time.Time) {
	log.Debugf("Block connected at height %d: %s", height, hash)
	c.sendNotification(NTBlockConnected, &model.BlockNotification{
		BlockHash: hash,
		Height:    height,
		Time:      t,
	})

	select {
	case c.refreshChan <- struct{}{}:
	default:
	}
}

// GetTemplate returns the current block template.
func (c *RPCClient) GetTemplate() *model.BlockTemplate {
	c.templateMtx.Lock()
	ret := c.currentBlockTemplate
	c.templateMtx.Unlock()
	return ret
}

// SetTemplate sets the current block template.
func (c *RPCClient) SetTemplate(tmp *model.BlockTemplate) {
	c.templateMtx.Lock()
	c.currentBlockTemplate = tmp
	c.templateMtx.Unlock()
}

// SubmitBlock submits a serialized block.  It shadows the promoted client
// method so the chain client satisfies the submission collaborator
// interface.
func (c *RPCClient) SubmitBlock(serializedHex string) error {
	return c.Client.SubmitBlock(serializedHex, 10)
}

// isSameTemplate compares two block templates and reports whether they are
// the same, ignoring timestamp drift below a minute.
func isSameTemplate(newTemplate *model.BlockTemplate, currentTemplate *model.BlockTemplate) bool {
	if newTemplate == nil && currentTemplate == nil {
		return true
	}
	if newTemplate == nil || currentTemplate == nil {
		return false
	}
	if newTemplate.Version != currentTemplate.Version {
		return false
	}
	if newTemplate.Bits != currentTemplate.Bits {
		return false
	}
	if newTemplate.Height != currentTemplate.Height {
		return false
	}
	if newTemplate.PreviousHash != currentTemplate.PreviousHash {
		return false
	}
	if len(newTemplate.Transactions) != len(currentTemplate.Transactions) {
		return false
	}
	for i := 0; i < len(newTemplate.Transactions); i++ {
		if newTemplate.Transactions[i].TxID != currentTemplate.Transactions[i].TxID {
			return false
		}
	}
	if newTemplate.CurTime-currentTemplate.CurTime > 60 {
		log.Infof("Block template timestamp expired, updating...")
		return false
	}
	return true
}

// getAndSetTemplate fetches the block template from the chain server.  When
// the fetched template differs from the current one, it is installed and the
// subscribers are notified.
func (c *RPCClient) getAndSetTemplate() {
	templateRequest := chainjson.TemplateRequest{}
	tmp, err := c.Client.GetBlockTemplate(&templateRequest, 9)
	if err != nil {
		log.Debugf("Unable to get block template: %v", err)
		return
	}
	if tmp == nil {
		return
	}

	newBlockTemplate := &model.BlockTemplate{
		Version:      tmp.Version,
		Bits:         tmp.Bits,
		CurTime:      tmp.CurTime,
		Height:       tmp.Height,
		PreviousHash: tmp.PreviousHash,
		Transactions: tmp.Transactions,
		CoinbaseTxn:  tmp.CoinbaseTxn,
	}
	if isSameTemplate(newBlockTemplate, c.GetTemplate()) {
		log.Tracef("Block template at height %d unchanged", newBlockTemplate.Height)
		return
	}

	log.Infof("New block template: height %d, previous %s, bits %s, tx count %d",
		newBlockTemplate.Height, newBlockTemplate.PreviousHash,
		newBlockTemplate.Bits, len(newBlockTemplate.Transactions)+1)
	c.SetTemplate(newBlockTemplate)
	c.sendNotification(NTTemplateChanged, newBlockTemplate)
}

// templateHandler polls the chain server for block templates until the
// connection is lost or the client is stopped.  A block notification forces
// an immediate fetch ahead of the next tick.
func (c *RPCClient) templateHandler() {
	defer c.wg.Done()

	c.getAndSetTemplate()

	ticker := time.NewTicker(constdef.DefaultTemplateRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.getAndSetTemplate()
		case <-c.refreshChan:
			c.getAndSetTemplate()
		case <-c.quit:
			return
		}
	}
}
