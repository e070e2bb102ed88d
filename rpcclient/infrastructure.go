// Package rpcclient implements a websocket-based JSON-RPC client for the
// chain server.  Commands are issued asynchronously and resolved through
// future/promise response channels.
package rpcclient

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abesuite/go-socks/socks"
	"github.com/gorilla/websocket"

	"github.com/matrixbuilderops/solominerd/chainjson"
)

var (
	// ErrClientShutdown is an error to describe the condition where the
	// client is either already shutdown, or in the process of shutting
	// down.  Any outstanding futures when a client shutdown occurs will
	// return this error as will any new requests.
	ErrClientShutdown = errors.New("the client has been shutdown")

	// ErrClientDisconnect is an error to describe the condition where the
	// client has been disconnected from the RPC server.
	ErrClientDisconnect = errors.New("the client has been disconnected")

	// ErrClientTimeout is an error to describe the condition where a
	// response was not received within the requested timeout.
	ErrClientTimeout = errors.New("rpc request timeout")
)

const (
	// sendBufferSize is the number of elements the websocket send channel
	// can queue before blocking.
	sendBufferSize = 50

	// connectionRetryInterval is the amount of time to wait in between
	// retries when automatically reconnecting to an RPC server.
	connectionRetryInterval = time.Second * 5

	// defaultResponseTimeout bounds receiveFuture when the caller does not
	// supply a timeout.
	defaultResponseTimeout = time.Second * 30
)

// jsonRequest holds information about a json request that is used to properly
// detect, interpret, and deliver a reply to it.
type jsonRequest struct {
	id             uint64
	method         string
	cmd            interface{}
	marshalledJSON []byte
	responseChan   chan *response
}

// response is the raw bytes of a JSON-RPC result, or the error if the
// response error object was non-null.
type response struct {
	result []byte
	err    error
}

// ConnConfig describes the connection configuration parameters for the
// client.
type ConnConfig struct {
	// Host is the IP address and port of the RPC server you want to
	// connect to.
	Host string

	// Endpoint is the websocket endpoint on the RPC server.  This is
	// typically "ws".
	Endpoint string

	// User is the username to use to authenticate to the RPC server.
	User string

	// Pass is the passphrase to use to authenticate to the RPC server.
	Pass string

	// DisableTLS specifies whether transport layer security should be
	// disabled.
	DisableTLS bool

	// Certificates are the bytes for a PEM-encoded certificate chain used
	// for the TLS connection.  It has no effect if the DisableTLS
	// parameter is true.
	Certificates []byte

	// Proxy specifies to connect through a SOCKS 5 proxy server.  It may
	// be an empty string if a proxy is not required.
	Proxy string

	// ProxyUser is an optional username to use for the proxy server if it
	// requires authentication.
	ProxyUser string

	// ProxyPass is an optional password to use for the proxy server if it
	// requires authentication.
	ProxyPass string

	// DisableAutoReconnect specifies the client should not automatically
	// try to reconnect to the server when it has been disconnected.
	DisableAutoReconnect bool

	// DisableConnectOnNew specifies that a websocket client connection
	// should not be tried when creating the client.  Instead, the client
	// is created and returned unconnected, and Connect must be called
	// manually.
	DisableConnectOnNew bool

	// Alias names the backend in log output.
	Alias string
}

// NotificationHandlers defines callback function pointers to invoke with
// notifications.  Since all of the functions are nil by default, all
// notifications are effectively ignored until their handlers are set to a
// concrete callback.
type NotificationHandlers struct {
	// OnClientConnected is invoked when the client connects or reconnects
	// to the RPC server.
	OnClientConnected func()

	// OnBlockConnected is invoked when a block is connected to the chain.
	// It will only be invoked if a preceding call to NotifyBlocks has been
	// made to register for the notification.
	OnBlockConnected func(hash string, height int64, t time.Time)
}

// Client represents a websocket client connection to a chain RPC server.
//
// All commands are issued via the asynchronous *Async functions returning a
// future, or their synchronous wrappers which block until the future
// resolves.
type Client struct {
	id uint64 // atomic, so must stay 64-bit aligned

	config *ConnConfig

	wsConn       *websocket.Conn
	mtx          sync.Mutex
	disconnected bool
	retryCount   int64

	ntfnHandlers *NotificationHandlers

	// Track command and their response channels by ID.
	requestLock sync.Mutex
	requestMap  map[uint64]*jsonRequest

	// Networking infrastructure.
	sendChan        chan []byte
	disconnectChan  chan struct{}
	connEstablished chan struct{}
	shutdown        chan struct{}
	wg              sync.WaitGroup
}

// NextID returns the next id to be used when sending a JSON-RPC message.
func (c *Client) NextID() uint64 {
	return atomic.AddUint64(&c.id, 1)
}

// Disconnected returns whether or not the server is disconnected.
func (c *Client) Disconnected() bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.disconnected
}

// addRequest associates the passed jsonRequest with its id.  This allows the
// response from the remote server to be unmarshalled to the appropriate type
// and sent to the specified channel when it is received.
func (c *Client) addRequest(jReq *jsonRequest) error {
	c.requestLock.Lock()
	defer c.requestLock.Unlock()

	select {
	case <-c.shutdown:
		return ErrClientShutdown
	default:
	}

	c.requestMap[jReq.id] = jReq
	return nil
}

// removeRequest returns and removes the jsonRequest associated with the
// passed id, or nil when there is no association.
func (c *Client) removeRequest(id uint64) *jsonRequest {
	c.requestLock.Lock()
	defer c.requestLock.Unlock()

	jReq := c.requestMap[id]
	delete(c.requestMap, id)
	return jReq
}

// removeAllRequests removes all the jsonRequests which contain the response
// channels for outstanding requests.
//
// This function must be called with the request lock held.
func (c *Client) removeAllRequests() {
	c.requestMap = make(map[uint64]*jsonRequest)
}

// rawResponse is a partially-unmarshaled JSON-RPC response.  For this
// to be valid (according to JSON-RPC 1.0 spec), ID may not be nil.
type rawResponse struct {
	Result json.RawMessage     `json:"result"`
	Error  *chainjson.RPCError `json:"error"`
}

// result checks whether the unmarshaled response contains a non-nil error,
// returning an unmarshaled chainjson.RPCError (or an unmarshaling error) if
// so.  If the response is not an error, the raw bytes of the request are
// returned for further unmashaling into specific result types.
func (r rawResponse) result() (result []byte, err error) {
	if r.Error != nil {
		return nil, r.Error
	}
	return r.Result, nil
}

// inMessage is the first type that an incoming message is unmarshaled into.
// It supports both requests (for notification support) and responses.  The
// partially-unmarshaled message is a notification if the embedded ID (from
// the response) is nil.  Otherwise, it is a response.
type inMessage struct {
	ID *float64 `json:"id"`
	*rawNotification
	*rawResponse
}

// rawNotification is a partially-unmarshaled JSON-RPC notification.
type rawNotification struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// handleMessage is the main handler for incoming notifications and
// responses.
func (c *Client) handleMessage(msg []byte) {
	// Attempt to unmarshal the message as either a notification or
	// response.
	var in inMessage
	in.rawResponse = &rawResponse{}
	in.rawNotification = &rawNotification{}
	err := json.Unmarshal(msg, &in)
	if err != nil {
		log.Warnf("Remote server sent invalid message: %v", err)
		return
	}

	// JSON-RPC 1.0 notifications are requests with a null id.
	if in.ID == nil {
		ntfn := in.rawNotification
		if ntfn == nil || ntfn.Method == "" {
			log.Warn("Malformed notification: missing method")
			return
		}
		c.handleNotification(in.rawNotification)
		return
	}

	id := uint64(*in.ID)
	jReq := c.removeRequest(id)
	if jReq == nil {
		log.Warnf("Received unexpected reply: %s (id %d)", in.Result, id)
		return
	}

	// Deliver the response.
	result, err := in.rawResponse.result()
	jReq.responseChan <- &response{result: result, err: err}
}

// wsInHandler handles all incoming messages for the websocket connection.
// It must be run as a goroutine.
func (c *Client) wsInHandler() {
out:
	for {
		// Break out of the loop once the shutdown channel has been
		// closed.  Use a non-blocking select here so we fall through
		// otherwise.
		select {
		case <-c.shutdown:
			break out
		default:
		}

		_, msg, err := c.wsConn.ReadMessage()
		if err != nil {
			// Log the error if it's not due to disconnecting.
			if c.shouldLogReadError(err) {
				log.Errorf("Websocket receive error from %s: %v",
					c.config.Host, err)
			}
			break out
		}
		c.handleMessage(msg)
	}

	// Ensure the connection is closed.
	c.Disconnect()
	c.wg.Done()
	log.Tracef("RPC client input handler done for %s", c.config.Host)
}

// shouldLogReadError returns whether or not the passed error, which is
// expected to have come from reading from the websocket connection, should
// be logged.
func (c *Client) shouldLogReadError(err error) bool {
	// No logging when the connection is being forcibly disconnected.
	select {
	case <-c.shutdown:
		return false
	default:
	}

	// No logging when the connection has been disconnected.
	if err == websocket.ErrCloseSent {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && !opErr.Temporary() {
		return false
	}
	return true
}

// wsOutHandler handles all outgoing messages for the websocket connection.
// It uses a buffered channel to serialize output messages while allowing the
// sender to continue running asynchronously.  It must be run as a goroutine.
func (c *Client) wsOutHandler() {
out:
	for {
		// Send any messages ready for send until the client is
		// disconnected.
		select {
		case msg := <-c.sendChan:
			err := c.wsConn.WriteMessage(websocket.TextMessage, msg)
			if err != nil {
				c.Disconnect()
				break out
			}

		case <-c.disconnectChan:
			break out
		}
	}

	// Drain any channels before exiting so nothing is left waiting around
	// to send.
cleanup:
	for {
		select {
		case <-c.sendChan:
		default:
			break cleanup
		}
	}
	c.wg.Done()
	log.Tracef("RPC client output handler done for %s", c.config.Host)
}

// sendMessage sends the passed JSON to the connected server via the
// websocket connection.  It is backed by a buffered channel, so it will not
// block until the send channel is full.
func (c *Client) sendMessage(marshalledJSON []byte) {
	// Don't send the message if disconnected.
	select {
	case c.sendChan <- marshalledJSON:
	case <-c.disconnectChan:
		return
	}
}

// reconnectHandler listens for client disconnects and automatically tries
// to reconnect with retry interval that scales based on the number of
// retries.  It also resends any commands that had not completed when the
// client disconnected so the disconnect/reconnect process is largely
// transparent to the caller.  This function is not run when the
// DisableAutoReconnect config option is set.  It must be run as a goroutine.
func (c *Client) reconnectHandler() {
out:
	for {
		select {
		case <-c.disconnectChan:
		case <-c.shutdown:
			break out
		}

	reconnect:
		for {
			select {
			case <-c.shutdown:
				break out
			default:
			}

			wsConn, err := dial(c.config)
			if err != nil {
				c.retryCount++
				log.Infof("Failed to connect to %s: %v",
					c.config.Host, err)

				// Scale the retry interval by the number of
				// retries so there is a backoff up to a max
				// of 1 minute.
				scaledInterval := connectionRetryInterval.Nanoseconds() * c.retryCount
				scaledDuration := time.Duration(scaledInterval)
				if scaledDuration > time.Minute {
					scaledDuration = time.Minute
				}
				log.Infof("Retrying connection to %s in %s",
					c.config.Host, scaledDuration)
				time.Sleep(scaledDuration)
				continue reconnect
			}

			log.Infof("Reestablished connection to RPC server %s",
				c.config.Host)

			// Reset the connection state and signal the reconnect
			// has happened.
			c.mtx.Lock()
			c.wsConn = wsConn
			c.retryCount = 0
			c.disconnected = false
			c.disconnectChan = make(chan struct{})
			c.mtx.Unlock()

			// Start processing input and output for the new
			// connection.
			c.start()

			// Break out of the reconnect loop back to wait for
			// disconnect again.
			break reconnect
		}
	}
	c.wg.Done()
	log.Tracef("RPC client reconnect handler done for %s", c.config.Host)
}

// sendCmd sends the passed command to the associated server and returns a
// response channel on which the reply will be delivered at some point in the
// future.
func (c *Client) sendCmd(cmd interface{}) chan *response {
	// Get the method associated with the command.
	method, err := chainjson.CmdMethod(cmd)
	if err != nil {
		return newFutureError(err)
	}

	// Marshal the command.
	id := c.NextID()
	marshalledJSON, err := chainjson.MarshalCmd(id, cmd)
	if err != nil {
		return newFutureError(err)
	}
	data, err := json.Marshal(marshalledJSON)
	if err != nil {
		return newFutureError(err)
	}

	responseChan := make(chan *response, 1)
	jReq := &jsonRequest{
		id:             id,
		method:         method,
		cmd:            cmd,
		marshalledJSON: data,
		responseChan:   responseChan,
	}
	if err := c.addRequest(jReq); err != nil {
		return newFutureError(err)
	}

	log.Tracef("Sending command [%s] with id %d", method, id)
	c.sendMessage(data)
	return responseChan
}

// newFutureError returns a new future result channel that already has the
// passed error waiting on the channel with the reply set to nil.  This is
// useful to easily return errors from the various Async functions.
func newFutureError(err error) chan *response {
	responseChan := make(chan *response, 1)
	responseChan <- &response{err: err}
	return responseChan
}

// receiveFuture receives from the passed futureResult channel to extract a
// reply or any errors.  The examined errors include an error in the
// futureResult and the error in the reply from the server.  An optional
// timeout in seconds bounds the wait.
func receiveFuture(f chan *response, timeout ...int) ([]byte, error) {
	duration := defaultResponseTimeout
	if len(timeout) > 0 && timeout[0] > 0 {
		duration = time.Duration(timeout[0]) * time.Second
	}

	select {
	case r := <-f:
		return r.result, r.err
	case <-time.After(duration):
		return nil, ErrClientTimeout
	}
}

// dial opens a websocket connection using the passed connection configuration
// details.
func dial(config *ConnConfig) (*websocket.Conn, error) {
	// Setup TLS if not disabled.
	var tlsConfig *tls.Config
	var scheme = "ws"
	if !config.DisableTLS {
		tlsConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
		if len(config.Certificates) > 0 {
			pool := x509.NewCertPool()
			pool.AppendCertsFromPEM(config.Certificates)
			tlsConfig.RootCAs = pool
		}
		scheme = "wss"
	}

	// Create a websocket dialer that will be used to make the connection.
	// It is modified by the proxy setting below as needed.
	dialer := websocket.Dialer{TLSClientConfig: tlsConfig}

	// Setup the proxy if one is configured.
	if config.Proxy != "" {
		proxy := &socks.Proxy{
			Addr:     config.Proxy,
			Username: config.ProxyUser,
			Password: config.ProxyPass,
		}
		dialer.NetDial = proxy.Dial
	}

	// The RPC server requires basic authorization, so create a custom
	// request header with the Authorization header set.
	login := config.User + ":" + config.Pass
	auth := "Basic " + base64.StdEncoding.EncodeToString([]byte(login))
	requestHeader := make(http.Header)
	requestHeader.Add("Authorization", auth)

	// Dial the connection.
	address := fmt.Sprintf("%s://%s/%s", scheme, config.Host, config.Endpoint)
	wsConn, _, err := dialer.Dial(address, requestHeader)
	if err != nil {
		return nil, err
	}
	return wsConn, nil
}

// New creates a new RPC client based on the provided connection
// configuration details.  The notification handlers parameter may be nil if
// you are not interested in receiving notifications and will be ignored if
// the configuration is set to run in HTTP POST mode.
func New(config *ConnConfig, ntfnHandlers *NotificationHandlers) (*Client, error) {
	// Either open a websocket connection or create an HTTP client
	// depending on the HTTP POST mode.  Also, set the notification
	// handlers to nil when running in HTTP POST mode.
	var wsConn *websocket.Conn
	if !config.DisableConnectOnNew {
		var err error
		wsConn, err = dial(config)
		if err != nil {
			return nil, err
		}
	}

	client := &Client{
		config:          config,
		wsConn:          wsConn,
		ntfnHandlers:    ntfnHandlers,
		requestMap:      make(map[uint64]*jsonRequest),
		sendChan:        make(chan []byte, sendBufferSize),
		disconnectChan:  make(chan struct{}),
		connEstablished: make(chan struct{}),
		shutdown:        make(chan struct{}),
	}

	if wsConn != nil {
		client.start()
		if !client.config.DisableAutoReconnect {
			client.wg.Add(1)
			go client.reconnectHandler()
		}
	}

	return client, nil
}

// Connect establishes the initial websocket connection.  This is necessary
// when a client was created after setting the DisableConnectOnNew field of
// the Config struct.
//
// Up to tries number of connections (each after an increasing backoff) will
// be tried.  An error will be returned if a connection cannot be established.
func (c *Client) Connect(tries int) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.wsConn != nil {
		return errors.New("websocket already connected")
	}

	// Begin connection attempts.  Increase the backoff after each failed
	// attempt, up to a maximum of one minute.
	var err error
	var backoff time.Duration
	for i := 0; tries == 0 || i < tries; i++ {
		var wsConn *websocket.Conn
		wsConn, err = dial(c.config)
		if err != nil {
			backoff = connectionRetryInterval * time.Duration(i+1)
			if backoff > time.Minute {
				backoff = time.Minute
			}
			time.Sleep(backoff)
			continue
		}

		// Connection was established.  Set the websocket connection
		// member of the client and start the goroutines necessary to
		// run the client.
		log.Infof("Established connection to RPC server %s", c.config.Host)
		c.wsConn = wsConn
		c.retryCount = 0
		c.disconnected = false
		c.start()
		if !c.config.DisableAutoReconnect {
			c.wg.Add(1)
			go c.reconnectHandler()
		}
		return nil
	}

	// All connection attempts failed, so return the last error.
	return err
}

// start begins processing input and output messages.
func (c *Client) start() {
	log.Tracef("Starting RPC client %s", c.config.Host)

	if c.ntfnHandlers != nil && c.ntfnHandlers.OnClientConnected != nil {
		go c.ntfnHandlers.OnClientConnected()
	}

	c.wg.Add(2)
	go c.wsInHandler()
	go c.wsOutHandler()
}

// Disconnect disconnects the current websocket associated with the client.
// The connection will automatically be re-established unless the client was
// created with the DisableAutoReconnect flag.
func (c *Client) Disconnect() {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.disconnected {
		return
	}

	log.Tracef("Disconnecting RPC client %s", c.config.Host)
	close(c.disconnectChan)
	if c.wsConn != nil {
		c.wsConn.Close()
	}
	c.disconnected = true

	// When operating without auto reconnect, send errors to any pending
	// requests and shutdown the client.
	if c.config.DisableAutoReconnect {
		c.requestLock.Lock()
		for _, jReq := range c.requestMap {
			jReq.responseChan <- &response{
				result: nil,
				err:    ErrClientDisconnect,
			}
		}
		c.removeAllRequests()
		c.requestLock.Unlock()
		c.doShutdown()
	}
}

// doShutdown closes the shutdown channel and logs the shutdown unless
// shutdown is already in progress.  It will return false if the shutdown is
// not needed.
//
// This function is safe for concurrent access.
func (c *Client) doShutdown() bool {
	// Ignore the shutdown request if the client is already in the process
	// of shutting down or already shutdown.
	select {
	case <-c.shutdown:
		return false
	default:
	}

	log.Tracef("Shutting down RPC client %s", c.config.Host)
	close(c.shutdown)

	// Send the ErrClientShutdown error to any pending requests.
	c.requestLock.Lock()
	for _, jReq := range c.requestMap {
		jReq.responseChan <- &response{
			result: nil,
			err:    ErrClientShutdown,
		}
	}
	c.removeAllRequests()
	c.requestLock.Unlock()
	return true
}

// Shutdown shuts down the client by disconnecting any connections associated
// with the client and, when automatic reconnect is enabled, preventing
// future attempts to reconnect.  It also stops all goroutines.
func (c *Client) Shutdown() {
	if !c.doShutdown() {
		return
	}
	c.Disconnect()
}

// WaitForShutdown blocks until the client goroutines are stopped and the
// connection is closed.
func (c *Client) WaitForShutdown() {
	c.wg.Wait()
}
