package rpcclient

import (
	"encoding/json"
	"time"

	"github.com/matrixbuilderops/solominerd/chainjson"
)

const (
	// blockConnectedNtfnMethod is the method used for notifications from
	// the chain server that a block has been connected.
	blockConnectedNtfnMethod = "blockconnected"
)

// handleNotification examines the passed notification type, performs
// conversions to get the raw notification types into higher level types and
// delivers the notification to the appropriate On<X> handler registered with
// the client.
func (c *Client) handleNotification(ntfn *rawNotification) {
	// Ignore the notification if the client is not interested in any
	// notifications.
	if c.ntfnHandlers == nil {
		return
	}

	switch ntfn.Method {
	case blockConnectedNtfnMethod:
		if c.ntfnHandlers.OnBlockConnected == nil {
			return
		}

		parsed, err := parseBlockConnectedParams(ntfn.Params)
		if err != nil {
			log.Warnf("Received invalid block connected notification: %v", err)
			return
		}
		c.ntfnHandlers.OnBlockConnected(parsed.Hash, parsed.Height,
			time.Unix(parsed.Time, 0))

	default:
		log.Debugf("Received unregistered notification %s", ntfn.Method)
	}
}

// parseBlockConnectedParams parses out the parameters included in a
// blockconnected notification.
func parseBlockConnectedParams(params []json.RawMessage) (*chainjson.BlockConnectedNtfn, error) {
	if len(params) == 0 {
		return nil, chainjson.NewRPCError(chainjson.RPCErrorCode(-1),
			"blockconnected notification carries no parameters")
	}

	var ntfn chainjson.BlockConnectedNtfn
	if err := json.Unmarshal(params[0], &ntfn); err != nil {
		return nil, err
	}
	return &ntfn, nil
}

// FutureNotifyBlocksResult is a future promise to deliver the result of a
// NotifyBlocksAsync RPC invocation (or an applicable error).
type FutureNotifyBlocksResult chan *response

// Receive waits for the response promised by the future and returns an error
// if the registration was not successful.
func (r FutureNotifyBlocksResult) Receive(timeout ...int) error {
	_, err := receiveFuture(r, timeout...)
	return err
}

// NotifyBlocksAsync returns an instance of a type that can be used to get
// the result of the RPC at some future time by invoking the Receive function
// on the returned instance.
//
// See NotifyBlocks for the blocking version and more details.
func (c *Client) NotifyBlocksAsync() FutureNotifyBlocksResult {
	cmd := chainjson.NewNotifyBlocksCmd()
	return c.sendCmd(cmd)
}

// NotifyBlocks registers the client to receive notifications when blocks are
// connected to the main chain.  The notifications are delivered to the
// notification handlers associated with the client.
//
// NOTE: This is a websocket-only call.
func (c *Client) NotifyBlocks(timeout ...int) error {
	return c.NotifyBlocksAsync().Receive(timeout...)
}
