package rpcclient

import (
	"encoding/json"
	"errors"

	"github.com/matrixbuilderops/solominerd/chainjson"
)

// FutureGetBlockTemplateResponse is a future promise to deliver the result of
// a GetBlockTemplateAsync RPC invocation (or an applicable error).
type FutureGetBlockTemplateResponse chan *response

// Receive waits for the Response promised by the future and returns an error
// if any occurred when retrieving the block template.
func (r FutureGetBlockTemplateResponse) Receive(timeout ...int) (*chainjson.GetBlockTemplateResult, error) {
	res, err := receiveFuture(r, timeout...)
	if err != nil {
		return nil, err
	}

	// Unmarshal result as a getblocktemplate result object.
	var result chainjson.GetBlockTemplateResult
	err = json.Unmarshal(res, &result)
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// GetBlockTemplateAsync returns an instance of a type that can be used to get
// the result of the RPC at some future time by invoking the Receive function
// on the returned instance.
//
// See GetBlockTemplate for the blocking version and more details.
func (c *Client) GetBlockTemplateAsync(req *chainjson.TemplateRequest) FutureGetBlockTemplateResponse {
	cmd := chainjson.NewGetBlockTemplateCmd(req)
	return c.sendCmd(cmd)
}

// GetBlockTemplate returns a new block template for mining.
func (c *Client) GetBlockTemplate(req *chainjson.TemplateRequest, timeout ...int) (*chainjson.GetBlockTemplateResult, error) {
	return c.GetBlockTemplateAsync(req).Receive(timeout...)
}

// FutureSubmitBlockResult is a future promise to deliver the result of a
// SubmitBlockAsync RPC invocation (or an applicable error).
type FutureSubmitBlockResult chan *response

// Receive waits for the response promised by the future and returns an error
// if any occurred when submitting the block.
func (r FutureSubmitBlockResult) Receive(timeout ...int) error {
	res, err := receiveFuture(r, timeout...)
	if err != nil {
		return err
	}

	if string(res) != "null" {
		var result string
		err = json.Unmarshal(res, &result)
		if err != nil {
			return err
		}

		return errors.New(result)
	}

	return nil
}

// SubmitBlockAsync returns an instance of a type that can be used to get the
// result of the RPC at some future time by invoking the Receive function on
// the returned instance.
//
// See SubmitBlock for the blocking version and more details.
func (c *Client) SubmitBlockAsync(blockHex string) FutureSubmitBlockResult {
	cmd := chainjson.NewSubmitBlockCmd(blockHex)
	return c.sendCmd(cmd)
}

// SubmitBlock attempts to submit a new block into the network.
func (c *Client) SubmitBlock(blockHex string, timeout ...int) error {
	return c.SubmitBlockAsync(blockHex).Receive(timeout...)
}

// FutureGetBlockCountResult is a future promise to deliver the result of a
// GetBlockCountAsync RPC invocation (or an applicable error).
type FutureGetBlockCountResult chan *response

// Receive waits for the response promised by the future and returns the
// number of blocks in the longest block chain.
func (r FutureGetBlockCountResult) Receive(timeout ...int) (int64, error) {
	res, err := receiveFuture(r, timeout...)
	if err != nil {
		return 0, err
	}

	// Unmarshal the result as an int64.
	var count int64
	err = json.Unmarshal(res, &count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// GetBlockCountAsync returns an instance of a type that can be used to get
// the result of the RPC at some future time by invoking the Receive function
// on the returned instance.
//
// See GetBlockCount for the blocking version and more details.
func (c *Client) GetBlockCountAsync() FutureGetBlockCountResult {
	cmd := chainjson.NewGetBlockCountCmd()
	return c.sendCmd(cmd)
}

// GetBlockCount returns the number of blocks in the longest block chain.
func (c *Client) GetBlockCount(timeout ...int) (int64, error) {
	return c.GetBlockCountAsync().Receive(timeout...)
}

// FuturePingResult is a future promise to deliver the result of a PingAsync
// RPC invocation (or an applicable error).
type FuturePingResult chan *response

// Receive waits for the response promised by the future and returns the
// result of queueing a ping to be sent to each connected peer.
func (r FuturePingResult) Receive(timeout ...int) error {
	_, err := receiveFuture(r, timeout...)
	return err
}

// PingAsync returns an instance of a type that can be used to get the result
// of the RPC at some future time by invoking the Receive function on the
// returned instance.
//
// See Ping for the blocking version and more details.
func (c *Client) PingAsync() FuturePingResult {
	cmd := chainjson.NewPingCmd()
	return c.sendCmd(cmd)
}

// Ping queues a ping to be sent to each connected peer.
func (c *Client) Ping(timeout ...int) error {
	return c.PingAsync().Receive(timeout...)
}
