// NOTE: This file is intended to house the RPC commands that are supported by
// a chain server.

package chainjson

// TemplateRequest is a request object as defined in BIP22.  It is optionally
// provided as a pointer argument to GetBlockTemplateCmd.
type TemplateRequest struct {
	Mode         string   `json:"mode,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`

	// Optional long polling.
	LongPollID string `json:"longpollid,omitempty"`

	// Basic pool extension from BIP 0023.
	Target string `json:"target,omitempty"`
}

// GetBlockTemplateCmd defines the getblocktemplate JSON-RPC command.
type GetBlockTemplateCmd struct {
	Request *TemplateRequest
}

// NewGetBlockTemplateCmd returns a new instance which can be used to issue a
// getblocktemplate JSON-RPC command.
//
// The parameters which are pointers indicate they are optional.  Passing nil
// for optional parameters will use the default value.
func NewGetBlockTemplateCmd(request *TemplateRequest) *GetBlockTemplateCmd {
	return &GetBlockTemplateCmd{
		Request: request,
	}
}

// SubmitBlockCmd defines the submitblock JSON-RPC command.
type SubmitBlockCmd struct {
	HexBlock string
}

// NewSubmitBlockCmd returns a new instance which can be used to issue a
// submitblock JSON-RPC command.
func NewSubmitBlockCmd(hexBlock string) *SubmitBlockCmd {
	return &SubmitBlockCmd{
		HexBlock: hexBlock,
	}
}

// GetBlockCountCmd defines the getblockcount JSON-RPC command.
type GetBlockCountCmd struct{}

// NewGetBlockCountCmd returns a new instance which can be used to issue a
// getblockcount JSON-RPC command.
func NewGetBlockCountCmd() *GetBlockCountCmd {
	return &GetBlockCountCmd{}
}

// PingCmd defines the ping JSON-RPC command.
type PingCmd struct{}

// NewPingCmd returns a new instance which can be used to issue a ping
// JSON-RPC command.
func NewPingCmd() *PingCmd {
	return &PingCmd{}
}

// NotifyBlocksCmd defines the notifyblocks JSON-RPC command.
type NotifyBlocksCmd struct{}

// NewNotifyBlocksCmd returns a new instance which can be used to issue a
// notifyblocks JSON-RPC command.
func NewNotifyBlocksCmd() *NotifyBlocksCmd {
	return &NotifyBlocksCmd{}
}

// CmdMethod returns the JSON-RPC method name for the passed command or an
// ErrUnregisteredMethod error when the concrete type is not a known command.
func CmdMethod(cmd interface{}) (string, error) {
	switch cmd.(type) {
	case *GetBlockTemplateCmd:
		return "getblocktemplate", nil
	case *SubmitBlockCmd:
		return "submitblock", nil
	case *GetBlockCountCmd:
		return "getblockcount", nil
	case *PingCmd:
		return "ping", nil
	case *NotifyBlocksCmd:
		return "notifyblocks", nil
	}
	return "", makeError(ErrUnregisteredMethod, "unknown command type")
}

// MarshalCmd marshals the passed command into a JSON-RPC request suitable for
// transmission to an RPC server.
func MarshalCmd(id interface{}, cmd interface{}) (*Request, error) {
	method, err := CmdMethod(cmd)
	if err != nil {
		return nil, err
	}

	var params []interface{}
	switch c := cmd.(type) {
	case *GetBlockTemplateCmd:
		if c.Request != nil {
			params = append(params, c.Request)
		}
	case *SubmitBlockCmd:
		params = append(params, c.HexBlock)
	}

	return NewRequest(id, method, params)
}
