package walletconnect

import (
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"
)

// Session is what the wallet returned when it approved the connection.
type Session struct {
	Meta     clientMeta `json:"peerMeta"`
	ChainID  int64      `json:"chainId"`
	Accounts []string   `json:"accounts"`
	PeerID   string     `json:"peerId"`
	Approved bool       `json:"approved"`
}

type peer struct {
	PeerID   string      `json:"peerId"`
	PeerMeta clientMeta  `json:"peerMeta"`
	ChainID  interface{} `json:"chainId"`
}

type clientMeta struct {
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Icons       []string `json:"icons"`
	Name        string   `json:"name"`
}

type sessionUpdate struct {
	Approved bool     `json:"approved"`
	ChainID  int64    `json:"chainId,omitempty"`
	Accounts []string `json:"accounts,omitempty"`
}

type jsonRpcRequest struct {
	Id      int64         `json:"id"`
	JSONRpc string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

var lastPayloadID int64

// payloadID follows the walletconnect client: millisecond time scaled by 1000
// plus a counter, monotonic within the process.
func payloadID() int64 {
	for {
		last := atomic.LoadInt64(&lastPayloadID)
		id := time.Now().UnixNano() / int64(time.Millisecond) * 1000
		if id <= last {
			id = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastPayloadID, last, id) {
			return id
		}
	}
}

func newJSONRpcRequest(method string, params ...interface{}) *jsonRpcRequest {
	r := &jsonRpcRequest{
		Id:      payloadID(),
		JSONRpc: "2.0",
		Method:  method,
		Params:  []interface{}{},
	}
	if len(params) > 0 {
		r.Params = params
	}
	return r
}

func (e *jsonRpcRequest) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

func (e *jsonRpcRequest) IsSilentPayload() bool {
	return strings.HasPrefix(e.Method, "wc_")
}
