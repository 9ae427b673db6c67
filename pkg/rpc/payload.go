// Package rpc implements a minimal JSON-over-WebSocket request/response
// transport for talking to a Kaspa node's RPC endpoint. It is deliberately
// narrow: one request in flight per RequestID, one event channel for
// everything the server sends without being asked. internal/kasparpc
// builds the listener.LedgerRPC and listener.LedgerSubmitter surfaces on
// top of it.
package rpc

import "encoding/json"

// Method names this transport exchanges. Kaspa's own wRPC surface has many
// more; only the ones this module's client actually calls are named here.
type Method string

const (
	PingMethod              Method = "ping"
	PongMethod              Method = "pong"
	ErrorMethod             Method = "error"
	SubscribeTxMethod       Method = "subscribeAcceptedTransactions"
	NotifyTxMethod          Method = "acceptedTransaction"
	NotifyReorgMethod       Method = "reorg"
	SubmitTransactionMethod Method = "submitTransaction"
)

func (m Method) String() string { return string(m) }

// Params is a method's argument or result bag, kept as raw JSON per key so
// callers decode only the fields they expect.
type Params map[string]json.RawMessage

// Translate decodes p into dst via the same json tags dst's struct already
// carries, by round-tripping through json.Marshal/Unmarshal.
func (p Params) Translate(dst any) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// NewParams builds Params from a struct or map by marshaling each of its
// top-level fields.
func NewParams(v any) (Params, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var p Params
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return p, nil
}

const errorParamKey = "error"

// NewErrorParams builds a Params map carrying a single error message under
// the conventional "error" key.
func NewErrorParams(msg string) Params {
	encoded, _ := json.Marshal(msg)
	return Params{errorParamKey: encoded}
}

// Error returns the error carried in p under the conventional "error" key,
// or nil if none is present.
func (p Params) Error() error {
	raw, ok := p[errorParamKey]
	if !ok {
		return nil
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err != nil {
		return errString(string(raw))
	}
	return errString(msg)
}

type errString string

func (e errString) Error() string { return string(e) }

// Payload is one request or response body: an identifier correlating a
// response to its request, the method name, and the method's params.
type Payload struct {
	RequestID uint64 `json:"requestId"`
	Method    string `json:"method"`
	Params    Params `json:"params"`
}

// NewPayload builds a Payload. RequestID 0 marks a server-initiated
// notification that expects no reply.
func NewPayload(requestID uint64, method string, params Params) Payload {
	return Payload{RequestID: requestID, Method: method, Params: params}
}

// Request is a client-to-server call.
type Request struct {
	Req Payload `json:"req"`
}

// NewRequest wraps payload as a Request.
func NewRequest(payload Payload) Request {
	return Request{Req: payload}
}

// Response is a server-to-client reply or unsolicited event.
type Response struct {
	Res Payload `json:"res"`
}

// NewResponse wraps payload as a Response.
func NewResponse(payload Payload) Response {
	return Response{Res: payload}
}

// NewErrorResponse builds a Response whose params carry errMsg under the
// conventional error key, addressed to requestID.
func NewErrorResponse(requestID uint64, errMsg string) Response {
	return NewResponse(NewPayload(requestID, ErrorMethod.String(), NewErrorParams(errMsg)))
}

// Error returns the error carried in a Response built by NewErrorResponse,
// or nil if the response does not represent an error.
func (r Response) Error() error {
	if r.Res.Method != ErrorMethod.String() {
		return nil
	}
	return r.Res.Params.Error()
}
