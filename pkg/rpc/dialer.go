package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kdapp-net/auth-episode/internal/telemetry"
)

// Dialer errors.
var (
	ErrAlreadyConnected  = fmt.Errorf("already connected")
	ErrNotConnected      = fmt.Errorf("not connected to server")
	ErrConnectionTimeout = fmt.Errorf("websocket connection timeout")
	ErrReadingMessage    = fmt.Errorf("error reading message")
	ErrDialingWebsocket  = fmt.Errorf("error dialing websocket server")
	ErrNilRequest        = fmt.Errorf("nil request")
	ErrMarshalingRequest = fmt.Errorf("error marshaling request")
	ErrSendingRequest    = fmt.Errorf("error sending request")
	ErrNoResponse        = fmt.Errorf("no response received")
	ErrSendingPing       = fmt.Errorf("error sending ping")
)

// Dialer is the client side of the transport: establish a connection, make
// request/response calls against it, and drain unsolicited events.
type Dialer interface {
	// Dial returns once the connection is established; its read, ping and
	// shutdown loops run in background goroutines. handleClosure is invoked
	// once, after the connection ends, with the first error that ended it
	// (nil if there was none).
	Dial(ctx context.Context, url string, handleClosure func(err error)) error

	IsConnected() bool

	// Call sends a request and waits for the response carrying the same
	// RequestID, or for ctx to end.
	Call(ctx context.Context, req *Request) (*Response, error)

	// EventCh receives responses that don't match any pending Call.
	EventCh() <-chan *Response
}

type dialCtx struct {
	ctx  context.Context
	conn *websocket.Conn
	lg   telemetry.Logger
}

// WebsocketDialerConfig configures a WebsocketDialer.
type WebsocketDialerConfig struct {
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PingRequestID    uint64
	EventChanSize    int
}

// DefaultWebsocketDialerConfig is a sensible starting point for connecting
// to a Kaspa node's RPC websocket.
var DefaultWebsocketDialerConfig = WebsocketDialerConfig{
	HandshakeTimeout: 5 * time.Second,
	PingInterval:     10 * time.Second,
	PingRequestID:    100,
	EventChanSize:    256,
}

// WebsocketDialer implements Dialer over a gorilla/websocket connection.
type WebsocketDialer struct {
	cfg           WebsocketDialerConfig
	dialCtx       *dialCtx
	eventCh       chan *Response
	responseSinks map[uint64]chan *Response
	mu            sync.RWMutex
	writeMu       sync.Mutex
}

var _ Dialer = (*WebsocketDialer)(nil)

// NewWebsocketDialer constructs a WebsocketDialer with the given config.
func NewWebsocketDialer(cfg WebsocketDialerConfig) *WebsocketDialer {
	return &WebsocketDialer{
		cfg:           cfg,
		eventCh:       make(chan *Response, cfg.EventChanSize),
		responseSinks: make(map[uint64]chan *Response),
	}
}

func (d *WebsocketDialer) Dial(parentCtx context.Context, url string, handleClosure func(err error)) error {
	if d.IsConnected() {
		return ErrAlreadyConnected
	}

	dialer := websocket.Dialer{
		HandshakeTimeout:  d.cfg.HandshakeTimeout,
		EnableCompression: true,
	}
	conn, _, err := dialer.DialContext(parentCtx, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDialingWebsocket, err)
	}

	childCtx, cancel := context.WithCancel(parentCtx)
	wg := sync.WaitGroup{}
	wg.Add(3)

	var closureErr error
	var closureErrMu sync.Mutex
	childHandleClosure := func(err error) {
		closureErrMu.Lock()
		defer closureErrMu.Unlock()
		if err != nil && closureErr == nil {
			closureErr = err
		}
		cancel()
		wg.Done()
	}

	d.mu.Lock()
	d.dialCtx = &dialCtx{
		ctx:  childCtx,
		conn: conn,
		lg:   telemetry.NewLogger("rpc.dialer"),
	}
	d.eventCh = make(chan *Response, d.cfg.EventChanSize)
	d.mu.Unlock()

	go d.closeOnContextDone(childCtx, childHandleClosure)
	go d.readMessages(childCtx, childHandleClosure)
	go d.pingPeriodically(childCtx, childHandleClosure)

	go func() {
		wg.Wait()
		closureErrMu.Lock()
		defer closureErrMu.Unlock()
		handleClosure(closureErr)
	}()

	return nil
}

func (d *WebsocketDialer) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dialCtx != nil && d.dialCtx.ctx.Err() == nil
}

func (d *WebsocketDialer) closeOnContextDone(ctx context.Context, handleClosure func(err error)) {
	<-ctx.Done()

	d.mu.RLock()
	conn := d.dialCtx.conn
	d.mu.RUnlock()

	err := conn.Close()

	d.mu.Lock()
	for _, sink := range d.responseSinks {
		close(sink)
	}
	d.responseSinks = make(map[uint64]chan *Response)
	d.mu.Unlock()

	handleClosure(err)
}

func (d *WebsocketDialer) readMessages(ctx context.Context, handleClosure func(err error)) {
	d.mu.RLock()
	conn := d.dialCtx.conn
	lg := d.dialCtx.lg
	d.mu.RUnlock()

	for {
		_, messageBytes, err := conn.ReadMessage()
		if ctx.Err() != nil {
			handleClosure(nil)
			return
		} else if _, ok := err.(net.Error); ok {
			handleClosure(fmt.Errorf("%w: %w", ErrConnectionTimeout, err))
			lg.Error("websocket connection timeout", "error", err)
			return
		} else if err != nil {
			handleClosure(fmt.Errorf("%w: %w", ErrReadingMessage, err))
			lg.Error("websocket read error", "error", err)
			return
		}

		var msg Response
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			lg.Warn("malformed message", "error", err)
			continue
		}

		d.mu.Lock()
		responseSink, exists := d.responseSinks[msg.Res.RequestID]
		d.mu.Unlock()
		if !exists {
			responseSink = d.eventCh
		}

		select {
		case <-ctx.Done():
			handleClosure(nil)
			return
		case responseSink <- &msg:
		default:
			lg.Warn("response channel full, dropping message", "requestId", msg.Res.RequestID)
		}
	}
}

func (d *WebsocketDialer) Call(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}

	d.mu.Lock()
	if d.dialCtx == nil || d.dialCtx.ctx.Err() != nil {
		d.mu.Unlock()
		return nil, ErrNotConnected
	}
	conn := d.dialCtx.conn
	connCtx := d.dialCtx.ctx
	responseSink := make(chan *Response, 1)
	d.responseSinks[req.Req.RequestID] = responseSink
	d.mu.Unlock()

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMarshalingRequest, err)
	}

	d.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, reqJSON)
	d.writeMu.Unlock()
	if err != nil {
		d.mu.Lock()
		delete(d.responseSinks, req.Req.RequestID)
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", ErrSendingRequest, err)
	}

	var res *Response
	select {
	case <-ctx.Done():
	case <-connCtx.Done():
	case res = <-responseSink:
	}

	d.mu.Lock()
	delete(d.responseSinks, req.Req.RequestID)
	d.mu.Unlock()

	if res == nil {
		return nil, fmt.Errorf("%w for request %d", ErrNoResponse, req.Req.RequestID)
	}
	return res, nil
}

func (d *WebsocketDialer) pingPeriodically(ctx context.Context, handleClosure func(err error)) {
	d.mu.RLock()
	lg := d.dialCtx.lg
	d.mu.RUnlock()

	ticker := time.NewTicker(d.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			handleClosure(nil)
			return
		case <-ticker.C:
			payload := NewPayload(d.cfg.PingRequestID, PingMethod.String(), nil)
			req := NewRequest(payload)

			res, err := d.Call(ctx, &req)
			if err != nil {
				handleClosure(fmt.Errorf("%w: %w", ErrSendingPing, err))
				lg.Error("error sending ping", "error", err)
				return
			}
			if res.Res.Method != PongMethod.String() {
				lg.Warn("unexpected response to ping", "method", res.Res.Method)
			}
		}
	}
}

// EventCh returns the channel of unsolicited server events.
func (d *WebsocketDialer) EventCh() <-chan *Response {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.eventCh
}
