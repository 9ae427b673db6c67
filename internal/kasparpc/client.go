// Package kasparpc is the real-ledger backend for listener.LedgerRPC and
// listener.LedgerSubmitter: a thin Kaspa node client built on pkg/rpc's
// WebSocket transport. internal/devledger plays the same two roles for
// local development; this package is what a deployed organizer peer
// points AUTH_EPISODE_RPC_URL at.
package kasparpc

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kdapp-net/auth-episode/internal/listener"
	"github.com/kdapp-net/auth-episode/internal/telemetry"
	"github.com/kdapp-net/auth-episode/internal/wallet"
	"github.com/kdapp-net/auth-episode/pkg/rpc"
)

// Client is a Kaspa node RPC client that identifies itself with a local
// wallet so submitted transactions are attributed to that wallet's public
// key, the same way devledger stamps its submissions.
type Client struct {
	url string
	wal *wallet.Wallet
	cfg rpc.WebsocketDialerConfig
	lg  telemetry.Logger

	mu     sync.Mutex
	dialer *rpc.WebsocketDialer

	nextReqID uint64
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithDialerConfig overrides the default WebSocket dialer configuration.
func WithDialerConfig(cfg rpc.WebsocketDialerConfig) Option {
	return func(c *Client) { c.cfg = cfg }
}

// WithLogger overrides the client's logger.
func WithLogger(lg telemetry.Logger) Option {
	return func(c *Client) { c.lg = lg }
}

// New constructs a Client that dials url on demand and attributes
// submitted transactions to wal's public key.
func New(url string, wal *wallet.Wallet, opts ...Option) *Client {
	c := &Client{
		url: url,
		wal: wal,
		cfg: rpc.DefaultWebsocketDialerConfig,
		lg:  telemetry.NewLogger("kasparpc"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.nextReqID = uint64(rpc.DefaultWebsocketDialerConfig.PingRequestID) + 1
	return c
}

func (c *Client) reqID() uint64 {
	return atomic.AddUint64(&c.nextReqID, 1)
}

// connect returns the current dialer, establishing a fresh connection if
// none is live. Callers hold no lock across the returned dialer's use;
// WebsocketDialer is itself safe for concurrent use.
func (c *Client) connect(ctx context.Context) (*rpc.WebsocketDialer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dialer != nil && c.dialer.IsConnected() {
		return c.dialer, nil
	}

	d := rpc.NewWebsocketDialer(c.cfg)
	closed := make(chan struct{})
	if err := d.Dial(ctx, c.url, func(err error) {
		if err != nil {
			c.lg.Warn("kaspa rpc connection closed", "error", err)
		}
		close(closed)
	}); err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.url, err)
	}
	c.dialer = d
	return d, nil
}

// Submit implements listener.LedgerSubmitter by broadcasting raw as a
// transaction funded by the client's wallet.
func (c *Client) Submit(ctx context.Context, raw []byte) (string, error) {
	d, err := c.connect(ctx)
	if err != nil {
		return "", err
	}

	params, err := rpc.NewParams(submitParams{
		Payload: hex.EncodeToString(raw),
		Sender:  hex.EncodeToString(c.wal.PublicKey().Bytes()),
	})
	if err != nil {
		return "", err
	}
	req := rpc.NewRequest(rpc.NewPayload(c.reqID(), rpc.SubmitTransactionMethod.String(), params))

	resp, err := d.Call(ctx, &req)
	if err != nil {
		return "", err
	}
	if rpcErr := resp.Error(); rpcErr != nil {
		return "", rpcErr
	}

	var result submitResult
	if err := resp.Res.Params.Translate(&result); err != nil {
		return "", fmt.Errorf("decode submitTransaction result: %w", err)
	}
	return result.TxID, nil
}

// Subscribe implements listener.LedgerRPC by asking the node to replay
// accepted transactions after afterBlockID and streaming both accepted
// transactions and reorg notifications from the connection's event
// channel. The returned error channel closes when the underlying
// connection drops; the listener package treats that as a signal to call
// Subscribe again with its updated checkpoint.
func (c *Client) Subscribe(ctx context.Context, afterBlockID string) (<-chan listener.AcceptedTransaction, <-chan listener.ReorgEvent, <-chan error, error) {
	d, err := c.connect(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	params, err := rpc.NewParams(subscribeParams{AfterBlockID: afterBlockID})
	if err != nil {
		return nil, nil, nil, err
	}
	req := rpc.NewRequest(rpc.NewPayload(c.reqID(), rpc.SubscribeTxMethod.String(), params))
	resp, err := d.Call(ctx, &req)
	if err != nil {
		return nil, nil, nil, err
	}
	if rpcErr := resp.Error(); rpcErr != nil {
		return nil, nil, nil, rpcErr
	}

	txCh := make(chan listener.AcceptedTransaction, 64)
	reorgCh := make(chan listener.ReorgEvent, 4)
	errCh := make(chan error, 1)

	go c.pump(ctx, d, txCh, reorgCh, errCh)

	return txCh, reorgCh, errCh, nil
}

func (c *Client) pump(ctx context.Context, d *rpc.WebsocketDialer, txCh chan<- listener.AcceptedTransaction, reorgCh chan<- listener.ReorgEvent, errCh chan<- error) {
	defer close(txCh)
	defer close(reorgCh)
	defer close(errCh)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-d.EventCh():
			if !ok || event == nil {
				errCh <- fmt.Errorf("kaspa rpc event stream closed")
				return
			}
			c.routeEvent(event, txCh, reorgCh)
		}
	}
}

func (c *Client) routeEvent(event *rpc.Response, txCh chan<- listener.AcceptedTransaction, reorgCh chan<- listener.ReorgEvent) {
	switch event.Res.Method {
	case rpc.NotifyTxMethod.String():
		var wire acceptedTxWire
		if err := event.Res.Params.Translate(&wire); err != nil {
			c.lg.Warn("malformed acceptedTransaction event", "error", err)
			return
		}
		tx, err := wire.decode()
		if err != nil {
			c.lg.Warn("undecodable acceptedTransaction event", "error", err)
			return
		}
		select {
		case txCh <- tx:
		default:
			c.lg.Warn("transaction channel full, dropping event", "txId", tx.TxID)
		}
	case rpc.NotifyReorgMethod.String():
		var wire reorgWire
		if err := event.Res.Params.Translate(&wire); err != nil {
			c.lg.Warn("malformed reorg event", "error", err)
			return
		}
		select {
		case reorgCh <- listener.ReorgEvent{Depth: wire.Depth}:
		default:
			c.lg.Warn("reorg channel full, dropping event")
		}
	default:
		c.lg.Debug("ignoring unrecognized rpc event", "method", event.Res.Method)
	}
}

type submitParams struct {
	Payload string `json:"payload"`
	Sender  string `json:"sender"`
}

type submitResult struct {
	TxID string `json:"txId"`
}

type subscribeParams struct {
	AfterBlockID string `json:"afterBlockId"`
}

type reorgWire struct {
	Depth int `json:"depth"`
}

type acceptedTxWire struct {
	TxID              string `json:"txId"`
	TxIndex           uint32 `json:"txIndex"`
	BlockID           string `json:"blockId"`
	AcceptingTime     uint64 `json:"acceptingTime"`
	AcceptingDAAScore uint64 `json:"acceptingDaaScore"`
	Payload           string `json:"payload"`
	SenderPublicKey   string `json:"senderPublicKey"`
}

func (w acceptedTxWire) decode() (listener.AcceptedTransaction, error) {
	payload, err := hex.DecodeString(w.Payload)
	if err != nil {
		return listener.AcceptedTransaction{}, fmt.Errorf("decode payload: %w", err)
	}
	sender, err := hex.DecodeString(w.SenderPublicKey)
	if err != nil {
		return listener.AcceptedTransaction{}, fmt.Errorf("decode sender public key: %w", err)
	}
	return listener.AcceptedTransaction{
		TxID:              w.TxID,
		TxIndex:           w.TxIndex,
		BlockID:           w.BlockID,
		AcceptingTime:     w.AcceptingTime,
		AcceptingDAAScore: w.AcceptingDAAScore,
		Payload:           payload,
		SenderPublicKey:   sender,
	}, nil
}
