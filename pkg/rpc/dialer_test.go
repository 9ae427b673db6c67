package rpc_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kdapp-net/auth-episode/pkg/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebsocketDialer_BasicConnection(t *testing.T) {
	t.Parallel()

	server := createEchoServer(t, nil)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := rpc.DefaultWebsocketDialerConfig
	cfg.EventChanSize = 10
	dialer := rpc.NewWebsocketDialer(cfg)
	errorCh := connectDialer(t, ctx, dialer, server.Listener.Addr().String())

	params, err := rpc.NewParams(map[string]any{"key": "value"})
	require.NoError(t, err)
	req := rpc.NewRequest(rpc.NewPayload(1, "test", params))
	resp, err := dialer.Call(ctx, &req)
	require.NoError(t, err)
	assert.Equal(t, "response_test", resp.Res.Method)
	assert.Equal(t, req.Req.RequestID, resp.Res.RequestID)

	select {
	case err := <-errorCh:
		require.NoError(t, err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWebsocketDialer_ConnectionFailure(t *testing.T) {
	t.Parallel()

	dialer := rpc.NewWebsocketDialer(rpc.DefaultWebsocketDialerConfig)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := dialer.Dial(ctx, "ws://invalid-url-that-does-not-exist:12345", func(err error) {})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "error dialing websocket server")
	assert.False(t, dialer.IsConnected())
}

func TestWebsocketDialer_CallWithoutConnection(t *testing.T) {
	t.Parallel()

	dialer := rpc.NewWebsocketDialer(rpc.DefaultWebsocketDialerConfig)
	req := rpc.NewRequest(rpc.NewPayload(1, "test", nil))

	_, err := dialer.Call(context.Background(), &req)
	assert.ErrorIs(t, err, rpc.ErrNotConnected)
}

func TestWebsocketDialer_CallNilRequest(t *testing.T) {
	t.Parallel()

	dialer := rpc.NewWebsocketDialer(rpc.DefaultWebsocketDialerConfig)
	_, err := dialer.Call(context.Background(), nil)
	assert.ErrorIs(t, err, rpc.ErrNilRequest)
}

func TestWebsocketDialer_CallUsesCustomHandlerResponse(t *testing.T) {
	t.Parallel()

	handlers := map[string]func(*rpc.Request) *rpc.Response{
		"subscribeAcceptedTransactions": func(req *rpc.Request) *rpc.Response {
			resp := rpc.NewResponse(rpc.NewPayload(req.Req.RequestID, "subscribed", nil))
			return &resp
		},
	}
	server := createEchoServer(t, handlers)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dialer := rpc.NewWebsocketDialer(rpc.DefaultWebsocketDialerConfig)
	connectDialer(t, ctx, dialer, server.Listener.Addr().String())

	req := rpc.NewRequest(rpc.NewPayload(42, "subscribeAcceptedTransactions", nil))
	resp, err := dialer.Call(ctx, &req)
	require.NoError(t, err)
	assert.Equal(t, "subscribed", resp.Res.Method)
}

func createEchoServer(t *testing.T, extraHandlers map[string]func(*rpc.Request) *rpc.Response) *httptest.Server {
	if extraHandlers == nil {
		extraHandlers = make(map[string]func(*rpc.Request) *rpc.Response)
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var req rpc.Request
			if err := json.Unmarshal(msg, &req); err != nil {
				continue
			}

			method := req.Req.Method
			var res *rpc.Response
			if handler, exists := extraHandlers[method]; exists {
				res = handler(&req)
			} else {
				if method == "ping" {
					method = "pong"
				} else {
					method = "response_" + method
				}
				resp := rpc.NewResponse(rpc.NewPayload(req.Req.RequestID, method, req.Req.Params))
				res = &resp
			}

			respJSON, err := json.Marshal(res)
			require.NoError(t, err)
			conn.WriteMessage(websocket.TextMessage, respJSON)
		}
	}))
}

func connectDialer(t *testing.T, ctx context.Context, dialer *rpc.WebsocketDialer, addr string) <-chan error {
	errorCh := make(chan error, 1)
	err := dialer.Dial(ctx, "ws://"+addr, func(err error) {
		if err != nil {
			errorCh <- err
		}
	})
	require.NoError(t, err)
	require.True(t, dialer.IsConnected())
	return errorCh
}
