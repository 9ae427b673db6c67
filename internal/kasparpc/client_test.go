package kasparpc_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kdapp-net/auth-episode/internal/kasparpc"
	"github.com/kdapp-net/auth-episode/internal/wallet"
	"github.com/kdapp-net/auth-episode/pkg/rpc"
)

// fakeNode is a minimal stand-in for a Kaspa node's RPC websocket: it acks
// submitTransaction and subscribeAcceptedTransactions calls, then pushes
// one accepted-transaction event shortly after a subscription is
// acknowledged.
func fakeNode(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
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

			switch req.Req.Method {
			case rpc.PingMethod.String():
				resp := rpc.NewResponse(rpc.NewPayload(req.Req.RequestID, rpc.PongMethod.String(), nil))
				writeResponse(t, conn, resp)
			case rpc.SubmitTransactionMethod.String():
				params, _ := rpc.NewParams(map[string]string{"txId": "node-tx-1"})
				resp := rpc.NewResponse(rpc.NewPayload(req.Req.RequestID, "submitted", params))
				writeResponse(t, conn, resp)
			case rpc.SubscribeTxMethod.String():
				resp := rpc.NewResponse(rpc.NewPayload(req.Req.RequestID, "subscribed", nil))
				writeResponse(t, conn, resp)

				go func() {
					time.Sleep(20 * time.Millisecond)
					params, _ := rpc.NewParams(map[string]any{
						"txId":              "node-tx-2",
						"txIndex":           0,
						"blockId":           "block-7",
						"acceptingTime":     1_700_000_001,
						"acceptingDaaScore": 7,
						"payload":           hex.EncodeToString([]byte("payload")),
						"senderPublicKey":   hex.EncodeToString([]byte{1, 2, 3}),
					})
					event := rpc.NewResponse(rpc.NewPayload(0, rpc.NotifyTxMethod.String(), params))
					writeResponse(t, conn, event)
				}()
			}
		}
	}))
}

func writeResponse(t *testing.T, conn *websocket.Conn, resp rpc.Response) {
	t.Helper()
	buf, err := json.Marshal(resp)
	if err != nil {
		t.Errorf("marshal response: %v", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, buf); err != nil {
		t.Logf("write response: %v", err)
	}
}

func newTestClient(t *testing.T, url string) *kasparpc.Client {
	t.Helper()
	dir := t.TempDir()
	wal, err := wallet.Load(dir + "/wallet.key")
	if err != nil {
		t.Fatalf("load wallet: %v", err)
	}
	return kasparpc.New("ws"+url[len("http"):], wal)
}

func TestClientSubmit(t *testing.T) {
	server := fakeNode(t)
	defer server.Close()

	client := newTestClient(t, server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	txID, err := client.Submit(ctx, []byte("hello"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if txID != "node-tx-1" {
		t.Fatalf("txID = %q, want node-tx-1", txID)
	}
}

func TestClientSubscribeDeliversAcceptedTransaction(t *testing.T) {
	server := fakeNode(t)
	defer server.Close()

	client := newTestClient(t, server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	txCh, _, _, err := client.Subscribe(ctx, "")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	select {
	case tx := <-txCh:
		if tx.TxID != "node-tx-2" {
			t.Fatalf("tx.TxID = %q, want node-tx-2", tx.TxID)
		}
		if tx.BlockID != "block-7" {
			t.Fatalf("tx.BlockID = %q, want block-7", tx.BlockID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for accepted transaction event")
	}
}
