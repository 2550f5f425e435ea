package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"amm_go/internal/domain"
)

type counter struct{ n atomic.Int32 }

func (c *counter) IncrementConnections() { c.n.Add(1) }
func (c *counter) DecrementConnections() { c.n.Add(-1) }

func startHub(t *testing.T) (*Hub, *counter, string) {
	t.Helper()
	cnt := &counter{}
	hub := NewHub(nil, cnt)
	go hub.Run()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		srv.Close()
		hub.Stop()
	})
	return hub, cnt, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func TestHub_BroadcastsNotifications(t *testing.T) {
	hub, cnt, url := startHub(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return cnt.n.Load() == 1 }, time.Second, 10*time.Millisecond)

	pool := common.HexToHash("0x01")
	require.NoError(t, hub.Emit(context.Background(), domain.PoolCreated{Pool: pool}))

	msg := readMessage(t, conn)
	require.Equal(t, domain.KindPoolCreated, msg.Kind)
	require.Equal(t, pool.Hex(), msg.Pool)
	require.Contains(t, string(msg.Event), pool.Hex())
}

func TestHub_PoolFilter(t *testing.T) {
	hub, _, url := startHub(t)
	poolA := common.HexToHash("0x0a")
	poolB := common.HexToHash("0x0b")

	filtered := dial(t, url+"?pool="+poolA.Hex())
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, hub.Emit(ctx, domain.TokensSwapped{Pool: poolB}))
	require.NoError(t, hub.Emit(ctx, domain.TokensSwapped{Pool: poolA}))

	// The poolB frame is skipped, so the first frame read is poolA's.
	msg := readMessage(t, filtered)
	require.Equal(t, poolA.Hex(), msg.Pool)
}

func TestHub_UnregisterOnClose(t *testing.T) {
	hub, cnt, url := startHub(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return cnt.n.Load() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHub_EmitNeverFails(t *testing.T) {
	hub := NewHub(nil, nil) // not running: the queue fills and frames drop
	for i := 0; i < channelBufferSize+10; i++ {
		require.NoError(t, hub.Emit(context.Background(), domain.PoolCreated{}))
	}
}
