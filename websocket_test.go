package alphasec

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// newWSServer runs handler once per incoming connection and returns the
// ws:// URL to dial.
func newWSServer(t *testing.T, handler func(*websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testStreamConfig(url string) StreamConfig {
	cfg := DefaultStreamConfig(url)
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.MaxReconnectDelay = 50 * time.Millisecond
	return cfg
}

func waitConnected(t *testing.T, s *Stream) {
	t.Helper()
	require.Eventually(t, s.IsConnected, 2*time.Second, 5*time.Millisecond)
}

func TestStreamSubscribeConsumesAck(t *testing.T) {
	t.Parallel()
	url := newWSServer(t, func(conn *websocket.Conn) {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req wsRequest
		if wireJSON.Unmarshal(raw, &req) != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"id":1,"result":"success"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"method":"subscription","params":{"channel":"trade@5_2","result":[{"tradeId":"1","price":"50000"}]}}`))
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	s := NewStream(testStreamConfig(url), nil)
	messages, err := s.TakeMessages()
	require.NoError(t, err)
	require.NoError(t, s.Start())
	defer s.Stop()
	waitConnected(t, s)

	id, err := s.Subscribe("trade@5_2")
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	select {
	case msg := <-messages:
		trade, ok := msg.(*TradeMessage)
		require.True(t, ok, "expected trade before any other message, got %T", msg)
		assert.Equal(t, "trade@5_2", trade.Channel)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestStreamSubscribeWireFormat(t *testing.T) {
	t.Parallel()
	frames := make(chan []byte, 1)
	url := newWSServer(t, func(conn *websocket.Conn) {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frames <- raw
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	s := NewStream(testStreamConfig(url), nil)
	require.NoError(t, s.Start())
	defer s.Stop()
	waitConnected(t, s)

	_, err := s.Subscribe("ticker@5_2")
	require.NoError(t, err)

	select {
	case raw := <-frames:
		assert.JSONEq(t, `{"method":"subscribe","params":{"channels":["ticker@5_2"]},"id":1}`, string(raw))
	case <-time.After(2 * time.Second):
		t.Fatal("no subscribe frame received")
	}
}

func TestStreamReplaysSubscriptionsInOrder(t *testing.T) {
	t.Parallel()
	// First connection: absorb the subscribes, then drop. Second
	// connection: record the replayed ids.
	replayed := make(chan []int, 1)
	var connCount atomic.Int32

	url := newWSServer(t, func(conn *websocket.Conn) {
		n := connCount.Add(1)

		if n == 1 {
			for i := 0; i < 3; i++ {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
			return // drop the connection
		}
		var ids []int
		for i := 0; i < 3; i++ {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req wsRequest
			if wireJSON.Unmarshal(raw, &req) != nil {
				return
			}
			ids = append(ids, req.ID)
		}
		replayed <- ids
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	cfg := testStreamConfig(url)
	cfg.ResumeAfterDrop = true
	s := NewStream(cfg, nil)
	require.NoError(t, s.Start())
	defer s.Stop()
	waitConnected(t, s)

	for _, ch := range []string{"trade@5_2", "ticker@5_2", "depth@5_2"} {
		_, err := s.Subscribe(ch)
		require.NoError(t, err)
	}

	select {
	case ids := <-replayed:
		assert.Equal(t, []int{1, 2, 3}, ids)
	case <-time.After(5 * time.Second):
		t.Fatal("no replay observed")
	}
	stats := s.Stats()
	assert.GreaterOrEqual(t, stats.SuccessfulConnections, uint32(2))
}

func TestStreamStopsAfterDropByDefault(t *testing.T) {
	t.Parallel()
	url := newWSServer(t, func(conn *websocket.Conn) {
		// Accept and immediately drop.
	})

	s := NewStream(testStreamConfig(url), nil)
	messages, err := s.TakeMessages()
	require.NoError(t, err)
	require.NoError(t, s.Start())

	var sawDisconnect bool
	for msg := range messages {
		if _, ok := msg.(*DisconnectedMessage); ok {
			sawDisconnect = true
		}
	}
	assert.True(t, sawDisconnect, "expected a disconnect marker before the channel closed")
	assert.Equal(t, StateDisconnected, s.State())
}

func TestStreamTakeMessagesOnce(t *testing.T) {
	t.Parallel()
	s := NewStream(testStreamConfig("ws://localhost:1"), nil)
	_, err := s.TakeMessages()
	require.NoError(t, err)
	_, err = s.TakeMessages()
	assert.Error(t, err)
}

func TestStreamSendRequiresConnection(t *testing.T) {
	t.Parallel()
	s := NewStream(testStreamConfig("ws://localhost:1"), nil)
	assert.Error(t, s.Send([]byte("x")))
}

func TestStreamUnsubscribeUnknownID(t *testing.T) {
	t.Parallel()
	url := newWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	s := NewStream(testStreamConfig(url), nil)
	require.NoError(t, s.Start())
	defer s.Stop()
	waitConnected(t, s)

	assert.ErrorIs(t, s.Unsubscribe(99), ErrNotFound)

	id, err := s.Subscribe("trade@5_2")
	require.NoError(t, err)
	assert.NoError(t, s.Unsubscribe(id))

	// Ids keep increasing; a released id is never reused.
	next, err := s.Subscribe("depth@5_2")
	require.NoError(t, err)
	assert.Greater(t, next, id)
}

func TestStreamStopIsTerminal(t *testing.T) {
	t.Parallel()
	url := newWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	s := NewStream(testStreamConfig(url), nil)
	require.NoError(t, s.Start())
	waitConnected(t, s)
	s.Stop()
	assert.Equal(t, StateClosed, s.State())
	_, err := s.Subscribe("trade@5_2")
	assert.Error(t, err)
}
