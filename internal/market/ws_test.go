package market

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/newthinker/arena/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func feedServer(t *testing.T, subscribed chan<- []string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd wsCommand
		if err := json.Unmarshal(msg, &cmd); err != nil {
			t.Errorf("unmarshal command: %v", err)
			return
		}
		subscribed <- cmd.Tickers

		book, _ := json.Marshal(BookUpdate{
			Ticker: cmd.Tickers[0],
			Yes:    []core.Quote{{Price: 61, Quantity: 10}},
			No:     []core.Quote{{Price: 41, Quantity: 10}},
		})
		trade, _ := json.Marshal(TradeUpdate{Ticker: cmd.Tickers[0], Side: core.SideYes, Price: 60, Quantity: 4})

		conn.WriteJSON(wsMessage{Type: msgBook, Data: book})
		conn.WriteJSON(wsMessage{Type: "heartbeat"})
		conn.WriteJSON(wsMessage{Type: msgTrade, Data: trade})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestWSClient_StreamsIntoAggregator(t *testing.T) {
	subscribed := make(chan []string, 1)
	server := feedServer(t, subscribed)
	defer server.Close()

	agg := NewAggregator(AggregatorConfig{})
	client := NewWSClient(agg, WSConfig{URL: "ws" + strings.TrimPrefix(server.URL, "http")})

	require.NoError(t, client.Connect(context.Background()))
	defer client.Disconnect()

	require.NoError(t, agg.Subscribe(context.Background(), []string{"RAIN"}))

	select {
	case tickers := <-subscribed:
		assert.Equal(t, []string{"RAIN"}, tickers)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for subscribe")
	}

	assert.Eventually(t, func() bool {
		snap, ok := agg.GetMarketData("RAIN")
		return ok && snap.LastPrice == 60 && snap.Volume == 4
	}, 2*time.Second, 10*time.Millisecond)

	snap, _ := agg.GetMarketData("RAIN")
	best, ok := snap.Book.Best(core.SideYes)
	require.True(t, ok)
	assert.Equal(t, 61.0, best.Price)
}

func TestWSClient_SubscribesKnownTickersOnConnect(t *testing.T) {
	subscribed := make(chan []string, 1)
	server := feedServer(t, subscribed)
	defer server.Close()

	agg := NewAggregator(AggregatorConfig{})
	client := NewWSClient(agg, WSConfig{URL: "ws" + strings.TrimPrefix(server.URL, "http")})

	// before connect the subscription is only recorded
	require.NoError(t, agg.Subscribe(context.Background(), []string{"A", "B"}))
	require.NoError(t, client.Connect(context.Background()))
	defer client.Disconnect()

	select {
	case tickers := <-subscribed:
		assert.Equal(t, []string{"A", "B"}, tickers)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for subscribe")
	}
}

func TestWSClient_Disconnect(t *testing.T) {
	server := feedServer(t, make(chan []string, 1))
	defer server.Close()

	agg := NewAggregator(AggregatorConfig{})
	client := NewWSClient(agg, WSConfig{URL: "ws" + strings.TrimPrefix(server.URL, "http")})
	require.NoError(t, client.Connect(context.Background()))

	assert.NoError(t, client.Disconnect())
	assert.NoError(t, client.Disconnect(), "double disconnect should be safe")
	assert.Error(t, client.Connect(context.Background()))
}

func TestWSClient_DialFailure(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{})
	client := NewWSClient(agg, WSConfig{URL: "ws://127.0.0.1:1", HandshakeTimeout: 200 * time.Millisecond})

	assert.Error(t, client.Connect(context.Background()))
	assert.NoError(t, client.Disconnect())
}

func TestWSConfig_Defaults(t *testing.T) {
	cfg := WSConfig{PingInterval: 5 * time.Second}.withDefaults()
	assert.Equal(t, 5*time.Second, cfg.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.ReadTimeout)
}
