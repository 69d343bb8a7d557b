package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSConfig configures the websocket feed.
type WSConfig struct {
	URL               string        `mapstructure:"url"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnectDelay time.Duration `mapstructure:"max_reconnect_delay"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

// DefaultWSConfig returns default websocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		HandshakeTimeout:  10 * time.Second,
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

func (c WSConfig) withDefaults() WSConfig {
	def := DefaultWSConfig()
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = def.ReconnectDelay
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = def.MaxReconnectDelay
	}
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	return c
}

// Wire messages.
const (
	msgSubscribe = "subscribe"
	msgBook      = "orderbook_snapshot"
	msgTrade     = "trade"
	msgError     = "error"
)

type wsCommand struct {
	Type    string   `json:"type"`
	Tickers []string `json:"tickers"`
}

type wsMessage struct {
	Type    string          `json:"type"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data"`
}

var errClientClosed = errors.New("market: websocket client closed")

// WSClient streams order books and trades into an Aggregator.
type WSClient struct {
	cfg    WSConfig
	agg    *Aggregator
	logger *zap.Logger

	conn   *websocket.Conn
	connMu sync.Mutex

	connected atomic.Bool
	closed    atomic.Bool
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewWSClient creates a client and attaches it to agg.
func NewWSClient(agg *Aggregator, cfg WSConfig, logger ...*zap.Logger) *WSClient {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}

	c := &WSClient{
		cfg:    cfg.withDefaults(),
		agg:    agg,
		logger: l,
		done:   make(chan struct{}),
	}
	agg.Attach(c)
	return c
}

// Connect dials the feed and subscribes every ticker the aggregator already knows.
func (c *WSClient) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return errClientClosed
	}
	if c.connected.Load() {
		return nil
	}

	if err := c.dial(ctx); err != nil {
		return err
	}
	c.connected.Store(true)

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	if tickers := c.agg.Subscribed(); len(tickers) > 0 {
		return c.SubscribeTickers(ctx, tickers)
	}
	return nil
}

func (c *WSClient) dial(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.logger.Info("market feed connected", zap.String("url", c.cfg.URL))
	return nil
}

// SubscribeTickers sends a subscribe command. Before Connect it is a no-op;
// Connect subscribes everything the aggregator holds.
func (c *WSClient) SubscribeTickers(ctx context.Context, tickers []string) error {
	if c.closed.Load() {
		return errClientClosed
	}
	if !c.connected.Load() {
		return nil
	}
	return c.write(wsCommand{Type: msgSubscribe, Tickers: tickers})
}

func (c *WSClient) write(v any) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("market: not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Disconnect closes the connection and stops background loops. Safe to call more than once.
func (c *WSClient) Disconnect() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()
	c.logger.Info("market feed disconnected")
	return nil
}

func (c *WSClient) readLoop() {
	defer c.wg.Done()

	delay := c.cfg.ReconnectDelay
	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.logger.Warn("market feed read failed", zap.Error(err), zap.Duration("retry_in", delay))
			if !c.reconnect(delay) {
				return
			}
			delay *= 2
			if delay > c.cfg.MaxReconnectDelay {
				delay = c.cfg.MaxReconnectDelay
			}
			continue
		}

		delay = c.cfg.ReconnectDelay
		c.handle(data)
	}
}

// reconnect waits, redials and resubscribes. Returns false once the client is closed.
func (c *WSClient) reconnect(delay time.Duration) bool {
	select {
	case <-c.done:
		return false
	case <-time.After(delay):
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandshakeTimeout)
	defer cancel()

	c.connMu.Lock()
	old := c.conn
	c.connMu.Unlock()

	if err := c.dial(ctx); err != nil {
		c.logger.Warn("market feed reconnect failed", zap.Error(err))
		return !c.closed.Load()
	}
	old.Close()

	if c.closed.Load() {
		// Disconnect raced with the redial
		c.connMu.Lock()
		c.conn.Close()
		c.connMu.Unlock()
		return false
	}

	if tickers := c.agg.Subscribed(); len(tickers) > 0 {
		if err := c.write(wsCommand{Type: msgSubscribe, Tickers: tickers}); err != nil {
			c.logger.Warn("market feed resubscribe failed", zap.Error(err))
		}
	}
	return !c.closed.Load()
}

func (c *WSClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout))
			}
			c.connMu.Unlock()
		}
	}
}

func (c *WSClient) handle(data []byte) {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Debug("market feed message dropped", zap.Error(err))
		return
	}

	switch msg.Type {
	case msgBook:
		var u BookUpdate
		if err := json.Unmarshal(msg.Data, &u); err != nil {
			c.logger.Debug("bad orderbook message", zap.Error(err))
			return
		}
		c.agg.ApplyBook(u)
	case msgTrade:
		var u TradeUpdate
		if err := json.Unmarshal(msg.Data, &u); err != nil {
			c.logger.Debug("bad trade message", zap.Error(err))
			return
		}
		c.agg.ApplyTrade(u)
	case msgError:
		c.logger.Warn("market feed error", zap.String("message", msg.Message))
	}
}
