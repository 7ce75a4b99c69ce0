package ingestion

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"nba-temporal-panel/internal/domain"
	"nba-temporal-panel/internal/logging"
	"nba-temporal-panel/internal/observability"
)

// WSConfig configures WebSocket feed behavior.
type WSConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for a subscription confirmation.
	SubscribeTimeout time.Duration
	// Buffer is the number of decoded events held for Next.
	Buffer int
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
		Buffer:            10000,
	}
}

// withDefaults fills zero fields from DefaultWSConfig.
func (c WSConfig) withDefaults() WSConfig {
	d := DefaultWSConfig()
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = d.ReconnectDelay
	}
	if c.MaxReconnectDelay < c.ReconnectDelay {
		c.MaxReconnectDelay = max(d.MaxReconnectDelay, c.ReconnectDelay)
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.SubscribeTimeout <= 0 {
		c.SubscribeTimeout = d.SubscribeTimeout
	}
	if c.Buffer <= 0 {
		c.Buffer = d.Buffer
	}
	return c
}

// WSFilter selects which entities the server streams. Empty means all.
type WSFilter struct {
	Entities []string `json:"entities,omitempty"`
	Sources  []string `json:"sources,omitempty"`
}

// WSFeed subscribes to a live stat stream over a JSON-RPC WebSocket.
// The connection is re-dialed with exponential backoff and the subscription
// restored after every reconnect.
type WSFeed struct {
	endpoint string
	config   WSConfig
	filter   WSFilter
	log      zerolog.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64
	subID     atomic.Int64

	// pending maps request ID to the channel waiting for a subscription ID
	pending   map[uint64]chan int64
	pendingMu sync.Mutex

	// items preserves arrival order of events and decode errors
	items chan feedItem

	done         chan struct{}
	wg           sync.WaitGroup
	reconnecting atomic.Bool
}

// NewWSFeed connects to endpoint and subscribes with filter.
func NewWSFeed(ctx context.Context, endpoint string, config *WSConfig, filter WSFilter) (*WSFeed, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = config.withDefaults()
	}

	f := &WSFeed{
		endpoint: endpoint,
		config:   cfg,
		filter:   filter,
		log:      logging.Component("ws_feed"),
		pending:  make(map[uint64]chan int64),
		items:    make(chan feedItem, cfg.Buffer),
		done:     make(chan struct{}),
	}

	if err := f.connect(ctx); err != nil {
		return nil, err
	}

	f.wg.Add(2)
	go f.readLoop()
	go f.pingLoop()

	subID, err := f.subscribe(ctx)
	if err != nil {
		f.Close()
		return nil, err
	}
	f.log.Info().Str("endpoint", endpoint).Int64("subscription", subID).Msg("subscribed")

	return f, nil
}

// Next returns the next streamed event. Malformed messages surface as errors
// wrapping ErrMalformedMessage. Returns io.EOF after Close.
func (f *WSFeed) Next(ctx context.Context) (*domain.Event, error) {
	select {
	case it := <-f.items:
		return it.event, it.err
	case <-f.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the WebSocket connection.
func (f *WSFeed) Close() error {
	if f.closed.Swap(true) {
		return nil
	}

	close(f.done)

	f.connMu.Lock()
	if f.conn != nil {
		_ = f.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		f.conn.Close()
	}
	f.connMu.Unlock()

	f.wg.Wait()
	return nil
}

func (f *WSFeed) connect(ctx context.Context) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, f.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	f.conn = conn
	return nil
}

// subscribe sends statsSubscribe and waits for the subscription ID.
func (f *WSFeed) subscribe(ctx context.Context) (int64, error) {
	if f.closed.Load() {
		return 0, fmt.Errorf("feed closed")
	}

	reqID := f.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "statsSubscribe",
		Params:  []interface{}{f.filter},
	}

	confirmCh := make(chan int64, 1)
	f.pendingMu.Lock()
	f.pending[reqID] = confirmCh
	f.pendingMu.Unlock()

	forget := func() {
		f.pendingMu.Lock()
		delete(f.pending, reqID)
		f.pendingMu.Unlock()
	}

	if err := f.writeJSON(req); err != nil {
		forget()
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	select {
	case subID := <-confirmCh:
		return subID, nil
	case <-time.After(f.config.SubscribeTimeout):
		forget()
		return 0, fmt.Errorf("subscription timeout after %s", f.config.SubscribeTimeout)
	case <-f.done:
		return 0, fmt.Errorf("feed closed")
	case <-ctx.Done():
		forget()
		return 0, ctx.Err()
	}
}

func (f *WSFeed) writeJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("not connected")
	}
	_ = f.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
	return f.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads messages and dispatches them until Close.
func (f *WSFeed) readLoop() {
	defer f.wg.Done()

	reconnectDelay := f.config.ReconnectDelay

	for !f.closed.Load() {
		f.connMu.Lock()
		conn := f.conn
		f.connMu.Unlock()

		if conn == nil {
			select {
			case <-f.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		_ = conn.SetReadDeadline(time.Now().Add(f.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if f.closed.Load() {
				return
			}

			if !f.reconnecting.Swap(true) {
				f.log.Warn().Err(err).Dur("delay", reconnectDelay).Msg("connection lost, reconnecting")
				go f.reconnect(conn, reconnectDelay)
			}

			reconnectDelay *= 2
			if reconnectDelay > f.config.MaxReconnectDelay {
				reconnectDelay = f.config.MaxReconnectDelay
			}

			select {
			case <-f.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = f.config.ReconnectDelay
		f.handleMessage(message)
	}
}

// reconnect replaces a dead connection and restores the subscription.
func (f *WSFeed) reconnect(dead *websocket.Conn, delay time.Duration) {
	defer f.reconnecting.Store(false)

	select {
	case <-f.done:
		return
	case <-time.After(delay):
	}

	f.connMu.Lock()
	if f.conn == dead && f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	observability.RecordFeedReconnect()
	if err := f.connect(ctx); err != nil {
		// retried on the next read error
		f.log.Warn().Err(err).Msg("reconnect failed")
		return
	}
	if f.closed.Load() {
		f.connMu.Lock()
		f.conn.Close()
		f.connMu.Unlock()
		return
	}

	subID, err := f.subscribe(ctx)
	if err != nil {
		f.log.Warn().Err(err).Msg("resubscribe failed")
		return
	}
	f.log.Info().Int64("subscription", subID).Msg("resubscribed")
}

// handleMessage processes one incoming WebSocket message.
func (f *WSFeed) handleMessage(message []byte) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		f.pushErr(malformed("ws message", err))
		return
	}

	switch {
	case msg.Error != nil:
		f.log.Error().Int("code", msg.Error.Code).Str("msg", msg.Error.Message).Msg("error response")
	case msg.Method == "statsNotification" && msg.Params != nil:
		f.handleNotification(msg.Params)
	case msg.ID != 0 && msg.Result > 0:
		f.handleSubscribeResponse(msg.ID, msg.Result)
	}
}

// handleSubscribeResponse handles subscription confirmation. The ID is
// stored before the next message is read so no notification is missed.
func (f *WSFeed) handleSubscribeResponse(id uint64, subID int64) {
	f.pendingMu.Lock()
	ch, ok := f.pending[id]
	if ok {
		delete(f.pending, id)
	}
	f.pendingMu.Unlock()

	if ok {
		f.subID.Store(subID)
		select {
		case ch <- subID:
		default:
		}
	}
}

func (f *WSFeed) handleNotification(p *wsNotificationParams) {
	if p.Subscription != f.subID.Load() {
		return
	}
	observability.RecordFeedMessage()
	if p.Result.SentAt > 0 {
		lag := time.Since(time.UnixMilli(p.Result.SentAt)).Seconds()
		observability.RecordWSMessageLatency(lag)
	}

	var w wireEvent
	if err := json.Unmarshal(p.Result.Event, &w); err != nil {
		f.pushErr(malformed("notification event", err))
		return
	}

	f.push(feedItem{event: w.toEvent()})
}

func (f *WSFeed) pushErr(err error) {
	f.push(feedItem{err: err})
}

// push blocks until the item is buffered; events are never dropped.
func (f *WSFeed) push(it feedItem) {
	select {
	case f.items <- it:
	case <-f.done:
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (f *WSFeed) pingLoop() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			f.connMu.Lock()
			if f.conn != nil {
				_ = f.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(f.config.WriteTimeout))
			}
			f.connMu.Unlock()
		}
	}
}

type feedItem struct {
	event *domain.Event
	err   error
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsMessage struct {
	JSONRPC string                `json:"jsonrpc"`
	ID      uint64                `json:"id"`
	Result  int64                 `json:"result"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
	Error   *wsError              `json:"error"`
}

type wsError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	SentAt int64           `json:"sent_at"` // Unix milliseconds
	Event  json.RawMessage `json:"event"`
}
