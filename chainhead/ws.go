package chainhead

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/alialobidm/polkadot-api/internal/config"
	"github.com/alialobidm/polkadot-api/internal/logz"
	"github.com/alialobidm/polkadot-api/internal/metrics"
)

// SocketConfig defines configuration for the WebSocket source
type SocketConfig struct {
	// Chain RPC URL; http(s) schemes are rewritten to ws(s)
	URL string
	// Timeout for individual request/response calls
	RequestTimeout time.Duration
	// Delay between reconnection attempts
	ReconnectDelay time.Duration
	// Keepalive ping interval
	PingInterval time.Duration
	// Maximum consecutive reconnection attempts
	MaxReconnects int
	// Log level for the source's logger
	LogLevel logz.LogLevel
}

// DefaultSocketConfig returns a default socket configuration
func DefaultSocketConfig(rawURL string) *SocketConfig {
	return &SocketConfig{
		URL:            rawURL,
		RequestTimeout: 30 * time.Second,
		ReconnectDelay: 5 * time.Second,
		PingInterval:   30 * time.Second,
		MaxReconnects:  10,
		LogLevel:       logz.INFO,
	}
}

// SocketConfigFrom maps a loaded client configuration onto a socket
// configuration.
func SocketConfigFrom(cfg *config.Config) *SocketConfig {
	level, _ := logz.ParseLevel(cfg.LogLevel)
	return &SocketConfig{
		URL:            cfg.Endpoint,
		RequestTimeout: cfg.GetRequestTimeout(),
		ReconnectDelay: cfg.GetReconnectDelay(),
		PingInterval:   cfg.GetPingInterval(),
		MaxReconnects:  cfg.MaxReconnects,
		LogLevel:       level,
	}
}

// rpcRequest is a JSON-RPC 2.0 request frame
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// rpcResponse is a JSON-RPC 2.0 response or notification frame
type rpcResponse struct {
	ID     uint64          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// followEvent is a chain-head notification payload
type followEvent struct {
	Event string `json:"event"` // "bestBlock" | "finalizedBlock"
	Block *Block `json:"block"`
}

// SocketSource implements Source over a JSON-RPC WebSocket connection
// with automatic reconnection and keepalive.
type SocketSource struct {
	mu     sync.RWMutex
	wsURL  string
	conn   *websocket.Conn
	config *SocketConfig
	logger *logz.Logger

	writeMu sync.Mutex

	nextID  uint64
	pending map[uint64]chan *rpcResponse

	bestSubs map[string]chan *Block
	finSubs  map[string]chan *Block

	latestFinalized *Block
	finalizedKnown  chan struct{}
	finalizedOnce   sync.Once

	connected bool
	stopped   bool
}

// NewSocketSource creates a WebSocket-backed chain-head source. Start
// must be called before use.
func NewSocketSource(cfg *SocketConfig) (*SocketSource, error) {
	if cfg == nil {
		return nil, fmt.Errorf("socket config cannot be nil")
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid RPC URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s", u.Scheme)
	}

	return &SocketSource{
		wsURL:          u.String(),
		config:         cfg,
		logger:         logz.New(cfg.LogLevel, "chainhead"),
		pending:        make(map[uint64]chan *rpcResponse),
		bestSubs:       make(map[string]chan *Block),
		finSubs:        make(map[string]chan *Block),
		finalizedKnown: make(chan struct{}),
	}, nil
}

// Start begins the connection loop. It returns immediately; requests
// issued before the first successful connect fail or wait per their
// contexts.
func (s *SocketSource) Start(ctx context.Context) error {
	s.logger.Info("starting chain-head source: %s", s.wsURL)
	go s.connectionLoop(ctx)
	return nil
}

// Stop closes the connection and all subscriber channels
func (s *SocketSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connected = false

	for id, ch := range s.bestSubs {
		close(ch)
		delete(s.bestSubs, id)
	}
	for id, ch := range s.finSubs {
		close(ch)
		delete(s.finSubs, id)
	}
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}

	s.logger.Info("chain-head source stopped")
	return nil
}

// Call performs a generic state call via the "state_call" RPC method
func (s *SocketSource) Call(ctx context.Context, blockHash, method, args string) (string, error) {
	params := []any{method, args}
	if blockHash != "" {
		params = append(params, blockHash)
	}

	raw, err := s.request(ctx, "state_call", params)
	if err != nil {
		return "", err
	}

	var result string
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("malformed state_call result: %w", err)
	}
	return result, nil
}

// SubmitTransaction submits a signed extrinsic to the transaction pool
func (s *SocketSource) SubmitTransaction(ctx context.Context, extrinsic string) error {
	_, err := s.request(ctx, "author_submitExtrinsic", []any{extrinsic})
	return err
}

// LatestFinalized returns the latest known finalized block, blocking
// until the first finalized notification arrives.
func (s *SocketSource) LatestFinalized(ctx context.Context) (*Block, error) {
	select {
	case <-s.finalizedKnown:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latestFinalized == nil {
		return nil, fmt.Errorf("no finalized block known")
	}
	return s.latestFinalized, nil
}

// Block looks up a block descriptor by hash via "chainHead_block"
func (s *SocketSource) Block(ctx context.Context, blockHash string) (*Block, error) {
	raw, err := s.request(ctx, "chainHead_block", []any{blockHash})
	if err != nil {
		return nil, err
	}

	var block Block
	if err := json.Unmarshal(raw, &block); err != nil {
		return nil, fmt.Errorf("malformed block result: %w", err)
	}
	return &block, nil
}

// WatchBest subscribes to best-chain block announcements
func (s *SocketSource) WatchBest(ctx context.Context) (<-chan *Block, error) {
	return s.subscribe(ctx, s.bestSubs)
}

// WatchFinalized subscribes to finalized block announcements
func (s *SocketSource) WatchFinalized(ctx context.Context) (<-chan *Block, error) {
	return s.subscribe(ctx, s.finSubs)
}

func (s *SocketSource) subscribe(ctx context.Context, subs map[string]chan *Block) (<-chan *Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, fmt.Errorf("source is stopped")
	}

	id := uuid.NewString()
	ch := make(chan *Block, 64)
	subs[id] = ch

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		if existing, ok := subs[id]; ok {
			delete(subs, id)
			close(existing)
		}
	}()

	return ch, nil
}

// request issues a JSON-RPC request and waits for its response
func (s *SocketSource) request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, fmt.Errorf("source is stopped")
	}
	if !s.connected || s.conn == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("not connected to %s", s.wsURL)
	}
	s.nextID++
	id := s.nextID
	ch := make(chan *rpcResponse, 1)
	s.pending[id] = ch
	conn := s.conn
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	req := &rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	s.writeMu.Lock()
	err := conn.WriteJSON(req)
	s.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to send %s request: %w", method, err)
	}

	timer := time.NewTimer(s.config.RequestTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("timeout waiting for %s response", method)
	case resp, ok := <-ch:
		if !ok || resp == nil {
			return nil, fmt.Errorf("connection lost waiting for %s response", method)
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}

// connectionLoop manages the WebSocket connection with automatic reconnection
func (s *SocketSource) connectionLoop(ctx context.Context) {
	reconnectAttempts := 0

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return
		default:
		}

		if err := s.connect(); err != nil {
			s.logger.Warn("failed to connect: %v", err)
			reconnectAttempts++

			if reconnectAttempts >= s.config.MaxReconnects {
				s.logger.Error("max reconnection attempts reached, stopping")
				s.Stop()
				return
			}

			select {
			case <-ctx.Done():
				s.Stop()
				return
			case <-time.After(s.config.ReconnectDelay):
				continue
			}
		}

		reconnectAttempts = 0
		s.handleConnection(ctx)

		s.mu.Lock()
		stopped := s.stopped
		s.connected = false
		if s.conn != nil {
			s.conn.Close()
			s.conn = nil
		}
		// In-flight requests cannot complete on a dead connection
		for id, ch := range s.pending {
			close(ch)
			delete(s.pending, id)
		}
		s.mu.Unlock()

		if stopped {
			return
		}

		select {
		case <-ctx.Done():
			s.Stop()
			return
		case <-time.After(s.config.ReconnectDelay):
		}
	}
}

// connect establishes the WebSocket connection and begins the
// chain-head follow subscription.
func (s *SocketSource) connect() error {
	s.logger.Debug("connecting to %s", s.wsURL)

	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial websocket: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()

	follow := &rpcRequest{JSONRPC: "2.0", Method: "chainHead_follow"}
	s.writeMu.Lock()
	err = conn.WriteJSON(follow)
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to start chain-head follow: %w", err)
	}

	s.logger.Info("connected")
	return nil
}

// handleConnection handles WebSocket messages and ping/pong
func (s *SocketSource) handleConnection(ctx context.Context) {
	pingTicker := time.NewTicker(s.config.PingInterval)
	defer pingTicker.Stop()

	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.config.PingInterval * 2))
		return nil
	})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-pingTicker.C:
				s.writeMu.Lock()
				s.mu.RLock()
				conn := s.conn
				s.mu.RUnlock()
				if conn == nil {
					s.writeMu.Unlock()
					return
				}
				err := conn.WriteMessage(websocket.PingMessage, nil)
				s.writeMu.Unlock()
				if err != nil {
					s.logger.Debug("failed to send ping: %v", err)
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.conn.SetReadDeadline(time.Now().Add(s.config.PingInterval * 2))
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.logger.Debug("read error: %v", err)
			return
		}

		if messageType == websocket.TextMessage {
			s.handleMessage(data)
		}
	}
}

// handleMessage routes a frame to the pending-request table or the
// chain-head fanout.
func (s *SocketSource) handleMessage(data []byte) {
	var msg rpcResponse
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Warn("failed to unmarshal message: %v", err)
		return
	}

	if msg.ID != 0 {
		s.mu.Lock()
		ch, ok := s.pending[msg.ID]
		if ok {
			delete(s.pending, msg.ID)
		}
		s.mu.Unlock()
		if ok {
			ch <- &msg
		}
		return
	}

	if msg.Method != "chainHead_followEvent" {
		s.logger.Debug("ignoring notification %q", msg.Method)
		return
	}

	var ev followEvent
	if err := json.Unmarshal(msg.Params, &ev); err != nil {
		s.logger.Warn("malformed follow event: %v", err)
		return
	}
	if ev.Block == nil {
		return
	}

	switch ev.Event {
	case "bestBlock":
		metrics.SetBestHeight(ev.Block.Number)
		s.fanout(s.bestSubs, ev.Block)
	case "finalizedBlock":
		metrics.SetFinalizedHeight(ev.Block.Number)
		s.mu.Lock()
		s.latestFinalized = ev.Block
		s.mu.Unlock()
		s.finalizedOnce.Do(func() { close(s.finalizedKnown) })
		s.fanout(s.finSubs, ev.Block)
	default:
		s.logger.Debug("ignoring follow event %q", ev.Event)
	}
}

// fanout delivers a block to every subscriber, dropping for slow ones
func (s *SocketSource) fanout(subs map[string]chan *Block, block *Block) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, ch := range subs {
		select {
		case ch <- block:
		default:
			s.logger.Warn("subscriber %s is lagging, dropping block %s", id, block.Hash)
		}
	}
}
