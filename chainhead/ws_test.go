package chainhead

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alialobidm/polkadot-api/internal/config"
	"github.com/alialobidm/polkadot-api/internal/logz"
)

func TestNewSocketSourceSchemeRewrite(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"ws passthrough", "ws://127.0.0.1:9944", "ws://127.0.0.1:9944"},
		{"wss passthrough", "wss://rpc.example.com", "wss://rpc.example.com"},
		{"http rewritten", "http://127.0.0.1:9944", "ws://127.0.0.1:9944"},
		{"https rewritten", "https://rpc.example.com", "wss://rpc.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSocketSource(DefaultSocketConfig(tt.url))
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.wsURL)
		})
	}
}

func TestNewSocketSourceRejectsBadConfig(t *testing.T) {
	_, err := NewSocketSource(nil)
	assert.Error(t, err)

	_, err = NewSocketSource(DefaultSocketConfig("ftp://example.com"))
	assert.Error(t, err)
}

func TestSocketConfigFrom(t *testing.T) {
	cfg := &config.Config{
		Endpoint:       "wss://rpc.example.com",
		RequestTimeout: "10s",
		ReconnectDelay: "2s",
		PingInterval:   "15s",
		MaxReconnects:  3,
		LogLevel:       "debug",
	}

	sock := SocketConfigFrom(cfg)
	assert.Equal(t, "wss://rpc.example.com", sock.URL)
	assert.Equal(t, 10*time.Second, sock.RequestTimeout)
	assert.Equal(t, 2*time.Second, sock.ReconnectDelay)
	assert.Equal(t, 15*time.Second, sock.PingInterval)
	assert.Equal(t, 3, sock.MaxReconnects)
	assert.Equal(t, logz.DEBUG, sock.LogLevel)
}

func TestHandleMessageRoutesResponses(t *testing.T) {
	s, err := NewSocketSource(DefaultSocketConfig("ws://127.0.0.1:9944"))
	require.NoError(t, err)

	ch := make(chan *rpcResponse, 1)
	s.mu.Lock()
	s.pending[7] = ch
	s.mu.Unlock()

	s.handleMessage([]byte(`{"jsonrpc":"2.0","id":7,"result":"0x2a"}`))

	select {
	case resp := <-ch:
		assert.Equal(t, `"0x2a"`, string(resp.Result))
	default:
		t.Fatal("pending request did not receive its response")
	}

	// The entry is consumed: a duplicate frame is dropped
	s.handleMessage([]byte(`{"jsonrpc":"2.0","id":7,"result":"0x2a"}`))
	s.mu.Lock()
	assert.Empty(t, s.pending)
	s.mu.Unlock()
}

func TestHandleMessageFanout(t *testing.T) {
	s, err := NewSocketSource(DefaultSocketConfig("ws://127.0.0.1:9944"))
	require.NoError(t, err)

	ctx := context.Background()
	best, err := s.WatchBest(ctx)
	require.NoError(t, err)
	fin, err := s.WatchFinalized(ctx)
	require.NoError(t, err)

	s.handleMessage([]byte(`{
		"jsonrpc": "2.0",
		"method": "chainHead_followEvent",
		"params": {"event": "bestBlock", "block": {"hash": "0xaa", "parent": "0x99", "number": 5}}
	}`))
	s.handleMessage([]byte(`{
		"jsonrpc": "2.0",
		"method": "chainHead_followEvent",
		"params": {"event": "finalizedBlock", "block": {"hash": "0xbb", "parent": "0xaa", "number": 4}}
	}`))

	select {
	case b := <-best:
		assert.Equal(t, "0xaa", b.Hash)
		assert.Equal(t, uint64(5), b.Number)
	default:
		t.Fatal("best subscriber did not receive the block")
	}

	select {
	case f := <-fin:
		assert.Equal(t, "0xbb", f.Hash)
	default:
		t.Fatal("finalized subscriber did not receive the block")
	}

	// The finalized head is now known without blocking
	head, err := s.LatestFinalized(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0xbb", head.Hash)
}

func TestHandleMessageIgnoresMalformedFrames(t *testing.T) {
	s, err := NewSocketSource(DefaultSocketConfig("ws://127.0.0.1:9944"))
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		s.handleMessage([]byte(`not json`))
		s.handleMessage([]byte(`{"method":"chainHead_followEvent","params":{"event":"bestBlock"}}`))
		s.handleMessage([]byte(`{"method":"somethingElse","params":{}}`))
	})
}

func TestSubscriptionClosedOnContextCancel(t *testing.T) {
	s, err := NewSocketSource(DefaultSocketConfig("ws://127.0.0.1:9944"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	best, err := s.WatchBest(ctx)
	require.NoError(t, err)

	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-best:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("subscription channel was not closed on cancellation")
		}
	}
}

func TestStopClosesSubscribers(t *testing.T) {
	s, err := NewSocketSource(DefaultSocketConfig("ws://127.0.0.1:9944"))
	require.NoError(t, err)

	best, err := s.WatchBest(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Stop())

	_, open := <-best
	assert.False(t, open)

	// Stop is idempotent, and no new subscriptions are accepted
	require.NoError(t, s.Stop())
	_, err = s.WatchBest(context.Background())
	assert.Error(t, err)
}
