package client

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alialobidm/polkadot-api/chainhead"
	"github.com/alialobidm/polkadot-api/internal/hexutil"
	"github.com/alialobidm/polkadot-api/metadata"
)

// mockSource is a scriptable chain-head source. Blocks are pushed by
// tests via pushBest/pushFinalized.
type mockSource struct {
	mu          sync.Mutex
	callCount   int
	submitCount int
	submitted   []string
	submitErr   error
	callFn      func(blockHash, method, args string) (string, error)
	finalized   *chainhead.Block
	blocks      map[string]*chainhead.Block
	bestSubs    []chan *chainhead.Block
	finSubs     []chan *chainhead.Block
}

func newMockSource() *mockSource {
	genesis := &chainhead.Block{Hash: testHash(100), Parent: testHash(99), Number: 100}
	return &mockSource{
		finalized: genesis,
		blocks:    map[string]*chainhead.Block{genesis.Hash: genesis},
	}
}

// testHash derives a deterministic 32-byte block hash from a number
func testHash(n uint64) string {
	return hexutil.Encode([]byte(fmt.Sprintf("block-%03d-%025d", n, n)))
}

func (m *mockSource) Call(ctx context.Context, blockHash, method, args string) (string, error) {
	m.mu.Lock()
	m.callCount++
	fn := m.callFn
	m.mu.Unlock()

	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if fn != nil {
		return fn(blockHash, method, args)
	}
	return "0x00", nil
}

func (m *mockSource) SubmitTransaction(ctx context.Context, extrinsic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitCount++
	m.submitted = append(m.submitted, extrinsic)
	return m.submitErr
}

func (m *mockSource) lastSubmitted() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.submitted) == 0 {
		return ""
	}
	return m.submitted[len(m.submitted)-1]
}

func (m *mockSource) LatestFinalized(ctx context.Context) (*chainhead.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalized, nil
}

func (m *mockSource) Block(ctx context.Context, blockHash string) (*chainhead.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.blocks[blockHash]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("unknown block %s", blockHash)
}

func (m *mockSource) WatchBest(ctx context.Context) (<-chan *chainhead.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan *chainhead.Block, 64)
	m.bestSubs = append(m.bestSubs, ch)
	return ch, nil
}

func (m *mockSource) WatchFinalized(ctx context.Context) (<-chan *chainhead.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan *chainhead.Block, 64)
	m.finSubs = append(m.finSubs, ch)
	return ch, nil
}

func (m *mockSource) pushBest(b *chainhead.Block) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[b.Hash] = b
	for _, ch := range m.bestSubs {
		ch <- b
	}
}

func (m *mockSource) pushFinalized(b *chainhead.Block) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[b.Hash] = b
	m.finalized = b
	for _, ch := range m.finSubs {
		ch <- b
	}
}

func (m *mockSource) submits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submitCount
}

func (m *mockSource) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// waitForSubmits polls until n broadcasts were recorded
func (m *mockSource) waitForSubmits(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.submits() >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d broadcasts, got %d", n, m.submits())
}

// mockCodec routes encode/decode through test closures
type mockCodec struct {
	encodeFn func(args any) ([]byte, error)
	decodeFn func(data []byte) (any, error)
}

func (c *mockCodec) EncodeArgs(args any) ([]byte, error) {
	if c.encodeFn != nil {
		return c.encodeFn(args)
	}
	if b, ok := args.([]byte); ok {
		return b, nil
	}
	return []byte{0x04}, nil
}

func (c *mockCodec) DecodeResult(data []byte) (any, error) {
	if c.decodeFn != nil {
		return c.decodeFn(data)
	}
	return data, nil
}

// mockRuntime is a runtime context with per-call checksums and codecs
type mockRuntime struct {
	mu         sync.Mutex
	checksums  map[string][]byte
	codecs     map[string]*mockCodec
	buildCount int
}

func newMockRuntime() *mockRuntime {
	return &mockRuntime{
		checksums: make(map[string][]byte),
		codecs: map[string]*mockCodec{
			"AccountNonceApi.account_nonce": {
				decodeFn: func([]byte) (any, error) { return uint64(7), nil },
			},
			"TransactionPaymentApi.query_info": {
				decodeFn: func([]byte) (any, error) { return uint64(1500), nil },
			},
		},
	}
}

func (r *mockRuntime) Checksum(d metadata.Descriptor) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checksums[d.Name()]
}

func (r *mockRuntime) BuildCall(d metadata.Descriptor) (metadata.Codec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buildCount++
	if c, ok := r.codecs[d.Name()]; ok {
		return c, nil
	}
	return &mockCodec{}, nil
}

func (r *mockRuntime) builds() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buildCount
}

// mockResolver resolves every block to one runtime, optionally gated
// so tests can hold concurrent resolutions open.
type mockResolver struct {
	mu           sync.Mutex
	resolveCount int
	runtime      *mockRuntime
	err          error
	started      chan struct{} // closed on first resolve, if set
	release      chan struct{} // blocks resolution until closed, if set
	startOnce    sync.Once
}

func newMockResolver(rt *mockRuntime) *mockResolver {
	return &mockResolver{runtime: rt}
}

func (r *mockResolver) Resolve(ctx context.Context, blockHash string) (metadata.RuntimeContext, error) {
	r.mu.Lock()
	r.resolveCount++
	err := r.err
	started := r.started
	release := r.release
	r.mu.Unlock()

	if started != nil {
		r.startOnce.Do(func() { close(started) })
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return r.runtime, nil
}

func (r *mockResolver) resolves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveCount
}

// mockSigner returns a deterministic tagged signature
type mockSigner struct {
	mu        sync.Mutex
	signCount int
	err       error
}

func (s *mockSigner) Address() []byte {
	addr := make([]byte, 32)
	for i := range addr {
		addr[i] = 0xEE
	}
	return addr
}

func (s *mockSigner) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signCount++
	if s.err != nil {
		return nil, s.err
	}
	sig := make([]byte, 65)
	sig[0] = 0x01
	for i := 1; i < len(sig); i++ {
		sig[i] = 0x5A
	}
	return sig, nil
}

func (s *mockSigner) signs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signCount
}

// newTestClient wires a client over the given mocks
func newTestClient(t *testing.T, source *mockSource, resolver *mockResolver) *Client {
	t.Helper()
	c, err := NewClient(source, resolver, nil)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return c
}

// blockWith builds a block descriptor containing the given extrinsics,
// with a success outcome event for each.
func blockWith(number uint64, parent string, extrinsics ...string) *chainhead.Block {
	b := &chainhead.Block{
		Hash:       testHash(number),
		Parent:     parent,
		Number:     number,
		Extrinsics: extrinsics,
	}
	for i := range extrinsics {
		b.Events = append(b.Events, chainhead.Event{
			Pallet: "System",
			Name:   "ExtrinsicSuccess",
			Phase:  chainhead.Phase{Kind: chainhead.PhaseApplyExtrinsic, Index: uint32(i)},
		})
	}
	return b
}

// nextEvent reads one lifecycle event with a timeout
func nextEvent(t *testing.T, ch <-chan TxEvent) TxEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("event channel closed early")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for lifecycle event")
	}
	return TxEvent{}
}
