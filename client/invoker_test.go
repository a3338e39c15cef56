package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alialobidm/polkadot-api/metadata"
)

func compatibleVersionCall(t *testing.T, source *mockSource, resolver *mockResolver) *RuntimeCall {
	t.Helper()
	resolver.runtime.checksums["Core.version"] = []byte{0xAA}
	client := newTestClient(t, source, resolver)
	call, err := client.RuntimeCall(metadata.NewRuntimeCallDescriptor("Core", "version", []byte{0xAA}))
	require.NoError(t, err)
	return call
}

func TestInvokeCompatibleCall(t *testing.T) {
	rt := newMockRuntime()
	rt.codecs["Core.version"] = &mockCodec{
		encodeFn: func(args any) ([]byte, error) {
			assert.Equal(t, map[string]int{"x": 1}, args)
			return []byte{0x04}, nil
		},
		decodeFn: func(data []byte) (any, error) {
			assert.Equal(t, []byte{0x2a}, data)
			return "payload", nil
		},
	}

	source := newMockSource()
	source.callFn = func(blockHash, method, args string) (string, error) {
		assert.Equal(t, testHash(100), blockHash)
		assert.Equal(t, "Core_version", method)
		assert.Equal(t, "0x04", args)
		return "0x2a", nil
	}

	call := compatibleVersionCall(t, source, newMockResolver(rt))

	result, err := call.Invoke(context.Background(), map[string]int{"x": 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, "payload", result)
	assert.Equal(t, 1, source.calls())
}

func TestInvokeSingleFlight(t *testing.T) {
	rt := newMockRuntime()
	resolver := newMockResolver(rt)
	resolver.started = make(chan struct{})
	resolver.release = make(chan struct{})

	source := newMockSource()
	call := compatibleVersionCall(t, source, resolver)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = call.Invoke(context.Background(), []byte{0x01}, nil)
		}(i)
	}

	// Hold the first resolution open long enough for both invocations
	// to reach the coalescing point.
	<-resolver.started
	time.Sleep(50 * time.Millisecond)
	close(resolver.release)
	wg.Wait()

	require.NoError(t, results[0])
	require.NoError(t, results[1])
	assert.Equal(t, 1, resolver.resolves(), "concurrent invokes must share one resolution")
	assert.Equal(t, 1, rt.builds(), "concurrent invokes must share one codec build")
	assert.Equal(t, 2, source.calls(), "each invoke still issues its own state call")
}

func TestInvokeAbortDuringResolution(t *testing.T) {
	rt := newMockRuntime()
	resolver := newMockResolver(rt)
	resolver.started = make(chan struct{})
	resolver.release = make(chan struct{})

	call := compatibleVersionCall(t, newMockSource(), resolver)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := call.Invoke(ctx, []byte{0x01}, nil)
		done <- err
	}()

	// Cancel while the resolver is still in flight
	<-resolver.started
	cancel()

	var abort *AbortError
	require.ErrorAs(t, <-done, &abort)
	close(resolver.release)
}

func TestInvokeCancelledCallerSparesCoalescedWaiters(t *testing.T) {
	rt := newMockRuntime()
	resolver := newMockResolver(rt)
	resolver.started = make(chan struct{})
	resolver.release = make(chan struct{})

	call := compatibleVersionCall(t, newMockSource(), resolver)

	ctx1, cancel1 := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := call.Invoke(ctx1, []byte{0x01}, nil)
		first <- err
	}()
	<-resolver.started

	second := make(chan error, 1)
	go func() {
		_, err := call.Invoke(context.Background(), []byte{0x01}, nil)
		second <- err
	}()

	// Let the second invocation reach the coalescing point, then
	// cancel only the first caller.
	time.Sleep(50 * time.Millisecond)
	cancel1()

	var abort *AbortError
	require.ErrorAs(t, <-first, &abort)

	close(resolver.release)
	require.NoError(t, <-second, "a surviving waiter completes on the shared resolution")
	assert.Equal(t, 1, resolver.resolves())
}

func TestInvokeCancellation(t *testing.T) {
	rt := newMockRuntime()
	rt.checksums["Core.version"] = []byte{0xAA}
	resolver := newMockResolver(rt)

	blocked := make(chan struct{})
	source := newMockSource()
	source.callFn = func(blockHash, method, args string) (string, error) {
		<-blocked
		return "", context.Canceled
	}

	client := newTestClient(t, source, resolver)
	call, err := client.RuntimeCall(metadata.NewRuntimeCallDescriptor("Core", "version", []byte{0xAA}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := call.Invoke(ctx, []byte{0x01}, nil)
		done <- err
	}()

	cancel()
	close(blocked)

	var abort *AbortError
	require.ErrorAs(t, <-done, &abort)
}

func TestInvokeAtSpecificBlock(t *testing.T) {
	rt := newMockRuntime()
	source := newMockSource()
	var calledAt string
	source.callFn = func(blockHash, method, args string) (string, error) {
		calledAt = blockHash
		return "0x00", nil
	}

	call := compatibleVersionCall(t, source, newMockResolver(rt))

	_, err := call.Invoke(context.Background(), []byte{0x01}, &InvokeOptions{At: testHash(42)})
	require.NoError(t, err)
	assert.Equal(t, testHash(42), calledAt)
}

func TestRuntimeCallKindMismatch(t *testing.T) {
	client := newTestClient(t, newMockSource(), newMockResolver(newMockRuntime()))

	_, err := client.RuntimeCall(metadata.NewTxCallDescriptor("Balances", "transfer", nil))
	assert.Error(t, err)

	_, err = client.TxCall(metadata.NewRuntimeCallDescriptor("Core", "version", nil))
	assert.Error(t, err)
}
