package advisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/resolvd/internal/action"
)

type fakeClient struct {
	calls   atomic.Int32
	text    string
	err     error
	release chan struct{}
}

func (f *fakeClient) Complete(ctx context.Context, prompt string) (string, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

func payload(prompt string) action.AIRequestPayload {
	return action.AIRequestPayload{Prompt: prompt, Kind: "SYNTAX_ERROR"}
}

func TestAdvise_CachesByNormalizedPrompt(t *testing.T) {
	c := &fakeClient{text: "  check the statement near WHERE  "}
	a := New(c, Options{}, zap.NewNop())
	ctx := context.Background()

	text, err := a.Advise(ctx, payload("Explain this  error"))
	require.NoError(t, err)
	assert.Equal(t, "check the statement near WHERE", text)

	text, err = a.Advise(ctx, payload("explain THIS error\n"))
	require.NoError(t, err)
	assert.Equal(t, "check the statement near WHERE", text)
	assert.Equal(t, int32(1), c.calls.Load())
	assert.Equal(t, 1, a.Len())

	a.Purge()
	_, err = a.Advise(ctx, payload("explain this error"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), c.calls.Load())
}

func TestAdvise_CollapsesConcurrentRequests(t *testing.T) {
	c := &fakeClient{text: "answer", release: make(chan struct{})}
	a := New(c, Options{}, zap.NewNop())

	var wg sync.WaitGroup
	results := make([]string, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			text, err := a.Advise(context.Background(), payload("same prompt"))
			assert.NoError(t, err)
			results[i] = text
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(c.release)
	wg.Wait()

	assert.Equal(t, int32(1), c.calls.Load())
	for _, r := range results {
		assert.Equal(t, "answer", r)
	}
}

func TestAdvise_Timeout(t *testing.T) {
	c := &fakeClient{release: make(chan struct{})}
	defer close(c.release)
	a := New(c, Options{Timeout: 20 * time.Millisecond}, zap.NewNop())

	_, err := a.Advise(context.Background(), payload("slow"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, a.Len())
}

func TestAdvise_CallerCancel(t *testing.T) {
	c := &fakeClient{text: "late", release: make(chan struct{})}
	a := New(c, Options{Timeout: time.Second}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Advise(ctx, payload("cancelled"))
	assert.ErrorIs(t, err, context.Canceled)
	close(c.release)
}

func TestAdvise_FailureNotCached(t *testing.T) {
	c := &fakeClient{err: errors.New("boom")}
	a := New(c, Options{}, zap.NewNop())

	_, err := a.Advise(context.Background(), payload("p"))
	assert.EqualError(t, err, "boom")
	_, err = a.Advise(context.Background(), payload("p"))
	assert.Error(t, err)
	assert.Equal(t, int32(2), c.calls.Load())
	assert.Equal(t, 0, a.Len())
}

func TestAdvise_EmptyCompletion(t *testing.T) {
	a := New(&fakeClient{text: "   "}, Options{}, zap.NewNop())
	_, err := a.Advise(context.Background(), payload("p"))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestAdvise_EmptyPrompt(t *testing.T) {
	c := &fakeClient{text: "x"}
	a := New(c, Options{}, zap.NewNop())
	_, err := a.Advise(context.Background(), payload(""))
	assert.Error(t, err)
	assert.Equal(t, int32(0), c.calls.Load())
}

func TestAdvise_StaticClient(t *testing.T) {
	a := New(Static{}, Options{}, nil)
	_, err := a.Advise(context.Background(), payload("p"))
	assert.ErrorIs(t, err, ErrUnavailable)

	a = New(Static{Response: "canned"}, Options{}, nil)
	text, err := a.Advise(context.Background(), payload("p"))
	require.NoError(t, err)
	assert.Equal(t, "canned", text)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, CacheKey(payload("a  b\tC")), CacheKey(payload("A b c")))
	assert.NotEqual(t, CacheKey(payload("a b")), CacheKey(payload("ab")))
	assert.Len(t, CacheKey(payload("x")), 64)

	signed := func(prompt, sig, guidance string) action.AIRequestPayload {
		return action.AIRequestPayload{Prompt: prompt, Kind: "DEADLOCK", Signature: sig, Guidance: guidance}
	}
	assert.Equal(t,
		CacheKey(signed("Occurrences in window: 1\nMessage: txn 41", "3f2a9c1b7d40", "Retry the transaction")),
		CacheKey(signed("Occurrences in window: 7\nMessage: txn 98", "3f2a9c1b7d40", "retry  the transaction")))
	assert.NotEqual(t,
		CacheKey(signed("p", "3f2a9c1b7d40", "g")),
		CacheKey(signed("p", "000000000000", "g")))
	assert.NotEqual(t,
		CacheKey(signed("p", "3f2a9c1b7d40", "g")),
		CacheKey(signed("p", "3f2a9c1b7d40", "other guidance")))
}

func TestAdvise_SharesAnswerAcrossRecurrences(t *testing.T) {
	c := &fakeClient{text: "retry with backoff"}
	a := New(c, Options{}, zap.NewNop())
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		text, err := a.Advise(ctx, action.AIRequestPayload{
			Prompt:    fmt.Sprintf("Occurrences in window: %d\nMessage: Deadlock on row %d", i, 40+i),
			Kind:      "DEADLOCK",
			Signature: "3f2a9c1b7d40",
			Guidance:  "Retry the transaction",
		})
		require.NoError(t, err)
		assert.Equal(t, "retry with backoff", text)
	}
	assert.Equal(t, int32(1), c.calls.Load())
}
