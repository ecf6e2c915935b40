package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ashureev/pagedesk/internal/domain"
)

func TestResultUnwrap(t *testing.T) {
	v, err := Ok(42).Unwrap()
	if err != nil || v != 42 {
		t.Errorf("Ok: got %d, %v", v, err)
	}

	boom := errors.New("boom")
	v, err = Fail[int](boom).Unwrap()
	if !errors.Is(err, boom) || v != 0 {
		t.Errorf("Fail: got %d, %v", v, err)
	}
}

func TestAsyncAwait(t *testing.T) {
	ch := Async(context.Background(), func(context.Context) (string, error) { return "done", nil })
	got, err := Await(context.Background(), ch)
	if err != nil || got != "done" {
		t.Errorf("got %q, %v", got, err)
	}
}

func TestAwaitHonoursContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	ch := Async(context.Background(), func(context.Context) (int, error) {
		<-block
		return 1, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := Await(ctx, ch); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestGuardRejectsConcurrentCall(t *testing.T) {
	g := NewInflight()
	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		_, err := Guard(g, "send:A", func() (int, error) {
			close(entered)
			<-release
			return 1, nil
		})
		done <- err
	}()
	<-entered

	if !g.Busy("send:A") {
		t.Error("expected key to be busy")
	}
	if _, err := Guard(g, "send:A", func() (int, error) { return 2, nil }); !errors.Is(err, domain.ErrInFlight) {
		t.Errorf("expected ErrInFlight, got %v", err)
	}
	if _, err := Guard(g, "send:B", func() (int, error) { return 3, nil }); err != nil {
		t.Errorf("other keys must not be blocked: %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("first call failed: %v", err)
	}
	if g.Busy("send:A") {
		t.Error("key must be released after the call")
	}
}
