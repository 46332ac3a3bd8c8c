//go:build unit

package device

import (
	"errors"
	"testing"
)

func TestCompletionsResolveInOrder(t *testing.T) {
	var c completions
	f1, err := c.arm(1)
	if err != nil {
		t.Fatal(err)
	}
	f2, _ := c.arm(2)

	c.complete()
	select {
	case <-f1.done:
	default:
		t.Fatal("oldest fence not resolved")
	}
	select {
	case <-f2.done:
		t.Fatal("second fence resolved early")
	default:
	}
	if c.inflight() != 1 {
		t.Errorf("inflight = %d, want 1", c.inflight())
	}

	c.complete()
	if err := f2.wait(); err != nil {
		t.Errorf("wait = %v", err)
	}

	// spurious pong
	c.complete()
}

func TestCompletionsFailIsSticky(t *testing.T) {
	var c completions
	f, _ := c.arm(1)

	boom := errors.New("boom")
	c.fail(boom)
	if err := f.wait(); !errors.Is(err, boom) {
		t.Errorf("wait = %v, want %v", err, boom)
	}

	c.fail(errors.New("later"))
	if _, err := c.arm(2); !errors.Is(err, boom) {
		t.Errorf("arm after fault = %v, want first fault", err)
	}
}
