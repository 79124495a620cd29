package jobs

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

func TestDelayRemaining(t *testing.T) {
	t.Run("no header runs immediately", func(t *testing.T) {
		if _, due := delayRemaining(nats.Header{}); !due {
			t.Fatal("job without header should be due")
		}
	})

	t.Run("past deadline is due", func(t *testing.T) {
		h := nats.Header{}
		h.Set(notBeforeHeader, time.Now().Add(-time.Second).Format(time.RFC3339Nano))
		if _, due := delayRemaining(h); !due {
			t.Fatal("past deadline should be due")
		}
	})

	t.Run("future deadline reports remaining", func(t *testing.T) {
		h := nats.Header{}
		h.Set(notBeforeHeader, time.Now().Add(10*time.Second).Format(time.RFC3339Nano))
		remaining, due := delayRemaining(h)
		if due {
			t.Fatal("future deadline should not be due")
		}
		if remaining <= 0 || remaining > 10*time.Second {
			t.Fatalf("remaining = %v", remaining)
		}
	})

	t.Run("garbage header runs immediately", func(t *testing.T) {
		h := nats.Header{}
		h.Set(notBeforeHeader, "not-a-time")
		if _, due := delayRemaining(h); !due {
			t.Fatal("unparseable header should run now")
		}
	})
}
