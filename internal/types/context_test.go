package types

import (
	"context"
	"testing"
)

func TestWithActor_GetActor(t *testing.T) {
	t.Run("round-trip stores and retrieves actor", func(t *testing.T) {
		actor := Actor{ID: "admin-1", Type: ActorTypeAdmin, Source: "admin_console"}
		ctx := WithActor(context.Background(), actor)
		got, ok := GetActor(ctx)
		if !ok {
			t.Fatal("expected ok to be true, got false")
		}
		if got != actor {
			t.Errorf("got %+v, want %+v", got, actor)
		}
	})

	t.Run("missing actor", func(t *testing.T) {
		if _, ok := GetActor(context.Background()); ok {
			t.Error("expected ok to be false for empty context")
		}
	})
}

func TestWithRequestID_GetRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-abc")
	if got := GetRequestID(ctx); got != "req-abc" {
		t.Errorf("GetRequestID() = %q, want %q", got, "req-abc")
	}
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID() on empty context = %q, want empty", got)
	}
}

func TestSeverityCountsAdd(t *testing.T) {
	var c SeverityCounts
	for _, s := range []Severity{SeverityCritical, SeverityLow, SeverityHigh, SeverityLow, Severity("bogus")} {
		c.Add(s)
	}
	want := SeverityCounts{Low: 2, Medium: 0, High: 1, Critical: 1}
	if c != want {
		t.Errorf("counts = %+v, want %+v", c, want)
	}
}

func TestActorID(t *testing.T) {
	if got := ActorID(context.Background()); got != SystemActor.ID {
		t.Errorf("ActorID() without actor = %q, want %q", got, SystemActor.ID)
	}
	ctx := WithActor(context.Background(), Actor{ID: "ops@example.com", Type: ActorTypeAdmin})
	if got := ActorID(ctx); got != "ops@example.com" {
		t.Errorf("ActorID() = %q, want ops@example.com", got)
	}
	ctx = WithActor(context.Background(), Actor{Type: ActorTypeAdmin})
	if got := ActorID(ctx); got != SystemActor.ID {
		t.Errorf("ActorID() with empty ID = %q, want %q", got, SystemActor.ID)
	}
}
