package body

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestInboundSingleSubscription(t *testing.T) {
	in, sink := NewInbound(4)
	defer sink.Complete(nil)
	if _, err := in.Subscribe(context.Background()); err != nil {
		t.Fatalf("first subscribe: %v", err)
	}
	if _, err := in.Subscribe(context.Background()); err != ErrAlreadySubscribed {
		t.Fatalf("second subscribe = %v, want ErrAlreadySubscribed", err)
	}
}

func TestInboundTransformAppliesBeforeSubscriberSees(t *testing.T) {
	in, sink := NewInbound(4)
	in.Transform(func(b []byte) ([]byte, error) {
		return bytes.ToUpper(b), nil
	})
	ctx := context.Background()
	ch, err := in.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		_ = sink.Emit(ctx, []byte("hello"))
		sink.Complete(nil)
	}()
	var got []byte
	for c := range ch {
		if c.Err != nil {
			break
		}
		got = append(got, c.Data...)
	}
	if string(got) != "HELLO" {
		t.Errorf("got %q, want HELLO", got)
	}
}

func TestInboundCancelReleasesWithCause(t *testing.T) {
	in, _ := NewInbound(4)
	ctx := context.Background()
	ch, err := in.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	in.Cancel(nil)
	select {
	case c := <-ch:
		if c.Err == nil {
			t.Fatal("expected terminal cancel error")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for cancel chunk")
	}
	if in.CancelCause() != ErrCancelled {
		t.Errorf("CancelCause() = %v, want ErrCancelled", in.CancelCause())
	}
}

func TestOutboundAtMostOneSetterSucceeds(t *testing.T) {
	var o Outbound
	if err := o.String("hi"); err != nil {
		t.Fatal(err)
	}
	if err := o.Empty(); err != ErrAlreadySet {
		t.Fatalf("second setter = %v, want ErrAlreadySet", err)
	}
	if !o.Single() {
		t.Error("String should use the single-buffer fast path")
	}
}

func TestEncodeSSEEscapesNewlinesAndTerminates(t *testing.T) {
	out := EncodeSSE(Event{ID: "1", Event: "tick", Data: "line1\nline2"})
	s := string(out)
	if !strings.HasSuffix(s, "\r\n\r\n") {
		t.Errorf("event should terminate with a blank line: %q", s)
	}
	if !strings.Contains(s, "data:line1\r\ndata:line2\r\n") {
		t.Errorf("embedded newline should split into two data: lines: %q", s)
	}
}

func TestFormCollectMap(t *testing.T) {
	in, sink := NewInbound(4)
	ctx := context.Background()
	go func() {
		_ = sink.Emit(ctx, []byte("a=1&b=2&a=3"))
		sink.Complete(nil)
	}()
	f := NewForm(in)
	values, err := f.CollectMap(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := values["a"]; len(got) != 2 || got[0] != "1" || got[1] != "3" {
		t.Errorf("a = %v", got)
	}
	if values.Get("b") != "2" {
		t.Errorf("b = %v", values.Get("b"))
	}
}
