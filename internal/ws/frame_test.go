package ws

import (
	"bufio"
	"bytes"
	"testing"
)

func TestBuildReadFrameRoundTrip(t *testing.T) {
	payload := []byte("hello websocket")
	frame, err := BuildFrame(MessageText, payload, false)
	if err != nil {
		t.Fatalf("BuildFrame: %v", err)
	}
	typ, got, fin, err := ReadFrame(bufio.NewReader(bytes.NewReader(frame)))
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if typ != MessageText || !fin || !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch: typ=%v fin=%v got=%q", typ, fin, got)
	}
}

func TestBuildReadFrameMasked(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 200) // forces the 126 length branch
	frame, err := BuildFrame(MessageBinary, payload, true)
	if err != nil {
		t.Fatalf("BuildFrame: %v", err)
	}
	typ, got, _, err := ReadFrame(bufio.NewReader(bytes.NewReader(frame)))
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if typ != MessageBinary || !bytes.Equal(got, payload) {
		t.Fatalf("masked round trip mismatch")
	}
}

func TestBuildFrameLargePayloadLengthEncoding(t *testing.T) {
	payload := make([]byte, 70000)
	frame, err := BuildFrame(MessageBinary, payload, false)
	if err != nil {
		t.Fatalf("BuildFrame: %v", err)
	}
	_, got, _, err := ReadFrame(bufio.NewReader(bytes.NewReader(frame)))
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(got) != len(payload) {
		t.Fatalf("length mismatch: got %d want %d", len(got), len(payload))
	}
}

func TestEncodeCloseFrame(t *testing.T) {
	b := EncodeCloseFrame(StatusNormalClosure, "bye")
	if len(b) != 2+3 {
		t.Fatalf("unexpected close frame length %d", len(b))
	}
	if string(b[2:]) != "bye" {
		t.Fatalf("unexpected reason %q", b[2:])
	}
}
