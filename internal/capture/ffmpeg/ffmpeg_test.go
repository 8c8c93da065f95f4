package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"snaptrigger/internal/capture"
	"snaptrigger/internal/source"
)

func TestArgs(t *testing.T) {
	c := New(Config{})
	args := c.Args("rtsp://10.0.0.2/s1", capture.Timeouts{Connect: 3 * time.Second, Read: 3 * time.Second})

	i := slices.Index(args, "-timeout")
	if i < 0 || args[i+1] != "3000000" {
		t.Errorf("expected -timeout 3000000 (µs), got %v", args)
	}
	i = slices.Index(args, "-rtsp_transport")
	if i < 0 || args[i+1] != "tcp" {
		t.Errorf("expected tcp transport, got %v", args)
	}
	i = slices.Index(args, "-i")
	if i < 0 || args[i+1] != "rtsp://10.0.0.2/s1" {
		t.Errorf("expected input url, got %v", args)
	}
	if args[len(args)-1] != "pipe:1" {
		t.Errorf("expected output to stdout, got %q", args[len(args)-1])
	}
}

func TestClassify(t *testing.T) {
	exit := errors.New("exit status 1")
	tests := []struct {
		stderr string
		want   capture.Kind
	}{
		{"[tcp @ 0x55] Connection to tcp://10.0.0.2:554 failed: Connection refused", capture.OpenFailed},
		{"[rtsp @ 0x55] method DESCRIBE failed: 401 Unauthorized", capture.OpenFailed},
		{"rtsp://10.0.0.2/s1: Invalid data found when processing input", capture.OpenFailed},
		{"Error while decoding stream #0:0", capture.ReadFailed},
		{"", capture.ReadFailed},
	}
	for _, tt := range tests {
		t.Run(tt.stderr, func(t *testing.T) {
			got := Classify(tt.stderr, exit)
			if got.Kind != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.stderr, got.Kind, tt.want)
			}
			if !errors.Is(got, exit) {
				t.Error("classified error should wrap the exit error")
			}
		})
	}
}

func TestCaptureMissingBinary(t *testing.T) {
	c := New(Config{Path: "/nonexistent/ffmpeg-binary"})
	_, err := c.Capture(context.Background(), source.Source{Name: "garage", Address: "rtsp://127.0.0.1:1/s"}, capture.Timeouts{Connect: time.Second, Read: time.Second})
	if capture.KindOf(err) != capture.OpenFailed {
		t.Fatalf("expected OpenFailed, got %v", err)
	}
}

func TestLimitedBuffer(t *testing.T) {
	lb := limitedBuffer{buf: &bytes.Buffer{}, max: 4}
	n, err := lb.Write([]byte("abcdef"))
	if err != nil || n != 6 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if lb.buf.String() != "abcd" {
		t.Errorf("expected truncated buffer, got %q", lb.buf.String())
	}
}
