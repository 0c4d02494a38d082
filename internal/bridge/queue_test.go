package bridge

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestByteQueue_PreservesOrder(t *testing.T) {
	q := newByteQueue()
	q.Push([]byte("abc"))
	q.Push([]byte("def"))
	q.Push([]byte("ghi"))

	got, err := q.Next(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, []byte("abcdefghi")) {
		t.Errorf("got %q, want %q", got, "abcdefghi")
	}
}

func TestByteQueue_BlocksUntilPush(t *testing.T) {
	q := newByteQueue()
	done := make(chan []byte, 1)
	go func() {
		got, _ := q.Next(context.Background())
		done <- got
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push([]byte("late"))

	select {
	case got := <-done:
		if !bytes.Equal(got, []byte("late")) {
			t.Errorf("got %q, want %q", got, "late")
		}
	case <-time.After(time.Second):
		t.Fatal("Next never unblocked")
	}
}

func TestByteQueue_DrainsThenEOF(t *testing.T) {
	q := newByteQueue()
	q.Push([]byte("tail"))
	q.Close()

	got, err := q.Next(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, []byte("tail")) {
		t.Errorf("got %q, want %q", got, "tail")
	}

	if _, err := q.Next(context.Background()); err != io.EOF {
		t.Errorf("error = %v, want io.EOF", err)
	}
}

func TestByteQueue_ContextCancellation(t *testing.T) {
	q := newByteQueue()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Next(ctx)
		errCh <- err
	}()
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Next never unblocked on cancellation")
	}
}

func TestByteQueue_UnboundedGrowth(t *testing.T) {
	q := newByteQueue()
	chunk := bytes.Repeat([]byte("x"), 1024)
	// A stalled consumer must never cause drops.
	for i := 0; i < 1000; i++ {
		q.Push(chunk)
	}
	got, err := q.Next(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1000*1024 {
		t.Errorf("got %d bytes, want %d", len(got), 1000*1024)
	}
}
