package buffer

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

func TestBufferFIFO(t *testing.T) {
	b := N[int](2)
	for i := range 5 {
		if err := b.Add(i); err != nil {
			t.Fatalf("Add(%d) error: %v", i, err)
		}
	}
	if got := b.Len(); got != 5 {
		t.Fatalf("Len() = %d, want 5", got)
	}
	for want := range 5 {
		got, err := b.Next()
		if err != nil {
			t.Fatalf("Next() error: %v", err)
		}
		if got != want {
			t.Errorf("Next() = %d, want %d", got, want)
		}
	}
}

func TestBufferAddWakesReader(t *testing.T) {
	b := N[string](0)
	done := make(chan string)
	go func() {
		v, err := b.Next()
		if err != nil {
			done <- "error: " + err.Error()
			return
		}
		done <- v
	}()

	time.Sleep(10 * time.Millisecond)
	if err := b.Add("hello"); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	select {
	case got := <-done:
		if got != "hello" {
			t.Errorf("Next() = %q, want %q", got, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("reader was not woken by Add")
	}
}

func TestBufferCloseWriteDrains(t *testing.T) {
	b := N[int](4)
	b.Add(1)
	b.Add(2)
	if err := b.CloseWrite(); err != nil {
		t.Fatalf("CloseWrite() error: %v", err)
	}
	if err := b.Add(3); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("Add after CloseWrite error = %v, want io.ErrClosedPipe", err)
	}
	for _, want := range []int{1, 2} {
		got, err := b.Next()
		if err != nil || got != want {
			t.Fatalf("Next() = %d, %v; want %d, nil", got, err, want)
		}
	}
	if _, err := b.Next(); !errors.Is(err, ErrIteratorDone) {
		t.Errorf("Next() on drained buffer error = %v, want ErrIteratorDone", err)
	}
	if err := b.CloseWrite(); err != nil {
		t.Errorf("second CloseWrite() error: %v", err)
	}
}

func TestBufferCloseWithError(t *testing.T) {
	b := N[int](4)
	b.Add(1)
	boom := errors.New("boom")
	b.CloseWithError(boom)

	if _, err := b.Next(); !errors.Is(err, boom) {
		t.Errorf("Next() error = %v, want boom", err)
	}
	if err := b.Add(2); !errors.Is(err, boom) {
		t.Errorf("Add() error = %v, want boom", err)
	}
	if b.Error() != boom {
		t.Errorf("Error() = %v, want boom", b.Error())
	}
}

func TestBufferCloseUnblocksReader(t *testing.T) {
	b := N[int](0)
	errCh := make(chan error, 1)
	go func() {
		_, err := b.Next()
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	b.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, io.ErrClosedPipe) {
			t.Errorf("Next() error = %v, want io.ErrClosedPipe", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock reader")
	}
}

func TestBufferSnapshotIsCopy(t *testing.T) {
	b := N[int](4)
	b.Add(1)
	b.Add(2)
	snap := b.Snapshot()
	snap[0] = 100
	got, _ := b.Next()
	if got != 1 {
		t.Errorf("Next() = %d after mutating snapshot, want 1", got)
	}
	b.Reset()
	if b.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", b.Len())
	}
}

func TestBufferConcurrent(t *testing.T) {
	const producers, perProducer = 4, 250
	b := N[int](16)

	var wg sync.WaitGroup
	for range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perProducer {
				b.Add(i)
			}
		}()
	}
	go func() {
		wg.Wait()
		b.CloseWrite()
	}()

	count := 0
	for {
		_, err := b.Next()
		if errors.Is(err, ErrIteratorDone) {
			break
		}
		if err != nil {
			t.Fatalf("Next() error: %v", err)
		}
		count++
	}
	if count != producers*perProducer {
		t.Errorf("read %d elements, want %d", count, producers*perProducer)
	}
}
