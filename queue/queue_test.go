package queue

import (
	"context"
	"testing"
	"time"
)

func TestPutGetFIFOOrder(t *testing.T) {
	q := New[int](4)
	q.Put(1)
	q.Put(2)
	q.Put(3)

	ctx := context.Background()
	for _, want := range []int{1, 2, 3} {
		got, ok := q.Get(ctx)
		if !ok || got != want {
			t.Fatalf("expected %d, got %d ok=%v", want, got, ok)
		}
	}
}

func TestPutDropsOldestAtCapacity(t *testing.T) {
	q := New[int](2)
	q.Put(1)
	q.Put(2)

	dropped := q.Put(3)
	if !dropped {
		t.Fatal("expected Put beyond capacity to report a drop")
	}

	ctx := context.Background()
	first, _ := q.Get(ctx)
	second, _ := q.Get(ctx)

	if first != 2 || second != 3 {
		t.Fatalf("expected oldest (1) dropped, leaving [2 3], got [%d %d]", first, second)
	}
}

func TestTryGetOnEmptyQueue(t *testing.T) {
	q := New[int](4)
	_, ok := q.TryGet()
	if ok {
		t.Fatal("expected TryGet on empty queue to report not ok")
	}

	q.Put(9)
	v, ok := q.TryGet()
	if !ok || v != 9 {
		t.Fatalf("expected 9, got %d ok=%v", v, ok)
	}
}

func TestGetBlocksUntilCanceled(t *testing.T) {
	q := New[int](4)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok := q.Get(ctx)
	if ok {
		t.Fatal("expected Get on an empty queue with a canceled context to report not ok")
	}
}

func TestLenTracksContents(t *testing.T) {
	q := New[int](4)
	if q.Len() != 0 {
		t.Fatalf("expected 0, got %d", q.Len())
	}

	q.Put(1)
	q.Put(2)
	if q.Len() != 2 {
		t.Fatalf("expected 2, got %d", q.Len())
	}

	q.Get(context.Background())
	if q.Len() != 1 {
		t.Fatalf("expected 1, got %d", q.Len())
	}
}
