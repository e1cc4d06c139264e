package ksync

import (
	"testing"
	"time"

	"github.com/gokernel/corekernel/pkg/thread"
)

// boundedBuffer is a tiny bounded producer/consumer buffer built on
// two semaphores and a lock, the classic semaphore exercise.
type boundedBuffer struct {
	lock     *Lock
	empty    *Semaphore
	full     *Semaphore
	items    []int
	capacity int
}

func newBoundedBuffer(k *thread.Kernel, capacity int) *boundedBuffer {
	return &boundedBuffer{
		lock:     NewLock(k, "buf"),
		empty:    NewSemaphore(k, "empty", capacity),
		full:     NewSemaphore(k, "full", 0),
		capacity: capacity,
	}
}

func (b *boundedBuffer) put(v int) {
	b.empty.P()
	b.lock.Acquire()
	if len(b.items) >= b.capacity {
		panic("put into full buffer")
	}
	b.items = append(b.items, v)
	b.lock.Release()
	b.full.V()
}

func (b *boundedBuffer) get() int {
	b.full.P()
	b.lock.Acquire()
	if len(b.items) == 0 {
		panic("get from empty buffer")
	}
	v := b.items[0]
	b.items = b.items[1:]
	b.lock.Release()
	b.empty.V()
	return v
}

func TestProducerConsumer(t *testing.T) {
	const total = 15
	k := thread.NewKernel(thread.NewFIFOPolicy(), 0, 16)
	buf := newBoundedBuffer(k, 3)
	consumed := make([]int, 0, total)
	done := make(chan struct{})

	k.Boot("main", thread.MinPriority, func(any) {
		k.Fork("producer", thread.MinPriority, func(any) {
			for i := 0; i < total; i++ {
				buf.put(i)
			}
		}, nil)
		k.Fork("consumer", thread.MinPriority, func(any) {
			for i := 0; i < total; i++ {
				consumed = append(consumed, buf.get())
			}
			close(done)
		}, nil)
	}, nil)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer/consumer did not finish")
	}
	if len(consumed) != total {
		t.Fatalf("expected %d items consumed, got %d", total, len(consumed))
	}
	for i, v := range consumed {
		if v != i {
			t.Fatalf("consumed out of order at %d: got %d", i, v)
		}
	}
}

func TestBarrierOrdersBeforeAfter(t *testing.T) {
	const n = 5
	k := thread.NewKernel(thread.NewFIFOPolicy(), 0, 16)
	b := NewBarrier(k, n)
	lock := NewLock(k, "counter")
	counter := 0

	var before, after []int
	recordLock := NewLock(k, "record")
	done := make(chan struct{})
	var remaining int
	afterTooEarly := false

	k.Boot("main", thread.MinPriority, func(any) {
		remaining = n
		for i := 0; i < n; i++ {
			i := i
			k.Fork("party", thread.MinPriority, func(any) {
				recordLock.Acquire()
				before = append(before, i)
				recordLock.Release()

				lock.Acquire()
				counter++
				lock.Release()

				b.Wait()

				recordLock.Acquire()
				if len(before) != n {
					afterTooEarly = true
				}
				after = append(after, i)
				remaining--
				if remaining == 0 {
					close(done)
				}
				recordLock.Release()
			}, nil)
		}
	}, nil)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("barrier parties never all finished")
	}
	if counter != n {
		t.Fatalf("expected counter == %d, got %d", n, counter)
	}
	if len(before) != n || len(after) != n {
		t.Fatalf("expected %d before and after entries, got %d/%d", n, len(before), len(after))
	}
	if afterTooEarly {
		t.Fatal("an \"after\" entry was recorded before every \"before\" entry was")
	}
}

func TestMailboxSendToMissingThreadFails(t *testing.T) {
	k := thread.NewKernel(thread.NewFIFOPolicy(), 0, 16)
	mb := NewMailbox(k)
	done := make(chan struct{})
	var ok bool

	k.Boot("main", thread.MinPriority, func(any) {
		ok = mb.Send(999, []byte("hi"))
		close(done)
	}, nil)

	<-done
	if ok {
		t.Fatal("expected Send to a nonexistent thread to fail")
	}
}

func TestMailboxRoundTrip(t *testing.T) {
	k := thread.NewKernel(thread.NewFIFOPolicy(), 0, 16)
	mb := NewMailbox(k)
	done := make(chan struct{})
	var got Message
	var ok bool

	k.Boot("main", thread.MinPriority, func(any) {
		receiver := k.Fork("receiver", thread.MinPriority, func(any) {
			k.Yield()
			got, ok = mb.Receive(-1)
			close(done)
		}, nil)
		mb.Send(receiver.ID(), []byte("payload"))
	}, nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("mailbox round trip never completed")
	}
	if !ok || string(got.Payload) != "payload" {
		t.Fatalf("unexpected message: %+v ok=%v", got, ok)
	}
}
