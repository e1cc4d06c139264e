package thread

import (
	"testing"
	"time"
)

func TestForkRunsConcurrently(t *testing.T) {
	k := NewKernel(NewFIFOPolicy(), 0, 16)
	var order []string
	done := make(chan struct{})

	k.Boot("main", MinPriority, func(arg any) {
		k.Fork("worker", MinPriority, func(arg any) {
			order = append(order, "worker")
			close(done)
		}, nil)
		order = append(order, "main")
		k.Yield()
	}, nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker never ran")
	}
	if len(order) != 2 || order[0] != "main" || order[1] != "worker" {
		t.Fatalf("unexpected schedule order: %v", order)
	}
}

func TestPriorityPreemption(t *testing.T) {
	k := NewKernel(NewPriorityPolicy(), 0, 16)
	var order []string
	done := make(chan struct{})

	k.Boot("low", MinPriority, func(arg any) {
		k.Fork("high", MaxPriority, func(arg any) {
			order = append(order, "high")
			close(done)
		}, nil)
		// Fork should have yielded to "high" already since it outranks us.
		order = append(order, "low")
	}, nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("high priority thread never ran")
	}
	if len(order) != 2 || order[0] != "high" || order[1] != "low" {
		t.Fatalf("expected high priority thread to preempt, got %v", order)
	}
}

func TestMaxThreadsIsFatal(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when exceeding max live threads")
		}
	}()
	k := NewKernel(NewFIFOPolicy(), 0, 1)
	k.threads[0] = newTCB(0, "filler", MinPriority, func(any) {}, nil)
	k.allocTID()
}
