/*
Copyright 2024 The Corekernel Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package thread

import (
	"sync"
	"sync/atomic"

	"github.com/gokernel/corekernel/pkg/kerrors"
)

// Kernel owns the scheduler, the interrupt controller, and the TID
// registry, and drives the cooperative context switch.
//
// There is deliberately no mutex guarding the ready queue or the
// thread table. At most one thread's goroutine is ever past the
// "resume" receive in runThread/switchAndWait at a time; every other
// live thread is parked waiting for its turn. All kernel-state
// mutation happens on that single active goroutine, and handing off
// the CPU is a channel send, which is a happens-before edge under the
// Go memory model. This is the goroutine-and-token substitute for
// disabling interrupts on a real uniprocessor: the invariant it
// provides (exactly one context makes progress through kernel code at
// a time) is the same one the original gets from turning interrupts
// off.
type Kernel struct {
	Interrupt *Interrupt

	policy     Policy
	quantum    uint64
	maxThreads int

	threads    map[int]*TCB
	current    *TCB
	toBeReaped *TCB

	idleNotify chan struct{}

	// pendingTicks counts clock ticks requested from outside the single
	// active goroutine (cmd/corekernel's wall-clock driver, or a
	// hardware timer in a real port) that have not yet been applied.
	// RequestTick is the only Kernel method safe to call from any
	// goroutine; it only ever touches this atomic counter. The ticks it
	// records are applied in order, via onTick, the next time the
	// active thread reaches a safe point (drainTicks, called from
	// Yield/Sleep/Finish).
	pendingTicks atomic.Uint64

	halted   chan struct{}
	haltOnce sync.Once

	// Events, if set, receives a notification on every dispatch and on
	// Halt -- cmd/corekernel's -monitor websocket stream subscribes
	// here instead of reading Current/threads from an external
	// goroutine, which would race the single active kernel goroutine
	// this type's own doc comment describes. Sends are non-blocking: a
	// slow or absent subscriber never stalls the kernel.
	Events chan Event
}

// EventKind names what changed in a Event.
type EventKind int

const (
	EventDispatch EventKind = iota
	EventHalt
)

// Event is one kernel-visible occurrence, pushed to Events.
type Event struct {
	Kind       EventKind
	ThreadID   int
	ThreadName string
	Tick       uint64
}

func (k *Kernel) emit(e Event) {
	if k.Events == nil {
		return
	}
	select {
	case k.Events <- e:
	default:
	}
}

// NewKernel builds a kernel around the given scheduling policy. quantum
// is the round-robin time slice in ticks (ignored by other policies).
// maxThreads bounds the number of simultaneously live threads;
// exceeding it is fatal, matching the original's MaxThreadNum assert.
func NewKernel(policy Policy, quantum uint64, maxThreads int) *Kernel {
	return &Kernel{
		Interrupt:  NewInterrupt(),
		policy:     policy,
		quantum:    quantum,
		maxThreads: maxThreads,
		threads:    make(map[int]*TCB),
		idleNotify: make(chan struct{}, 1),
		halted:     make(chan struct{}),
	}
}

func (k *Kernel) allocTID() int {
	if len(k.threads) >= k.maxThreads {
		kerrors.FatalPanic("thread: live thread count reached the maximum of %d", k.maxThreads)
	}
	for tid := 0; tid < k.maxThreads; tid++ {
		if _, used := k.threads[tid]; !used {
			return tid
		}
	}
	kerrors.FatalPanic("thread: no free TID despite count check")
	return -1
}

// Current returns the thread presently holding the CPU.
func (k *Kernel) Current() *TCB { return k.current }

// Find looks up a live thread by TID, used by join and by message
// delivery to validate a destination.
func (k *Kernel) Find(tid int) (*TCB, bool) {
	t, ok := k.threads[tid]
	return t, ok
}

// Policy returns the active scheduling policy, mainly for debug
// logging and tests.
func (k *Kernel) Policy() Policy { return k.policy }

// Boot creates and runs the first thread. It must be called exactly
// once, before any other Kernel method, since there is no "current"
// thread yet to hand off from.
func (k *Kernel) Boot(name string, priority int, fn func(arg any), arg any) *TCB {
	t := newTCB(k.allocTID(), name, priority, fn, arg)
	k.threads[t.tid] = t
	t.status = Running
	t.lastTick = k.Interrupt.Ticks()
	k.current = t
	k.emit(Event{Kind: EventDispatch, ThreadID: t.tid, ThreadName: t.name, Tick: t.lastTick})
	go k.runThread(t)
	t.resume <- struct{}{}
	return t
}

func (k *Kernel) runThread(t *TCB) {
	<-t.resume
	t.fn(t.arg)
	k.Finish()
}

// Fork allocates a TCB for fn and adds it to the ready queue. If the
// active policy is preemptive and the new thread outranks the caller,
// the caller yields immediately so the higher-priority thread can run.
func (k *Kernel) Fork(name string, priority int, fn func(arg any), arg any) *TCB {
	old := k.Interrupt.Disable()
	t := newTCB(k.allocTID(), name, priority, fn, arg)
	k.threads[t.tid] = t
	k.ReadyToRun(t)
	k.Interrupt.Restore(old)

	go k.runThread(t)

	if k.Outranks(t) {
		k.Yield()
	}
	return t
}

// ReadyToRun marks t ready and enqueues it under the active policy.
// It does not itself preempt; see Outranks.
func (k *Kernel) ReadyToRun(t *TCB) {
	t.status = Ready
	k.policy.ready(t)
	select {
	case k.idleNotify <- struct{}{}:
	default:
	}
}

// Outranks reports whether t should cause the caller to yield right
// after being readied: true only under a preemptive policy, when t is
// strictly higher priority than whoever currently holds the CPU.
func (k *Kernel) Outranks(t *TCB) bool {
	return k.policy.preemptive() && k.current != nil && t.priority < k.current.priority
}

// Yield relinquishes the CPU if another thread is ready to run. It
// returns immediately, without disabling interrupts any longer than
// necessary, if the ready queue is empty.
func (k *Kernel) Yield() {
	k.drainTicks()
	old := k.Interrupt.Disable()
	next := k.policy.next()
	if next == nil {
		k.Interrupt.Restore(old)
		return
	}
	self := k.current
	k.ReadyToRun(self)
	k.switchAndWait(self, next)
	k.Interrupt.Restore(old)
}

// Sleep blocks the current thread until something else readies it.
// The caller must already have interrupts disabled, the same
// precondition the synchronization primitives rely on.
func (k *Kernel) Sleep() {
	k.drainTicks()
	if k.Interrupt.Enabled() {
		kerrors.FatalPanic("thread: Sleep called with interrupts enabled")
	}
	self := k.current
	self.status = Blocked
	next := k.policy.next()
	for next == nil {
		k.idle()
		next = k.policy.next()
	}
	k.switchAndWait(self, next)
}

// Finish marks the current thread for reaping and switches away
// permanently. Like the original's Finish, it never returns to its
// caller: the call after it in runThread (or in a syscall handler that
// calls Finish directly, such as exit) is dead code by construction,
// not just by convention. self.resume is never sent to again once self
// is off the ready queue, so the blocking receive parks this goroutine
// forever rather than letting it fall back into kernel code running
// concurrently with whatever thread just got the CPU.
func (k *Kernel) Finish() {
	k.drainTicks()
	k.Interrupt.Disable()
	self := k.current
	self.status = Blocked
	k.toBeReaped = self
	next := k.policy.next()
	for next == nil {
		k.idle()
		next = k.policy.next()
	}
	k.dispatch(next)
	<-self.resume
}

// RequestTick records a clock tick from outside the single active
// goroutine. It is the only Kernel method safe to call from any
// goroutine: every other method assumes its caller is whichever
// thread's goroutine the scheduler has made current, which an
// external wall-clock driver never is. The tick is not applied to
// kernel state immediately; it is queued and applied, in order, the
// next time the active thread reaches a safe point (see drainTicks).
func (k *Kernel) RequestTick() {
	k.pendingTicks.Add(1)
}

// drainTicks applies any ticks accumulated since the last safe point.
// Called from Yield, Sleep, and Finish, all of which already require
// their caller to be the current active goroutine.
func (k *Kernel) drainTicks() {
	for n := k.pendingTicks.Swap(0); n > 0; n-- {
		k.onTick()
	}
}

// onTick advances the simulated clock by one and, under round-robin,
// forces a yield once the current thread's quantum is used up.
func (k *Kernel) onTick() {
	k.Interrupt.Tick()
	if _, ok := k.policy.(*RoundRobinPolicy); !ok {
		return
	}
	if k.current == nil {
		return
	}
	k.current.ticksUsed++
	if k.current.ticksUsed >= k.quantum {
		k.Yield()
	}
}

// Join blocks the calling thread until tid is no longer a live thread.
// This is the baseline spin-yield contract from spec.md §4.7: a
// per-thread completion condition variable, signaled from Finish, is
// the preferred refinement noted in spec.md §9, but spinning on Find
// plus Yield needs no extra bookkeeping on TCB and is what the
// original does.
func (k *Kernel) Join(tid int) {
	for {
		if _, ok := k.Find(tid); !ok {
			return
		}
		k.Yield()
	}
}

// Halt shuts the kernel down; Wait returns once Halt has been called.
func (k *Kernel) Halt() {
	k.haltOnce.Do(func() {
		close(k.halted)
		k.emit(Event{Kind: EventHalt, Tick: k.Interrupt.Ticks()})
	})
}

// Wait blocks until Halt is called.
func (k *Kernel) Wait() {
	<-k.halted
}

// idle blocks until ReadyToRun wakes a sleeping CPU, used when the
// ready queue is empty and no thread can run.
func (k *Kernel) idle() {
	<-k.idleNotify
}

// switchAndWait hands the CPU to next and blocks self until it is
// scheduled again.
func (k *Kernel) switchAndWait(self, next *TCB) {
	k.dispatch(next)
	<-self.resume
}

// dispatch reaps the previously finished thread (if any), then hands
// the CPU to next.
func (k *Kernel) dispatch(next *TCB) {
	if self := k.current; self != nil {
		self.checkOverflow()
	}
	if k.toBeReaped != nil {
		dead := k.toBeReaped
		k.toBeReaped = nil
		delete(k.threads, dead.tid)
		close(dead.done)
	}
	next.status = Running
	next.lastTick = k.Interrupt.Ticks()
	k.current = next
	k.emit(Event{Kind: EventDispatch, ThreadID: next.tid, ThreadName: next.name, Tick: next.lastTick})
	next.resume <- struct{}{}
}
