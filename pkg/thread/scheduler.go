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

// Policy picks which ready thread runs next. Implementations assume
// interrupts are already disabled by the caller: the scheduler itself
// provides no locking, the same way the original avoids using a Lock
// inside FindNextToRun to sidestep recursing back into the scheduler.
type Policy interface {
	// name identifies the policy, used in debug logging.
	Name() string
	// ready inserts t into the ready queue.
	ready(t *TCB)
	// next removes and returns the next thread to run, or nil if the
	// ready queue is empty.
	next() *TCB
	// preemptive reports whether ready() should trigger an immediate
	// yield by the caller when t outranks the currently running
	// thread (priority policy only).
	preemptive() bool
}

// FIFOPolicy runs ready threads in the order they became ready.
type FIFOPolicy struct {
	q []*TCB
}

func NewFIFOPolicy() *FIFOPolicy { return &FIFOPolicy{} }

func (p *FIFOPolicy) Name() string { return "fifo" }

func (p *FIFOPolicy) ready(t *TCB) {
	p.q = append(p.q, t)
}

func (p *FIFOPolicy) next() *TCB {
	if len(p.q) == 0 {
		return nil
	}
	t := p.q[0]
	p.q = p.q[1:]
	return t
}

func (p *FIFOPolicy) preemptive() bool { return false }

// PriorityPolicy keeps the ready queue ordered by priority, lower
// value first (0 is most urgent). Insertion is stable among threads
// of equal priority.
type PriorityPolicy struct {
	q []*TCB
}

func NewPriorityPolicy() *PriorityPolicy { return &PriorityPolicy{} }

func (p *PriorityPolicy) Name() string { return "priority" }

func (p *PriorityPolicy) ready(t *TCB) {
	i := 0
	for i < len(p.q) && p.q[i].priority <= t.priority {
		i++
	}
	p.q = append(p.q, nil)
	copy(p.q[i+1:], p.q[i:])
	p.q[i] = t
}

func (p *PriorityPolicy) next() *TCB {
	if len(p.q) == 0 {
		return nil
	}
	t := p.q[0]
	p.q = p.q[1:]
	return t
}

func (p *PriorityPolicy) preemptive() bool { return true }

// RoundRobinPolicy is a FIFO ready queue whose fairness comes from the
// kernel forcing a yield once a thread's quantum (the quantum argument
// to NewKernel) is exhausted, rather than from the queue ordering itself.
type RoundRobinPolicy struct {
	q []*TCB
}

func NewRoundRobinPolicy() *RoundRobinPolicy { return &RoundRobinPolicy{} }

func (p *RoundRobinPolicy) Name() string { return "round-robin" }

func (p *RoundRobinPolicy) ready(t *TCB) {
	t.ticksUsed = 0
	p.q = append(p.q, t)
}

func (p *RoundRobinPolicy) next() *TCB {
	if len(p.q) == 0 {
		return nil
	}
	t := p.q[0]
	p.q = p.q[1:]
	return t
}

func (p *RoundRobinPolicy) preemptive() bool { return false }
