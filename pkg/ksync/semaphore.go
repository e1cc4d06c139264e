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

// Package ksync implements the kernel's synchronization primitives --
// semaphores, locks, condition variables, a reader-writer lock, a
// barrier, a synchronized list, and inter-thread mailboxes -- all
// built on pkg/thread's interrupt-disable primitive the way the
// original builds every higher primitive out of Semaphore.
package ksync

import "github.com/gokernel/corekernel/pkg/thread"

// Semaphore is a non-negative counter with a FIFO wait queue. P blocks
// until the counter is positive then decrements it; V increments and
// wakes at most one waiter.
type Semaphore struct {
	name  string
	k     *thread.Kernel
	value int
	queue []*thread.TCB
}

// NewSemaphore creates a semaphore with the given initial value.
// name is for debug logging only.
func NewSemaphore(k *thread.Kernel, name string, initial int) *Semaphore {
	return &Semaphore{name: name, k: k, value: initial}
}

// P waits until the semaphore is positive, then decrements it.
func (s *Semaphore) P() {
	old := s.k.Interrupt.Disable()
	for s.value == 0 {
		s.queue = append(s.queue, s.k.Current())
		s.k.Sleep()
	}
	s.value--
	s.k.Interrupt.Restore(old)
}

// V increments the semaphore and wakes the longest-waiting blocked
// thread, if any.
func (s *Semaphore) V() {
	old := s.k.Interrupt.Disable()
	if len(s.queue) > 0 {
		t := s.queue[0]
		s.queue = s.queue[1:]
		s.k.ReadyToRun(t)
	}
	s.value++
	s.k.Interrupt.Restore(old)
}

// Value returns the current counter value, for debugging and tests
// only -- production code must never branch on it outside of P/V.
func (s *Semaphore) Value() int {
	return s.value
}
