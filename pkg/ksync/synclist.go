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

package ksync

import "github.com/gokernel/corekernel/pkg/thread"

// SyncList is a FIFO queue guarded by a monitor lock: every operation
// is bracketed by Acquire/Release, and Remove waits on a condition
// variable rather than spinning when the list is empty.
type SyncList[T any] struct {
	lock  *Lock
	empty *Cond
	items []T
}

// NewSyncList creates an empty synchronized list.
func NewSyncList[T any](k *thread.Kernel) *SyncList[T] {
	l := &SyncList[T]{lock: NewLock(k, "synclist")}
	l.empty = NewCond(k)
	return l
}

// Append adds item to the end of the list and wakes one waiter
// blocked in Remove, if any.
func (l *SyncList[T]) Append(item T) {
	l.lock.Acquire()
	l.items = append(l.items, item)
	l.empty.Signal(l.lock)
	l.lock.Release()
}

// Remove blocks until the list is non-empty, then removes and returns
// the head element.
func (l *SyncList[T]) Remove() T {
	l.lock.Acquire()
	defer l.lock.Release()
	for len(l.items) == 0 {
		l.empty.Wait(l.lock)
	}
	item := l.items[0]
	l.items = l.items[1:]
	return item
}

// Len returns the current list length under the monitor lock.
func (l *SyncList[T]) Len() int {
	l.lock.Acquire()
	defer l.lock.Release()
	return len(l.items)
}
