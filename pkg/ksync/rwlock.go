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

// RWLock is a reader-writer lock built from two more primitive locks:
// a short reader-count lock guarding the count itself, and a
// writer-exclusion lock the first reader acquires and the last reader
// releases. Writers take the writer-exclusion lock directly. This
// does not prevent writer starvation under a steady stream of
// readers -- an acknowledged limitation, not a bug.
type RWLock struct {
	readerCount     *Lock
	writerExclusion *Lock
	readers         int
}

// NewRWLock creates an unheld reader-writer lock.
func NewRWLock(k *thread.Kernel, name string) *RWLock {
	return &RWLock{
		readerCount:     NewLock(k, name+".readers"),
		writerExclusion: NewLock(k, name+".writer"),
	}
}

// ReaderIn acquires the lock for reading.
func (l *RWLock) ReaderIn() {
	l.readerCount.Acquire()
	l.readers++
	if l.readers == 1 {
		l.writerExclusion.Acquire()
	}
	l.readerCount.Release()
}

// ReaderOut releases a read acquisition.
func (l *RWLock) ReaderOut() {
	l.readerCount.Acquire()
	l.readers--
	if l.readers == 0 {
		l.writerExclusion.Release()
	}
	l.readerCount.Release()
}

// WriterIn acquires the lock for writing, excluding all readers and
// other writers.
func (l *RWLock) WriterIn() {
	l.writerExclusion.Acquire()
}

// WriterOut releases a write acquisition.
func (l *RWLock) WriterOut() {
	l.writerExclusion.Release()
}
