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

package machine

import (
	"io"

	"github.com/gokernel/corekernel/pkg/ksync"
	"github.com/gokernel/corekernel/pkg/thread"
)

// Console is the synchronous wrapper around a raw character device,
// serializing concurrent writers with writeLock and giving PutChar a
// real suspension point via writeSem, the way the original's
// SynchConsole brackets Console::PutChar with a completion semaphore.
// GetChar blocks directly on the underlying reader instead of polling a
// readSem: a real OS read already suspends the single active kernel
// goroutine exactly the way the original's readSem->P() does, so the
// extra semaphore would only duplicate that suspension.
type Console struct {
	r io.Reader
	w io.Writer

	writeLock *ksync.Lock
	writeSem  *ksync.Semaphore
	readLock  *ksync.Lock
}

// NewConsole wraps r/w (stdin/stdout in cmd/corekernel) as a Console
// bound to k's synchronization primitives.
func NewConsole(k *thread.Kernel, r io.Reader, w io.Writer) *Console {
	return &Console{
		r:         r,
		w:         w,
		writeLock: ksync.NewLock(k, "console.write"),
		writeSem:  ksync.NewSemaphore(k, "console.writeDone", 0),
		readLock:  ksync.NewLock(k, "console.read"),
	}
}

// PutChar writes a single byte, blocking the caller until the write
// "completes" (signaled through writeSem the moment it does, since this
// simulation has no real transmission latency).
func (c *Console) PutChar(ch byte) error {
	c.writeLock.Acquire()
	defer c.writeLock.Release()
	_, err := c.w.Write([]byte{ch})
	c.writeSem.V()
	c.writeSem.P()
	return err
}

// GetChar reads and returns a single byte, blocking until one is
// available.
func (c *Console) GetChar() (byte, error) {
	c.readLock.Acquire()
	defer c.readLock.Release()
	var buf [1]byte
	_, err := io.ReadFull(c.r, buf[:])
	return buf[0], err
}
