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

// Package machine is the simulated hardware boundary: a sector disk, a
// character console, and (in later files) the CPU/MMU surface the
// exception dispatcher drives. Console is the one part built on kernel
// packages (pkg/ksync and pkg/thread, for its blocking points); the
// rest depends on nothing above it.
package machine

import "github.com/gokernel/corekernel/pkg/diskstore"

// Disk is the raw asynchronous disk device: a request returns
// immediately and the completion handler fires once the transfer is
// done. There is no simulated seek/rotate latency here -- the transfer
// happens synchronously inside ReadRequest/WriteRequest and the
// completion handler is invoked right after, which preserves the
// request/completion *contract* that pkg/fsys's sector cache is built
// against without needing a second goroutine racing the single active
// kernel thread.
type Disk struct {
	backend    diskstore.Backend
	onComplete func()
}

// NewDisk wraps backend as a Disk. The completion handler is nil until
// SetCompletionHandler is called; a request issued before that point
// still completes, it just has nobody to notify.
func NewDisk(backend diskstore.Backend) *Disk {
	return &Disk{backend: backend}
}

// SetCompletionHandler registers the callback invoked after every
// request completes, normally a semaphore V from the caller layered on
// top (pkg/fsys.Cache).
func (d *Disk) SetCompletionHandler(fn func()) { d.onComplete = fn }

// ReadRequest starts a read of sector into data, completing before
// returning and then notifying the completion handler.
func (d *Disk) ReadRequest(sector int, data []byte) error {
	err := d.backend.ReadSector(sector, data)
	if d.onComplete != nil {
		d.onComplete()
	}
	return err
}

// WriteRequest starts a write of data to sector, completing before
// returning and then notifying the completion handler.
func (d *Disk) WriteRequest(sector int, data []byte) error {
	err := d.backend.WriteSector(sector, data)
	if d.onComplete != nil {
		d.onComplete()
	}
	return err
}

// NumSectors reports the size of the underlying backend.
func (d *Disk) NumSectors() int { return d.backend.NumSectors() }

// SectorSize reports the fixed sector size of the underlying backend.
func (d *Disk) SectorSize() int { return d.backend.SectorSize() }

// Close releases the underlying backend.
func (d *Disk) Close() error { return d.backend.Close() }
