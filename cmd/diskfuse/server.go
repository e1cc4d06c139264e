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

package main

import (
	"fmt"

	"github.com/gokernel/corekernel/pkg/diskstore"
	"github.com/gokernel/corekernel/pkg/fsys"
	"github.com/gokernel/corekernel/pkg/machine"
	"github.com/gokernel/corekernel/pkg/thread"
)

// diskParams is the disk geometry a mounted image was formatted with.
type diskParams struct {
	path       string
	numSectors int
	cacheSlots int
}

// fsServer boots a minimal single-thread kernel over a disk image and
// serializes every file-system operation through it. bazil.org/fuse
// dispatches each request on its own goroutine, none of which is ever
// the kernel's single active thread; calling into fsys.FileSystem
// directly from one of those goroutines would touch the same
// Kernel.Current()-reading locks cmd/corekernel's -monitor websocket
// used to race before it was rewritten onto an event channel (see
// DESIGN.md). Here the fix runs the other direction: every FUSE
// handler goroutine calls do, which hands a closure to the boot
// thread over a channel and blocks for the result, rather than ever
// touching fs itself.
type fsServer struct {
	k     *thread.Kernel
	reqs  chan fsRequest
	close chan struct{}
}

type fsRequest struct {
	run  func(fs *fsys.FileSystem) (any, error)
	resp chan fsResult
}

type fsResult struct {
	val any
	err error
}

// startFSServer opens the disk image, boots the kernel, mounts the
// file system, and starts the request loop on the boot thread. It
// blocks until the file system is mounted (or mounting fails), so a
// caller never issues a request before the server is ready.
func startFSServer(df diskParams) (*fsServer, error) {
	backend, err := diskstore.Open(df.path, df.numSectors, fsys.SectorSize)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", df.path, err)
	}

	k := thread.NewKernel(thread.NewFIFOPolicy(), 0, 1)
	disk := machine.NewDisk(backend)
	srv := &fsServer{
		k:     k,
		reqs:  make(chan fsRequest),
		close: make(chan struct{}),
	}
	ready := make(chan error, 1)

	k.Boot("diskfuse", thread.MinPriority, func(any) {
		fs, err := fsys.New(k, disk, df.cacheSlots, df.numSectors, false)
		ready <- err
		if err != nil {
			k.Halt()
			return
		}
		defer func() {
			fs.Shutdown()
			backend.Close()
			k.Halt()
		}()
		for {
			select {
			case req := <-srv.reqs:
				v, err := req.run(fs)
				req.resp <- fsResult{v, err}
			case <-srv.close:
				return
			}
		}
	}, nil)

	if err := <-ready; err != nil {
		return nil, fmt.Errorf("mounting file system: %w", err)
	}
	return srv, nil
}

// do runs fn on the boot thread and returns its result, blocking the
// calling FUSE handler goroutine until fn completes.
func (s *fsServer) do(fn func(fs *fsys.FileSystem) (any, error)) (any, error) {
	resp := make(chan fsResult, 1)
	s.reqs <- fsRequest{run: fn, resp: resp}
	r := <-resp
	return r.val, r.err
}

// Stop tells the boot thread to shut the file system down and halt,
// and waits for that to finish.
func (s *fsServer) Stop() {
	close(s.close)
	s.k.Wait()
}
