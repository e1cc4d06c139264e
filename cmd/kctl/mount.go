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
	"flag"
	"fmt"

	"github.com/gokernel/corekernel/pkg/config"
	"github.com/gokernel/corekernel/pkg/diskstore"
	"github.com/gokernel/corekernel/pkg/fsys"
	"github.com/gokernel/corekernel/pkg/machine"
	"github.com/gokernel/corekernel/pkg/thread"
)

// diskFlags are the disk-geometry flags every mode that touches a disk
// image registers, defaulted from the same config.Default cmd/corekernel
// boots with so a disk image one tool formats is readable by the other.
type diskFlags struct {
	path       *string
	numSectors *int
	cacheSlots *int
}

func registerDiskFlags(flags *flag.FlagSet) *diskFlags {
	cfg := config.Default()
	return &diskFlags{
		path:       flags.String("disk", cfg.DiskPath, "disk image path, or backend:path (file, leveldb, kv)"),
		numSectors: flags.Int("sectors", cfg.NumSectors, "sector count (mkfs formats this many; other modes must be given the count the image was made with)"),
		cacheSlots: flags.Int("cache", cfg.CacheSlots, "sector cache slots"),
	}
}

// withFileSystem boots a minimal, single-thread FIFO kernel over the
// disk image df names, mounts its file system, runs fn against it on
// that one thread, and halts. fsys.FileSystem's locks still require a
// live *thread.Kernel underneath them -- they block on ksync.Lock and
// ksync.Semaphore, which read Kernel.Current() -- but an offline tool
// running one foreground command at a time needs none of that kernel's
// scheduling policy, quantum, or thread capacity beyond the one thread
// fn runs on.
func withFileSystem(df *diskFlags, format bool, fn func(fs *fsys.FileSystem) error) error {
	backend, err := diskstore.Open(*df.path, *df.numSectors, fsys.SectorSize)
	if err != nil {
		return fmt.Errorf("opening %s: %w", *df.path, err)
	}
	defer backend.Close()

	k := thread.NewKernel(thread.NewFIFOPolicy(), 0, 1)
	disk := machine.NewDisk(backend)

	var runErr error
	k.Boot("kctl", thread.MinPriority, func(any) {
		fs, err := fsys.New(k, disk, *df.cacheSlots, *df.numSectors, format)
		if err != nil {
			runErr = fmt.Errorf("mounting file system: %w", err)
			k.Halt()
			return
		}
		runErr = fn(fs)
		if shutErr := fs.Shutdown(); shutErr != nil && runErr == nil {
			runErr = shutErr
		}
		k.Halt()
	}, nil)
	k.Wait()
	return runErr
}
