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

package fsys

import (
	"errors"
	"testing"
	"time"

	"github.com/gokernel/corekernel/pkg/diskstore"
	"github.com/gokernel/corekernel/pkg/kerrors"
	"github.com/gokernel/corekernel/pkg/machine"
	"github.com/gokernel/corekernel/pkg/thread"
)

const testNumSectors = 256

// withFS boots a single kernel thread, formats a fresh in-memory disk,
// and runs fn against the resulting filesystem. Every fsys call must
// happen from inside a kernel thread, since the synchronization
// primitives it is built on key state off the kernel's current thread.
func withFS(t *testing.T, fn func(fs *FileSystem)) {
	t.Helper()
	k := thread.NewKernel(thread.NewFIFOPolicy(), 0, 8)
	disk := machine.NewDisk(diskstore.NewMemBackend(testNumSectors, SectorSize))
	done := make(chan struct{})
	var fsErr error

	k.Boot("main", thread.MinPriority, func(any) {
		defer close(done)
		fs, err := New(k, disk, 4, testNumSectors, true)
		if err != nil {
			fsErr = err
			return
		}
		fn(fs)
	}, nil)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("filesystem test did not complete")
	}
	if fsErr != nil {
		t.Fatalf("New: %v", fsErr)
	}
}

func mustFreeCount(t *testing.T, fs *FileSystem) int {
	t.Helper()
	bm, err := fs.loadFreeMap()
	if err != nil {
		t.Fatalf("loadFreeMap: %v", err)
	}
	return bm.NumClear()
}

// TestCreateReadWriteRemove covers spec scenario 4: create, write,
// close, reopen, read back, remove, and confirm the free-map count
// returns to its pre-create value.
func TestCreateReadWriteRemove(t *testing.T) {
	withFS(t, func(fs *FileSystem) {
		if err := fs.Create("/a/b.txt", 0, false); err == nil {
			t.Fatal("expected Create to fail: parent directory /a does not exist")
		}
		if err := fs.Create("/a", 0, true); err != nil {
			t.Fatalf("Create(/a): %v", err)
		}

		before := mustFreeCount(t, fs)

		if err := fs.Create("/a/b.txt", 0, false); err != nil {
			t.Fatalf("Create(/a/b.txt): %v", err)
		}

		wf, err := fs.Open("/a/b.txt")
		if err != nil {
			t.Fatalf("Open for write: %v", err)
		}
		if _, err := wf.Write([]byte("hello")); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if err := wf.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}

		rf, err := fs.Open("/a/b.txt")
		if err != nil {
			t.Fatalf("Open for read: %v", err)
		}
		buf := make([]byte, 5)
		n, err := rf.Read(buf)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if n != 5 || string(buf) != "hello" {
			t.Fatalf("Read = %q (%d bytes), want %q", buf[:n], n, "hello")
		}
		if err := rf.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}

		ok, err := fs.Remove("/a/b.txt")
		if err != nil {
			t.Fatalf("Remove: %v", err)
		}
		if !ok {
			t.Fatal("Remove returned false for an unopened file")
		}

		if _, err := fs.Open("/a/b.txt"); !errors.Is(err, kerrors.ErrNameNotFound) {
			t.Fatalf("Open after Remove = %v, want ErrNameNotFound", err)
		}

		after := mustFreeCount(t, fs)
		if after != before {
			t.Fatalf("free-map count after remove = %d, want %d (pre-create)", after, before)
		}
	})
}

// TestRemoveWhileOpen covers spec scenario 6: Remove on a file with a
// live handle returns false and defers, the file becomes unreachable
// only after the last Close.
func TestRemoveWhileOpen(t *testing.T) {
	withFS(t, func(fs *FileSystem) {
		if err := fs.Create("/x", 0, false); err != nil {
			t.Fatalf("Create: %v", err)
		}
		f, err := fs.Open("/x")
		if err != nil {
			t.Fatalf("Open: %v", err)
		}

		ok, err := fs.Remove("/x")
		if err != nil {
			t.Fatalf("Remove while open: %v", err)
		}
		if ok {
			t.Fatal("Remove on an open file returned true, want false")
		}

		if _, err := f.Write([]byte("data")); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if err := f.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}

		if _, err := fs.Open("/x"); !errors.Is(err, kerrors.ErrNameNotFound) {
			t.Fatalf("Open after deferred remove = %v, want ErrNameNotFound", err)
		}
	})
}

func TestCreateDuplicateNameFails(t *testing.T) {
	withFS(t, func(fs *FileSystem) {
		if err := fs.Create("/dup", 10, false); err != nil {
			t.Fatalf("first Create: %v", err)
		}
		if err := fs.Create("/dup", 10, false); !errors.Is(err, kerrors.ErrNameExists) {
			t.Fatalf("second Create = %v, want ErrNameExists", err)
		}
	})
}

func TestListShowsCreatedEntries(t *testing.T) {
	withFS(t, func(fs *FileSystem) {
		if err := fs.Create("/one", 0, false); err != nil {
			t.Fatalf("Create(/one): %v", err)
		}
		if err := fs.Create("/two", 0, false); err != nil {
			t.Fatalf("Create(/two): %v", err)
		}
		names, err := fs.List("/")
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		found := map[string]bool{}
		for _, n := range names {
			found[n] = true
		}
		if !found["one"] || !found["two"] {
			t.Fatalf("List = %v, want both one and two", names)
		}
	})
}
