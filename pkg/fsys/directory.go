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
	"encoding/binary"
	"strings"

	"github.com/gokernel/corekernel/pkg/kerrors"
)

// dirEntry is one slot of a directory file: a name, the header sector
// of what it names, whether that is itself a directory, and the
// sector of its parent directory's header (used by Remove to avoid
// re-traversing the path for every recursively removed child).
type dirEntry struct {
	inUse  bool
	name   [FileNameMaxLen + 1]byte
	sector int32
	isDir  bool
	parent int32
}

// dirEntrySize is the packed byte size of one dirEntry: inUse(1) +
// name(FileNameMaxLen+1) + sector(4) + isDir(1) + parent(4).
const dirEntrySize = 1 + (FileNameMaxLen + 1) + 4 + 1 + 4

func (e *dirEntry) Name() string {
	n := 0
	for n < len(e.name) && e.name[n] != 0 {
		n++
	}
	return string(e.name[:n])
}

func (e *dirEntry) setName(name string) {
	var b [FileNameMaxLen + 1]byte
	copy(b[:FileNameMaxLen], name)
	e.name = b
}

func (e *dirEntry) encode(buf []byte) {
	if e.inUse {
		buf[0] = 1
	}
	copy(buf[1:1+len(e.name)], e.name[:])
	off := 1 + len(e.name)
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(e.sector))
	off += 4
	if e.isDir {
		buf[off] = 1
	}
	off++
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(e.parent))
}

func (e *dirEntry) decode(buf []byte) {
	e.inUse = buf[0] != 0
	copy(e.name[:], buf[1:1+len(e.name)])
	off := 1 + len(e.name)
	e.sector = int32(binary.BigEndian.Uint32(buf[off : off+4]))
	off += 4
	e.isDir = buf[off] != 0
	off++
	e.parent = int32(binary.BigEndian.Uint32(buf[off : off+4]))
}

// Directory is the in-memory mirror of a directory file's contents: a
// fixed table of entries, looked up and mutated in bulk, then flushed
// back with WriteBack.
type Directory struct {
	entries [NumDirEntries]dirEntry
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory { return &Directory{} }

// FetchFrom reads the directory's entries from of.
func (d *Directory) FetchFrom(of *OpenFile) error {
	buf := make([]byte, DirectoryFileSize)
	if _, err := of.ReadAt(buf, 0); err != nil {
		return err
	}
	for i := range d.entries {
		d.entries[i].decode(buf[i*dirEntrySize : (i+1)*dirEntrySize])
	}
	return nil
}

// WriteBack writes the directory's entries to of.
func (d *Directory) WriteBack(of *OpenFile) error {
	buf := make([]byte, DirectoryFileSize)
	for i := range d.entries {
		d.entries[i].encode(buf[i*dirEntrySize : (i+1)*dirEntrySize])
	}
	_, err := of.WriteAt(buf, 0)
	return err
}

// find returns the index of name, or -1 if absent.
func (d *Directory) find(name string) int {
	for i := range d.entries {
		if d.entries[i].inUse && d.entries[i].Name() == name {
			return i
		}
	}
	return -1
}

// Find returns the header sector for name, or -1 if absent.
func (d *Directory) Find(name string) int {
	i := d.find(name)
	if i == -1 {
		return -1
	}
	return int(d.entries[i].sector)
}

// Lookup returns the full entry for name and whether it was found.
func (d *Directory) Lookup(name string) (sector int, isDir bool, ok bool) {
	i := d.find(name)
	if i == -1 {
		return 0, false, false
	}
	return int(d.entries[i].sector), d.entries[i].isDir, true
}

// Add inserts a new entry, failing if the name already exists or the
// table has no free slot.
func (d *Directory) Add(name string, sector int, isDir bool, parent int) error {
	if d.find(name) != -1 {
		return kerrors.ErrNameExists
	}
	for i := range d.entries {
		if !d.entries[i].inUse {
			d.entries[i] = dirEntry{inUse: true, sector: int32(sector), isDir: isDir, parent: int32(parent)}
			d.entries[i].setName(name)
			return nil
		}
	}
	return kerrors.ErrDirFull
}

// Remove deletes name's entry, failing if it is not present.
func (d *Directory) Remove(name string) error {
	i := d.find(name)
	if i == -1 {
		return kerrors.ErrNameNotFound
	}
	d.entries[i] = dirEntry{}
	return nil
}

// List returns the names of every in-use entry.
func (d *Directory) List() []string {
	var names []string
	for i := range d.entries {
		if d.entries[i].inUse {
			names = append(names, d.entries[i].Name())
		}
	}
	return names
}

// InUseEntries returns every in-use entry, for recursive directory
// removal.
func (d *Directory) InUseEntries() []dirEntry {
	var out []dirEntry
	for i := range d.entries {
		if d.entries[i].inUse {
			out = append(out, d.entries[i])
		}
	}
	return out
}

// splitPath splits an absolute path like "/a/b.txt" into its
// directory components and final name component. A bare name with no
// slash is its own final component, rooted at "/".
func splitPath(path string) (dirs []string, final string) {
	path = strings.TrimPrefix(path, "/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 {
		return nil, ""
	}
	return parts[:len(parts)-1], parts[len(parts)-1]
}
