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
	"strings"
	"time"

	"github.com/gokernel/corekernel/pkg/kerrors"
	"github.com/gokernel/corekernel/pkg/ksync"
	"github.com/gokernel/corekernel/pkg/machine"
	"github.com/gokernel/corekernel/pkg/thread"
)

// FileSystem orchestrates the bitmap, directory tree, and shared open
// files on top of a sector cache. Sector 0 and sector 1 (the free-map
// and root-directory headers) are kept open for the filesystem's whole
// lifetime, matching the original's bootstrap contract.
type FileSystem struct {
	k     *thread.Kernel
	cache *Cache

	numSectors int

	openFilesLock *ksync.Lock
	openFiles     map[int]*OpenFileEntry

	freeMapFile   *OpenFile
	directoryFile *OpenFile
}

// New mounts a filesystem on disk. If format is true, disk is treated
// as empty and is initialized with an all-clear bitmap (except the two
// reserved header sectors) and an empty root directory.
func New(k *thread.Kernel, disk *machine.Disk, cacheSlots, numSectors int, format bool) (*FileSystem, error) {
	fs := &FileSystem{
		k:             k,
		cache:         NewCache(k, disk, cacheSlots),
		numSectors:    numSectors,
		openFilesLock: ksync.NewLock(k, "fsys.openfiles"),
		openFiles:     make(map[int]*OpenFileEntry),
	}

	if format {
		freeMap := NewBitMap(numSectors)
		freeMap.Mark(FreeMapSector)
		freeMap.Mark(DirectorySector)

		mapHdr := &FileHeader{cache: fs.cache}
		if err := mapHdr.Allocate(freeMap, FreeMapFileSize(numSectors)); err != nil {
			return nil, err
		}
		dirHdr := &FileHeader{cache: fs.cache}
		if err := dirHdr.Allocate(freeMap, DirectoryFileSize); err != nil {
			return nil, err
		}
		if err := mapHdr.WriteBack(fs.cache, FreeMapSector); err != nil {
			return nil, err
		}
		if err := dirHdr.WriteBack(fs.cache, DirectorySector); err != nil {
			return nil, err
		}

		ffile, err := fs.openHandle(FreeMapSector, "/")
		if err != nil {
			return nil, err
		}
		dfile, err := fs.openHandle(DirectorySector, "/")
		if err != nil {
			return nil, err
		}
		fs.freeMapFile, fs.directoryFile = ffile, dfile

		if err := freeMap.WriteBack(fs.freeMapFile); err != nil {
			return nil, err
		}
		if err := NewDirectory().WriteBack(fs.directoryFile); err != nil {
			return nil, err
		}
		return fs, nil
	}

	ffile, err := fs.openHandle(FreeMapSector, "/")
	if err != nil {
		return nil, err
	}
	dfile, err := fs.openHandle(DirectorySector, "/")
	if err != nil {
		return nil, err
	}
	fs.freeMapFile, fs.directoryFile = ffile, dfile
	return fs, nil
}

// Shutdown flushes the sector cache. The bootstrap free-map and
// directory files are not closed: they stay open for the filesystem's
// whole lifetime.
func (fs *FileSystem) Shutdown() error {
	if err := fs.cache.Flush(); err != nil {
		return err
	}
	return nil
}

func (fs *FileSystem) loadFreeMap() (*BitMap, error) {
	bm := NewBitMap(fs.numSectors)
	if err := bm.FetchFrom(fs.freeMapFile); err != nil {
		return nil, err
	}
	return bm, nil
}

func (fs *FileSystem) commitFreeMap(bm *BitMap) error {
	return bm.WriteBack(fs.freeMapFile)
}

// openHandle shares or creates the OpenFileEntry for sector and returns
// a fresh per-opener handle on top of it.
func (fs *FileSystem) openHandle(sector int, path string) (*OpenFile, error) {
	fs.openFilesLock.Acquire()
	entry, ok := fs.openFiles[sector]
	if !ok {
		entry = &OpenFileEntry{sector: sector, path: path, rw: ksync.NewRWLock(fs.k, "fsys.file")}
		fs.openFiles[sector] = entry
	}
	entry.refcnt++
	fs.openFilesLock.Release()

	hdr := &FileHeader{cache: fs.cache}
	if err := hdr.FetchFrom(fs.cache, sector); err != nil {
		return nil, err
	}
	return &OpenFile{fs: fs, entry: entry, header: hdr, sectorPosition: sector}, nil
}

// closeHandle drops one reference to f's underlying entry, performing
// the deferred removal Remove scheduled if this was the last one.
func (fs *FileSystem) closeHandle(f *OpenFile) error {
	fs.openFilesLock.Acquire()
	f.entry.refcnt--
	var path string
	removeNow := false
	if f.entry.refcnt == 0 {
		delete(fs.openFiles, f.entry.sector)
		removeNow = f.entry.removed
		path = f.entry.path
	}
	fs.openFilesLock.Release()

	if removeNow && path != "" {
		_, err := fs.Remove(path)
		return err
	}
	return nil
}

// resolveParent walks path's directory components from the root and
// returns the sector of the containing directory plus the final
// (unresolved) name component.
func (fs *FileSystem) resolveParent(path string) (int, string, error) {
	dirs, final := splitPath(path)
	sector := DirectorySector
	for _, d := range dirs {
		next, isDir, err := fs.lookupIn(sector, d)
		if err != nil {
			return 0, "", err
		}
		if !isDir {
			return 0, "", kerrors.ErrNotADirectory
		}
		sector = next
	}
	return sector, final, nil
}

// resolveDir walks path's full component list, returning the sector of
// the directory path itself names. An empty or "/" path is the root.
func (fs *FileSystem) resolveDir(path string) (int, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return DirectorySector, nil
	}
	sector := DirectorySector
	for _, d := range strings.Split(trimmed, "/") {
		next, isDir, err := fs.lookupIn(sector, d)
		if err != nil {
			return 0, err
		}
		if !isDir {
			return 0, kerrors.ErrNotADirectory
		}
		sector = next
	}
	return sector, nil
}

func (fs *FileSystem) lookupIn(dirSector int, name string) (sector int, isDir bool, err error) {
	of, err := fs.openHandle(dirSector, "")
	if err != nil {
		return 0, false, err
	}
	defer fs.closeHandle(of)
	dir := NewDirectory()
	if err := dir.FetchFrom(of); err != nil {
		return 0, false, err
	}
	s, isDir, ok := dir.Lookup(name)
	if !ok {
		return 0, false, kerrors.ErrNameNotFound
	}
	return s, isDir, nil
}

func fileType(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return "none"
	}
	return name[i+1:]
}

// Create makes a new file (or, if isDir, an empty directory) at path
// with initialSize bytes of data preallocated. It fails with
// kerrors.ErrNameExists if the name is already taken, ErrNoFreeSector
// or ErrHeaderTooLarge if there isn't room.
func (fs *FileSystem) Create(path string, initialSize int, isDir bool) error {
	dirSector, name, err := fs.resolveParent(path)
	if err != nil {
		return err
	}
	if name == "" {
		return kerrors.ErrNameExists
	}
	dirOF, err := fs.openHandle(dirSector, "")
	if err != nil {
		return err
	}
	defer fs.closeHandle(dirOF)

	dir := NewDirectory()
	if err := dir.FetchFrom(dirOF); err != nil {
		return err
	}
	if dir.Find(name) != -1 {
		return kerrors.ErrNameExists
	}

	freeMap, err := fs.loadFreeMap()
	if err != nil {
		return err
	}
	sector := freeMap.Find()
	if sector == -1 {
		return kerrors.ErrNoFreeSector
	}
	if err := dir.Add(name, sector, isDir, dirSector); err != nil {
		return err
	}

	size := initialSize
	if isDir {
		size = DirectoryFileSize
	}
	hdr := &FileHeader{cache: fs.cache}
	if err := hdr.Allocate(freeMap, size); err != nil {
		return err
	}
	hdr.SetType(fileType(name))
	hdr.Stamp(time.Now().Unix())
	if err := hdr.WriteBack(fs.cache, sector); err != nil {
		return err
	}

	if isDir {
		childOF, err := fs.openHandle(sector, path)
		if err != nil {
			return err
		}
		err = NewDirectory().WriteBack(childOF)
		fs.closeHandle(childOF)
		if err != nil {
			return err
		}
	}

	if err := dir.WriteBack(dirOF); err != nil {
		return err
	}
	return fs.commitFreeMap(freeMap)
}

// Open resolves path and returns a shared handle on it, or
// kerrors.ErrNameNotFound if no such file exists.
func (fs *FileSystem) Open(path string) (*OpenFile, error) {
	dirSector, name, err := fs.resolveParent(path)
	if err != nil {
		return nil, err
	}
	sector, _, err := fs.lookupIn(dirSector, name)
	if err != nil {
		return nil, err
	}
	return fs.openHandle(sector, path)
}

// List returns the names of every entry in the directory at path.
func (fs *FileSystem) List(path string) ([]string, error) {
	sector, err := fs.resolveDir(path)
	if err != nil {
		return nil, err
	}
	of, err := fs.openHandle(sector, "")
	if err != nil {
		return nil, err
	}
	defer fs.closeHandle(of)
	dir := NewDirectory()
	if err := dir.FetchFrom(of); err != nil {
		return nil, err
	}
	return dir.List(), nil
}

// DirEntry is one named entry of a ListEntries result: a name plus
// whether it is itself a directory, which a bare List does not say.
type DirEntry struct {
	Name  string
	IsDir bool
}

// ListEntries is List, but with each entry's directory-ness attached,
// for callers that need to recurse (cmd/kctl's ls -R and fsck modes)
// without guessing from the name.
func (fs *FileSystem) ListEntries(path string) ([]DirEntry, error) {
	sector, err := fs.resolveDir(path)
	if err != nil {
		return nil, err
	}
	of, err := fs.openHandle(sector, "")
	if err != nil {
		return nil, err
	}
	defer fs.closeHandle(of)
	dir := NewDirectory()
	if err := dir.FetchFrom(of); err != nil {
		return nil, err
	}
	var out []DirEntry
	for _, e := range dir.InUseEntries() {
		out = append(out, DirEntry{Name: e.Name(), IsDir: e.isDir})
	}
	return out, nil
}

// FreeMap returns the file system's current free-sector bitmap, for
// offline inspection tools (cmd/kctl's freemap and fsck modes). No
// code path inside the file system itself uses this: every mutating
// operation loads its own copy via loadFreeMap immediately before
// changing it, and commits it back under the same call.
func (fs *FileSystem) FreeMap() (*BitMap, error) {
	return fs.loadFreeMap()
}

// NumSectors returns the disk geometry the file system was mounted
// with.
func (fs *FileSystem) NumSectors() int { return fs.numSectors }

// Remove deletes path. If the file is currently open elsewhere, it
// returns (false, nil) and defers the removal to the last close,
// exactly as spec'd: no error, no console output, just a synchronous
// false.
func (fs *FileSystem) Remove(path string) (bool, error) {
	dirSector, name, err := fs.resolveParent(path)
	if err != nil {
		return false, err
	}
	return fs.removeAt(dirSector, name)
}

func (fs *FileSystem) removeAt(dirSector int, name string) (bool, error) {
	dirOF, err := fs.openHandle(dirSector, "")
	if err != nil {
		return false, err
	}
	defer fs.closeHandle(dirOF)

	dir := NewDirectory()
	if err := dir.FetchFrom(dirOF); err != nil {
		return false, err
	}
	sector, isDir, ok := dir.Lookup(name)
	if !ok {
		return false, kerrors.ErrNameNotFound
	}

	fs.openFilesLock.Acquire()
	entry, open := fs.openFiles[sector]
	if open && entry.refcnt > 0 {
		entry.removed = true
		fs.openFilesLock.Release()
		return false, nil
	}
	fs.openFilesLock.Release()

	if isDir {
		childOF, err := fs.openHandle(sector, "")
		if err != nil {
			return false, err
		}
		childDir := NewDirectory()
		err = childDir.FetchFrom(childOF)
		fs.closeHandle(childOF)
		if err != nil {
			return false, err
		}
		for _, childName := range childDir.List() {
			if ok, err := fs.removeAt(sector, childName); err != nil || !ok {
				if err != nil {
					return false, err
				}
				return false, nil
			}
		}
	}

	hdr := &FileHeader{cache: fs.cache}
	if err := hdr.FetchFrom(fs.cache, sector); err != nil {
		return false, err
	}
	freeMap, err := fs.loadFreeMap()
	if err != nil {
		return false, err
	}
	hdr.Deallocate(freeMap)
	freeMap.Clear(sector)
	if err := dir.Remove(name); err != nil {
		return false, err
	}
	if err := fs.commitFreeMap(freeMap); err != nil {
		return false, err
	}
	if err := dir.WriteBack(dirOF); err != nil {
		return false, err
	}
	return true, nil
}
