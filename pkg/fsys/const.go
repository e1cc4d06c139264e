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

// Package fsys is the on-disk file system core: a free-sector bitmap, a
// two-level indexed file header, a hierarchical directory, shared
// reader-writer-locked open files, and a write-back sector cache sitting
// on top of a pkg/machine.Disk. Sector 0 holds the free-map header,
// sector 1 the root-directory header; both files are kept open for the
// lifetime of the FileSystem, matching the original's bootstrap.
package fsys

// SectorSize is the fixed transfer unit of the simulated disk.
const SectorSize = 128

// IndexPerSector is how many sector pointers fit in one indirect
// sector: every pointer is a 4-byte int32.
const IndexPerSector = SectorSize / 4

// NumFirstIndex and NumSecondIndex size a FileHeader's direct and
// first-level-indirect pointer arrays so the header occupies exactly
// one sector (see headerFixedSize in filehdr.go).
const (
	NumFirstIndex  = 20
	NumSecondIndex = 2
)

// MaxFileSectors is the largest a file can grow: every direct sector
// plus every sector addressable through the indirect sectors.
const MaxFileSectors = NumFirstIndex + NumSecondIndex*IndexPerSector

// FileNameMaxLen bounds a single path component's length.
const FileNameMaxLen = 32

// NumDirEntries is the fixed capacity of every directory file.
const NumDirEntries = 16

// Well-known bootstrap sectors.
const (
	FreeMapSector   = 0
	DirectorySector = 1
)

// DefaultNumSectors is used when formatting a fresh disk image without
// an explicit geometry override.
const DefaultNumSectors = 1024

// FreeMapFileSize is the byte size of the free-map file for a disk of
// numSectors sectors: one bit per sector, rounded up to a byte.
func FreeMapFileSize(numSectors int) int {
	return (numSectors + 7) / 8
}

// DirectoryFileSize is the byte size of a directory file with capacity
// for NumDirEntries entries.
const DirectoryFileSize = NumDirEntries * dirEntrySize

func divRoundUp(n, s int) int {
	return (n + s - 1) / s
}

func divRoundDown(n, s int) int {
	return n / s
}
