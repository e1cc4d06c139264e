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

package exc

import (
	"encoding/binary"
	"fmt"

	"github.com/gokernel/corekernel/pkg/fsys"
	"github.com/gokernel/corekernel/pkg/vm"
)

// exeMagic tags a file as a loadable program header, per spec.md §6's
// "Executable format": a program header with code/data/bss sizes and
// on-disk offsets, virtual addresses contiguous from zero.
const exeMagic = 0x4e4f4646 // "NOFF"-shaped, arbitrary but stable

// headerSize is exeMagic plus six int32 fields, encoded big-endian.
const headerSize = 4 * 7

// ExeHeader is the on-disk program header Exec and Fork load from.
// CodeOffset/DataOffset are byte offsets into the file immediately
// after the header; the loader treats code and data as one contiguous
// demand-paged image starting at CodeOffset, since neither needs
// different protection in this simulation. BSS and the stack are
// zero-filled on first fault, never backed by the file.
type ExeHeader struct {
	CodeSize   int32
	CodeOffset int32
	DataSize   int32
	DataOffset int32
	BSSSize    int32
	StackPages int32
}

// imageSize is the span of the file that backs demand-paged content:
// code followed immediately by data, as WriteExecutable lays them out.
func (h ExeHeader) imageSize() int { return int(h.CodeSize + h.DataSize) }

func (h ExeHeader) encode() []byte {
	buf := make([]byte, headerSize)
	binary.BigEndian.PutUint32(buf[0:4], exeMagic)
	binary.BigEndian.PutUint32(buf[4:8], uint32(h.CodeSize))
	binary.BigEndian.PutUint32(buf[8:12], uint32(h.CodeOffset))
	binary.BigEndian.PutUint32(buf[12:16], uint32(h.DataSize))
	binary.BigEndian.PutUint32(buf[16:20], uint32(h.DataOffset))
	binary.BigEndian.PutUint32(buf[20:24], uint32(h.BSSSize))
	binary.BigEndian.PutUint32(buf[24:28], uint32(h.StackPages))
	return buf
}

func decodeExeHeader(buf []byte) (ExeHeader, error) {
	if len(buf) < headerSize {
		return ExeHeader{}, fmt.Errorf("exc: executable header truncated")
	}
	if binary.BigEndian.Uint32(buf[0:4]) != exeMagic {
		return ExeHeader{}, fmt.Errorf("exc: not an executable (bad magic)")
	}
	return ExeHeader{
		CodeSize:   int32(binary.BigEndian.Uint32(buf[4:8])),
		CodeOffset: int32(binary.BigEndian.Uint32(buf[8:12])),
		DataSize:   int32(binary.BigEndian.Uint32(buf[12:16])),
		DataOffset: int32(binary.BigEndian.Uint32(buf[16:20])),
		BSSSize:    int32(binary.BigEndian.Uint32(buf[20:24])),
		StackPages: int32(binary.BigEndian.Uint32(buf[24:28])),
	}, nil
}

// defaultStackPages is used by WriteExecutable when the caller doesn't
// care to size the stack themselves.
const defaultStackPages = 4

// WriteExecutable creates path on fs as a loadable program: a header
// followed by code then data, each rounded up to a page boundary so
// every demand-paged page maps to exactly one file offset. It exists
// so tests can produce fixtures Exec/Fork can load
// without depending on a real toolchain target for this simulated ISA.
func WriteExecutable(fs *fsys.FileSystem, path string, code, data []byte, bssSize, stackPages int) error {
	if stackPages <= 0 {
		stackPages = defaultStackPages
	}
	paddedCode := padToPage(code)
	paddedData := padToPage(data)

	hdr := ExeHeader{
		CodeSize:   int32(len(paddedCode)),
		CodeOffset: headerSize,
		DataSize:   int32(len(paddedData)),
		DataOffset: headerSize + int32(len(paddedCode)),
		BSSSize:    int32(bssSize),
		StackPages: int32(stackPages),
	}

	image := append(append([]byte{}, paddedCode...), paddedData...)
	total := len(hdr.encode()) + len(image)

	if err := fs.Create(path, total, false); err != nil {
		return err
	}
	of, err := fs.Open(path)
	if err != nil {
		return err
	}
	defer of.Close()

	if _, err := of.WriteAt(hdr.encode(), 0); err != nil {
		return err
	}
	if _, err := of.WriteAt(image, headerSize); err != nil {
		return err
	}
	return nil
}

func padToPage(b []byte) []byte {
	rem := len(b) % vm.PageSize
	if rem == 0 {
		return b
	}
	return append(append([]byte{}, b...), make([]byte, vm.PageSize-rem)...)
}

// LoadExecutable opens path on fs and reads its program header,
// returning the still-open handle (the address space's executable
// backing, per vm.Executable) alongside the decoded header.
func LoadExecutable(fs *fsys.FileSystem, path string) (*fsys.OpenFile, ExeHeader, error) {
	of, err := fs.Open(path)
	if err != nil {
		return nil, ExeHeader{}, err
	}
	buf := make([]byte, headerSize)
	if _, err := of.ReadAt(buf, 0); err != nil {
		of.Close()
		return nil, ExeHeader{}, err
	}
	hdr, err := decodeExeHeader(buf)
	if err != nil {
		of.Close()
		return nil, ExeHeader{}, err
	}
	return of, hdr, nil
}

// NewAddressSpace builds the address space Exec loads: pages covering
// the code+data image (demand-paged from exe at CodeOffset) followed
// by BSS and stack pages (zero-filled on first fault).
func NewAddressSpace(id int, exe *fsys.OpenFile, hdr ExeHeader) *vm.AddressSpace {
	total := hdr.imageSize() + int(hdr.BSSSize) + int(hdr.StackPages)*vm.PageSize
	numPages := (total + vm.PageSize - 1) / vm.PageSize
	imageSize := hdr.imageSize()
	imageOffset := int(hdr.CodeOffset)

	return vm.New(id, numPages, exe, func(vpn int) int {
		byteOff := vpn * vm.PageSize
		if byteOff < imageSize {
			return imageOffset + byteOff
		}
		return -1
	})
}
