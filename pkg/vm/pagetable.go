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

package vm

// PageTableEntry is one virtual page's translation state. SwapSlot and
// FileOffset are -1 when unused. FileOffset keeps its value for the
// page's whole life, so a swapped-out page of the executable holds both;
// a non-negative SwapSlot takes precedence when the page is refilled.
type PageTableEntry struct {
	Valid bool
	Dirty bool
	Use   bool

	Frame      int
	SwapSlot   int
	FileOffset int
}

func newPageTableEntry(fileOffset int) PageTableEntry {
	return PageTableEntry{SwapSlot: -1, FileOffset: fileOffset}
}
