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

// Package vm implements demand-paged virtual memory: a per-address-space
// page table, a physical-frame map, a swap-slot map, a software-managed
// TLB, and the page-fault handler that ties them together. Every
// exported entry point assumes it runs under the kernel's single-thread-
// of-control invariant, the same as pkg/fsys.
package vm

// PageSize is the fixed unit of virtual memory, physical frames, and
// swap slots.
const PageSize = 128
