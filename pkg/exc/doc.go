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

// Package exc is the exception and system-call dispatcher: the single
// entry point that couples the thread kernel, the file system, and
// virtual memory to user code, per spec.md §4.7.
//
// The CPU instruction loop itself is the "machine simulator boundary"
// spec.md §2 calls out as an external collaborator, not part of the
// kernel core: Dispatcher.Dispatch is the contract point a run loop
// would call into on every syscall or page fault trap, given the
// trapping thread and its already-populated register file. This
// package implements that contract without implementing a MIPS
// instruction interpreter, matching the spec's own scoping.
package exc
