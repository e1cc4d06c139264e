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

// Package kerrors defines the sentinel errors that kernel callers branch
// on. Fatal invariant violations are not represented here: those panic
// with a diagnostic string at the point of detection (see FatalPanic).
package kerrors

import (
	"errors"
	"fmt"
)

// Free-sector bitmap / file header errors.
var (
	ErrNoFreeSector   = errors.New("no free sector")
	ErrHeaderTooLarge = errors.New("file header cannot address that many sectors")
)

// Directory / naming errors.
var (
	ErrNameExists    = errors.New("name already exists in directory")
	ErrNameNotFound  = errors.New("name not found")
	ErrDirFull       = errors.New("directory has no free entry")
	ErrNotADirectory = errors.New("not a directory")
	ErrIsADirectory  = errors.New("is a directory")
)

// Open-file errors.
var (
	ErrFileOpen    = errors.New("file still open; remove deferred")
	ErrBadFD       = errors.New("bad file descriptor")
	ErrTooManyOpen = errors.New("no free file descriptor slot")
)

// Virtual memory errors.
var (
	ErrNoFreeFrame = errors.New("no free physical frame and nothing evictable")
	ErrNoSwapSlot  = errors.New("no free swap slot")
	ErrBadAddress  = errors.New("user address out of range")
)

// FatalPanic reports a fatal invariant violation. Per spec it halts the
// kernel with a diagnostic; in this simulation that means panicking with
// a formatted string, which tests recover and assert on. cmd/corekernel
// recovers it only on its main goroutine; raised on a kernel thread's
// goroutine, it ends the process with Go's panic report.
func FatalPanic(format string, args ...any) {
	panic(fmt.Sprintf(format, args...))
}
