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

// Diskfuse mounts a pkg/fsys disk image read-only at a host directory,
// using bazil.org/fuse, so its contents can be browsed with ordinary
// tools (ls, cat, a file manager) instead of cmd/kctl.
//
// Usage:
//
//	diskfuse [-disk path] [-sectors N] [-cache N] <mountpoint>
package main
