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

/*
Kctl is an offline tool for inspecting and preparing disk images read by
pkg/fsys, the on-disk file system cmd/corekernel mounts at boot.

Usage:

	kctl [globalopts] <mode> [modeopts] [modeargs]

Modes:

  mkfs: Format a disk image with an empty file system.
  ls: List a directory's contents.
  cat: Print a file's contents to stdout.
  stat: Print a file's size, type, and timestamps.
  freemap: Print the free-sector bitmap and header layout.
  fsck: Check the free-sector bitmap against the directory tree.

Examples:

  kctl mkfs -disk disk.img
  kctl ls -disk disk.img /
  kctl cat -disk disk.img /hello.txt
  kctl fsck -disk disk.img

For mode-specific help:

  kctl <mode> -help
*/
package main
