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

// Package osutil locates the kernel's on-disk artifacts: the disk
// image, swap backing file, and config file, honoring environment
// overrides the way the teacher's osutil locates its own data
// directories.
package osutil

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

// HomeDir returns the path to the user's home directory, or empty if
// it cannot be determined.
func HomeDir() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("HOMEPATH")
	}
	return os.Getenv("HOME")
}

var varDirOnce sync.Once

// VarDir returns the directory corekernel uses for its default disk
// image and swap file, creating it if necessary. Overridden by
// COREKERNEL_VAR_DIR.
func VarDir() string {
	varDirOnce.Do(func() {
		_ = os.MkdirAll(varDir(), 0700)
	})
	return varDir()
}

func varDir() string {
	if d := os.Getenv("COREKERNEL_VAR_DIR"); d != "" {
		return d
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "corekernel")
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "corekernel")
	}
	return filepath.Join(HomeDir(), ".local", "share", "corekernel")
}

// DefaultDiskImagePath returns the path used for the simulated disk
// image when -disk is not given.
func DefaultDiskImagePath() string {
	return filepath.Join(VarDir(), "disk.img")
}

// DefaultSwapImagePath returns a swap backing file path under VarDir.
// cmd/corekernel does not call it: it keeps swap beside the disk image,
// at the disk path plus ".swap".
func DefaultSwapImagePath() string {
	return filepath.Join(VarDir(), "swap.img")
}

// ConfigDir returns the directory corekernel looks in for its JSON
// config file when -config is not given. Overridden by
// COREKERNEL_CONFIG_DIR.
func ConfigDir() string {
	if p := os.Getenv("COREKERNEL_CONFIG_DIR"); p != "" {
		return p
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "corekernel")
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "corekernel")
	}
	return filepath.Join(HomeDir(), ".config", "corekernel")
}

// DefaultConfigPath returns the default kernel config file path.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "kernel-config.json")
}
