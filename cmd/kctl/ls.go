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

package main

import (
	"flag"
	"fmt"
	"sort"
	"strings"

	"github.com/gokernel/corekernel/pkg/cmdmain"
	"github.com/gokernel/corekernel/pkg/fsys"
)

type lsCmd struct {
	disk      *diskFlags
	recursive *bool
}

func init() {
	cmdmain.RegisterCommand("ls", func(flags *flag.FlagSet) cmdmain.CommandRunner {
		cmd := &lsCmd{disk: registerDiskFlags(flags)}
		cmd.recursive = flags.Bool("R", false, "recurse into subdirectories")
		return cmd
	})
}

func (c *lsCmd) Describe() string { return "List a directory's contents." }

func (c *lsCmd) Usage() {
	fmt.Fprintf(cmdmain.Stderr, "Usage: kctl ls [-disk path] [-R] [path]\n")
}

func (c *lsCmd) RunCommand(args []string) error {
	path := "/"
	switch len(args) {
	case 0:
	case 1:
		path = args[0]
	default:
		return cmdmain.UsageError("ls takes at most one path")
	}

	return withFileSystem(c.disk, false, func(fs *fsys.FileSystem) error {
		if *c.recursive {
			return lsRecursive(fs, path)
		}
		entries, err := fs.ListEntries(path)
		if err != nil {
			return err
		}
		printEntries(path, entries)
		return nil
	})
}

func lsRecursive(fs *fsys.FileSystem, path string) error {
	entries, err := fs.ListEntries(path)
	if err != nil {
		return err
	}
	printEntries(path, entries)
	for _, e := range entries {
		if e.IsDir {
			if err := lsRecursive(fs, joinPath(path, e.Name)); err != nil {
				return err
			}
		}
	}
	return nil
}

func printEntries(path string, entries []fsys.DirEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	fmt.Fprintf(cmdmain.Stdout, "%s:\n", path)
	for _, e := range entries {
		if e.IsDir {
			fmt.Fprintf(cmdmain.Stdout, "  %s/\n", e.Name)
		} else {
			fmt.Fprintf(cmdmain.Stdout, "  %s\n", e.Name)
		}
	}
}

func joinPath(dir, name string) string {
	if strings.HasSuffix(dir, "/") {
		return dir + name
	}
	return dir + "/" + name
}
