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
	"context"
	"errors"
	"hash/fnv"
	"os"
	"sort"
	"strings"
	"syscall"
	"time"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"github.com/gokernel/corekernel/pkg/fsys"
	"github.com/gokernel/corekernel/pkg/kerrors"
	"github.com/gokernel/corekernel/pkg/lru"
)

// diskFS is the bazil.org/fuse root: every node it hands out shares
// one fsServer and one attribute cache. The disk image is read-only
// for the life of the mount, so cached attributes never need
// invalidating -- a mounted image that some other process is writing
// through cmd/kctl concurrently is a misuse this tool does not try to
// detect.
type diskFS struct {
	srv   *fsServer
	attrs *lru.Cache
}

func (d *diskFS) Root() (fusefs.Node, error) {
	return &node{fs: d, path: "/", isDir: true}, nil
}

// node is one file or directory. isDir is known at construction time
// (the root always is one; every other node's parent already knew,
// from its own directory listing) rather than re-derived from fsys,
// which stores that fact only in the parent's directory entry.
type node struct {
	fs    *diskFS
	path  string
	isDir bool
}

type cachedAttr struct {
	size    uint64
	modTime time.Time
}

var (
	_ fusefs.Node               = (*node)(nil)
	_ fusefs.NodeStringLookuper = (*node)(nil)
	_ fusefs.HandleReadDirAller = (*node)(nil)
	_ fusefs.HandleReadAller    = (*node)(nil)
)

func (n *node) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Inode = inodeFor(n.path)
	if n.isDir {
		a.Mode = os.ModeDir | 0555
	} else {
		a.Mode = 0444
	}
	if n.path == "/" {
		return nil
	}

	if cached, ok := n.fs.attrs.Get(n.path); ok {
		ca := cached.(cachedAttr)
		a.Size, a.Mtime = ca.size, ca.modTime
		return nil
	}
	ca, err := n.stat()
	if err != nil {
		return err
	}
	n.fs.attrs.Add(n.path, ca)
	a.Size, a.Mtime = ca.size, ca.modTime
	return nil
}

func (n *node) stat() (cachedAttr, error) {
	v, err := n.fs.srv.do(func(fs *fsys.FileSystem) (any, error) {
		of, err := fs.Open(n.path)
		if err != nil {
			return nil, err
		}
		defer of.Close()
		return cachedAttr{size: uint64(of.Length()), modTime: of.ModifiedAt()}, nil
	})
	if err != nil {
		return cachedAttr{}, translateErr(err)
	}
	return v.(cachedAttr), nil
}

func (n *node) Lookup(ctx context.Context, name string) (fusefs.Node, error) {
	if !n.isDir {
		return nil, syscall.ENOTDIR
	}
	v, err := n.fs.srv.do(func(fs *fsys.FileSystem) (any, error) {
		entries, err := fs.ListEntries(n.path)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.Name == name {
				return e.IsDir, nil
			}
		}
		return nil, kerrors.ErrNameNotFound
	})
	if err != nil {
		return nil, translateErr(err)
	}
	return &node{fs: n.fs, path: joinPath(n.path, name), isDir: v.(bool)}, nil
}

func (n *node) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	if !n.isDir {
		return nil, syscall.ENOTDIR
	}
	v, err := n.fs.srv.do(func(fs *fsys.FileSystem) (any, error) {
		return fs.ListEntries(n.path)
	})
	if err != nil {
		return nil, translateErr(err)
	}
	entries := v.([]fsys.DirEntry)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	dirents := make([]fuse.Dirent, 0, len(entries))
	for _, e := range entries {
		typ := fuse.DT_File
		if e.IsDir {
			typ = fuse.DT_Dir
		}
		dirents = append(dirents, fuse.Dirent{
			Inode: inodeFor(joinPath(n.path, e.Name)),
			Name:  e.Name,
			Type:  typ,
		})
	}
	return dirents, nil
}

func (n *node) ReadAll(ctx context.Context) ([]byte, error) {
	if n.isDir {
		return nil, syscall.EISDIR
	}
	v, err := n.fs.srv.do(func(fs *fsys.FileSystem) (any, error) {
		of, err := fs.Open(n.path)
		if err != nil {
			return nil, err
		}
		defer of.Close()
		buf := make([]byte, of.Length())
		if _, err := of.ReadAt(buf, 0); err != nil {
			return nil, err
		}
		return buf, nil
	})
	if err != nil {
		return nil, translateErr(err)
	}
	return v.([]byte), nil
}

// translateErr maps fsys's sentinel errors to the syscall errnos
// bazil.org/fuse expects back from a Node method.
func translateErr(err error) error {
	switch {
	case errors.Is(err, kerrors.ErrNameNotFound):
		return syscall.ENOENT
	case errors.Is(err, kerrors.ErrNotADirectory):
		return syscall.ENOTDIR
	case errors.Is(err, kerrors.ErrIsADirectory):
		return syscall.EISDIR
	default:
		return err
	}
}

func joinPath(dir, name string) string {
	if strings.HasSuffix(dir, "/") {
		return dir + name
	}
	return dir + "/" + name
}

// inodeFor derives a stable inode number from a path, the same role
// the teacher's roDir/roFile play with a permanode's blob hash
// (permanode.Sum64()) -- there is no blob ref here, so a path hash
// fills the same role.
func inodeFor(path string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(path))
	return h.Sum64()
}
