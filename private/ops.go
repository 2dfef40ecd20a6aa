// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// This file implements the path-addressed operations layer: the
// mkdir/write/read/rm/mv/cp surface a caller drives a PrivateDirectory
// tree through. Every mutating operation threads clone-on-write down
// the path from the tree's root, then persists each touched ancestor
// to the forest bottom-up so a parent's serialized entries always
// reference an already-stored child.
package private

import (
	"context"
	"io"

	"github.com/webnative-fs/wnfs/nameaccumulator"
)

// Path is a sequence of child names, walked from some directory.
type Path = []string

// leafOp applies the path operation's actual effect to the directory
// that directly contains the final path segment.
type leafOp func(ctx context.Context, dir *PrivateDirectory, name string, mtime int64, forest *Forest, rng io.Reader) error

// mutateAtPath walks segments from dir, cloning every directory it
// passes through (PrepareNextRevision), auto-creating missing
// intermediate directories (mkdir -p semantics), invoking leaf once it
// reaches the directory holding the final segment, and persisting
// every newly-cloned directory to forest on the way back up.
func mutateAtPath(ctx context.Context, dir *PrivateDirectory, segments []string, mtime int64, forest *Forest, rng io.Reader, leaf leafOp) (*PrivateDirectory, error) {
	dir, err := prepareNextRevisionDir(ctx, dir, forest, rng)
	if err != nil {
		return nil, err
	}

	if len(segments) == 1 {
		if err := leaf(ctx, dir, segments[0], mtime, forest, rng); err != nil {
			return nil, err
		}
		return dir, nil
	}

	name := segments[0]
	childNode, ok, err := dir.LookupNode(ctx, name, forest)
	if err != nil {
		return nil, err
	}

	var childDir *PrivateDirectory
	if ok {
		if !childNode.IsDir() {
			return nil, ErrNotADirectory
		}
		childDir = childNode.Dir
	} else {
		childDir, err = NewChildDirectory(forest.Setup, dir.Header.Name, rng, mtime)
		if err != nil {
			return nil, err
		}
	}

	newChildDir, err := mutateAtPath(ctx, childDir, segments[1:], mtime, forest, rng, leaf)
	if err != nil {
		return nil, err
	}
	if _, err := forest.Put(ctx, WrapDirectory(newChildDir)); err != nil {
		return nil, err
	}
	dir.PutNode(name, WrapDirectory(newChildDir))
	return dir, nil
}

func prepareNextRevisionDir(ctx context.Context, dir *PrivateDirectory, forest *Forest, rng io.Reader) (*PrivateDirectory, error) {
	next, err := PrepareNextRevision(ctx, WrapDirectory(dir), forest.blockStore, rng)
	if err != nil {
		return nil, err
	}
	return next.Dir, nil
}

// GetNode walks path from root, returning the node it resolves to. If
// searchLatest is set, at each hop it follows the forest forward to
// any newer revision written by a concurrent replica before
// continuing the walk.
func GetNode(ctx context.Context, root *PrivateDirectory, forest *Forest, path Path, searchLatest bool) (*PrivateNode, error) {
	if len(path) == 0 {
		return WrapDirectory(root), nil
	}

	cur := root
	var node *PrivateNode
	for i, seg := range path {
		n, ok, err := cur.LookupNode(ctx, seg, forest)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrPathNotFound
		}
		if searchLatest {
			n, err = searchLatestNode(ctx, n, forest)
			if err != nil {
				return nil, err
			}
		}
		node = n
		if i < len(path)-1 {
			if !n.IsDir() {
				return nil, ErrNotADirectory
			}
			cur = n.Dir
		}
	}
	return node, nil
}

// searchLatestNode follows node.Header().Name forward through the
// forest for as long as a newer revision exists at the next ratchet
// position, implementing the search_latest protocol. A decryption
// failure partway through the scan is not an error: it means the
// label held ciphertext from a writer whose key this caller doesn't
// possess, which ends the scan at the last node this caller could
// read.
func searchLatestNode(ctx context.Context, node *PrivateNode, forest *Forest) (*PrivateNode, error) {
	for {
		header := node.Header()
		nextRatchet := header.Ratchet.Inc()
		nextTemporal := TemporalKey(nextRatchet.DeriveKey())
		nextLabel, _ := nameaccumulator.Accumulate(forest.Setup, header.Name, []nameaccumulator.NameSegment{nextTemporal.RevisionSegment()})

		cids, err := forest.getCids(ctx, nextLabel)
		if err != nil {
			return nil, err
		}
		if len(cids) == 0 {
			return node, nil
		}

		next, err := loadNode(ctx, forest.blockStore, cids[0], nextTemporal)
		if err != nil {
			return node, nil
		}
		node = next
	}
}

// LookupNode is the single-segment variant of GetNode, resolving name
// directly under root.
func LookupNode(ctx context.Context, root *PrivateDirectory, forest *Forest, name string, searchLatest bool) (*PrivateNode, error) {
	return GetNode(ctx, root, forest, Path{name}, searchLatest)
}

// Ls returns the children of the directory at path, ordered by name.
func Ls(ctx context.Context, root *PrivateDirectory, forest *Forest, path Path) ([]DirEntry, error) {
	dir := root
	if len(path) > 0 {
		node, err := GetNode(ctx, root, forest, path, false)
		if err != nil {
			return nil, err
		}
		if !node.IsDir() {
			return nil, ErrNotADirectory
		}
		dir = node.Dir
	}
	return dir.Ls(ctx, forest)
}

// Mkdir creates every directory named by path that doesn't already
// exist (mkdir -p), cloning and re-persisting every directory from
// root down to the deepest segment.
func Mkdir(ctx context.Context, root **PrivateDirectory, forest *Forest, path Path, mtime int64, rng io.Reader) error {
	if len(path) == 0 {
		return ErrInvalidPath
	}

	newRoot, err := mutateAtPath(ctx, *root, path, mtime, forest, rng, func(ctx context.Context, dir *PrivateDirectory, name string, mtime int64, forest *Forest, rng io.Reader) error {
		existing, ok, err := dir.LookupNode(ctx, name, forest)
		if err != nil {
			return err
		}
		if ok {
			if !existing.IsDir() {
				return ErrNotADirectory
			}
			return nil
		}
		child, err := NewChildDirectory(forest.Setup, dir.Header.Name, rng, mtime)
		if err != nil {
			return err
		}
		if _, err := forest.Put(ctx, WrapDirectory(child)); err != nil {
			return err
		}
		dir.PutNode(name, WrapDirectory(child))
		return nil
	})
	if err != nil {
		return err
	}
	if _, err := forest.Put(ctx, WrapDirectory(newRoot)); err != nil {
		return err
	}
	*root = newRoot
	return nil
}

// Write creates or replaces the file at path with content,
// auto-creating intermediate directories as Mkdir would.
func Write(ctx context.Context, root **PrivateDirectory, forest *Forest, path Path, content []byte, mtime int64, rng io.Reader) error {
	if len(path) == 0 {
		return ErrInvalidPath
	}

	newRoot, err := mutateAtPath(ctx, *root, path, mtime, forest, rng, func(ctx context.Context, dir *PrivateDirectory, name string, mtime int64, forest *Forest, rng io.Reader) error {
		existing, ok, err := dir.LookupNode(ctx, name, forest)
		if err != nil {
			return err
		}

		var file *PrivateFile
		if ok {
			if !existing.IsFile() {
				return ErrNotAFile
			}
			next, err := PrepareNextRevision(ctx, existing, forest.blockStore, rng)
			if err != nil {
				return err
			}
			file = next.File
			file.Metadata.Mtime = mtime
			if err := file.SetContent(content, rng); err != nil {
				return err
			}
		} else {
			file, err = NewFile(forest.Setup, dir.Header.Name, content, mtime, rng)
			if err != nil {
				return err
			}
		}

		if _, err := forest.Put(ctx, WrapFile(file)); err != nil {
			return err
		}
		dir.PutNode(name, WrapFile(file))
		return nil
	})
	if err != nil {
		return err
	}
	if _, err := forest.Put(ctx, WrapDirectory(newRoot)); err != nil {
		return err
	}
	*root = newRoot
	return nil
}

// Read returns the full content of the file at path.
func Read(ctx context.Context, root *PrivateDirectory, forest *Forest, path Path) ([]byte, error) {
	node, err := GetNode(ctx, root, forest, path, false)
	if err != nil {
		return nil, err
	}
	if !node.IsFile() {
		return nil, ErrNotAFile
	}
	return node.File.Read(ctx, forest)
}

// ReadAt returns exactly length bytes of the file at path starting at
// offset.
func ReadAt(ctx context.Context, root *PrivateDirectory, forest *Forest, path Path, offset, length uint64) ([]byte, error) {
	node, err := GetNode(ctx, root, forest, path, false)
	if err != nil {
		return nil, err
	}
	if !node.IsFile() {
		return nil, ErrNotAFile
	}
	return node.File.ReadAt(ctx, forest, offset, length)
}

// rmRec mirrors mutateAtPath's clone-on-write walk but for removal,
// which must fail (rather than auto-create) on a missing intermediate
// segment, and needs to hand the removed node back to the caller.
func rmRec(ctx context.Context, dir *PrivateDirectory, segments []string, forest *Forest, rng io.Reader) (*PrivateDirectory, *PrivateNode, error) {
	dir, err := prepareNextRevisionDir(ctx, dir, forest, rng)
	if err != nil {
		return nil, nil, err
	}

	if len(segments) == 1 {
		removed, ok, err := dir.RemoveNode(ctx, segments[0], forest)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return nil, nil, ErrPathNotFound
		}
		return dir, removed, nil
	}

	name := segments[0]
	childNode, ok, err := dir.LookupNode(ctx, name, forest)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrPathNotFound
	}
	if !childNode.IsDir() {
		return nil, nil, ErrNotADirectory
	}

	newChildDir, removed, err := rmRec(ctx, childNode.Dir, segments[1:], forest, rng)
	if err != nil {
		return nil, nil, err
	}
	if _, err := forest.Put(ctx, WrapDirectory(newChildDir)); err != nil {
		return nil, nil, err
	}
	dir.PutNode(name, WrapDirectory(newChildDir))
	return dir, removed, nil
}

// Rm removes the node at path, returning it.
func Rm(ctx context.Context, root **PrivateDirectory, forest *Forest, path Path, rng io.Reader) (*PrivateNode, error) {
	if len(path) == 0 {
		return nil, ErrInvalidPath
	}
	newRoot, removed, err := rmRec(ctx, *root, path, forest, rng)
	if err != nil {
		return nil, err
	}
	if _, err := forest.Put(ctx, WrapDirectory(newRoot)); err != nil {
		return nil, err
	}
	*root = newRoot
	return removed, nil
}

// relabelSubtree re-derives node's name (and, recursively, every
// descendant's) under newParentName, preserving each node's inumber
// and ratchet. This is what basic_mv uses: the moved subtree keeps its
// identity and history, but its accumulated name must change because
// the name encodes the parent chain.
func relabelSubtree(ctx context.Context, node *PrivateNode, newParentName nameaccumulator.NameAccumulator, forest *Forest) (*PrivateNode, error) {
	header := node.Header()
	newName, _ := nameaccumulator.Accumulate(forest.Setup, newParentName, []nameaccumulator.NameSegment{header.Inumber})
	newHeader := Header{Inumber: header.Inumber, Ratchet: header.Ratchet, Name: newName}

	if node.IsFile() {
		f := *node.File
		f.Header = newHeader
		f.persistedRef = nil
		return WrapFile(&f), nil
	}

	d := *node.Dir
	d.Header = newHeader
	d.persistedRef = nil
	newEntries := make(map[string]PrivateLink, len(d.Entries))
	for name, link := range d.Entries {
		child, err := link.Resolve(ctx, forest)
		if err != nil {
			return nil, err
		}
		relabeled, err := relabelSubtree(ctx, child, newName, forest)
		if err != nil {
			return nil, err
		}
		if _, err := forest.Put(ctx, relabeled); err != nil {
			return nil, err
		}
		newEntries[name] = NewPrivateLink(relabeled)
	}
	d.Entries = newEntries
	return WrapDirectory(&d), nil
}

// deepCopySubtree copies node and, recursively, every descendant,
// minting a fresh inumber and ratchet at every level so the copy's
// names and key chain are fully decorrelated from the original. File
// content is shared by reference (the copy's chunk labels are
// unchanged), since content-addressed chunks are immutable.
func deepCopySubtree(ctx context.Context, node *PrivateNode, newParentName nameaccumulator.NameAccumulator, forest *Forest, rng io.Reader) (*PrivateNode, error) {
	newHeader, err := NewChildHeader(forest.Setup, newParentName, rng)
	if err != nil {
		return nil, err
	}

	if node.IsFile() {
		f := *node.File
		f.Header = newHeader
		f.persistedRef = nil
		f.Previous = nil
		return WrapFile(&f), nil
	}

	d := *node.Dir
	d.Header = newHeader
	d.persistedRef = nil
	d.Previous = nil
	newEntries := make(map[string]PrivateLink, len(d.Entries))
	for name, link := range d.Entries {
		child, err := link.Resolve(ctx, forest)
		if err != nil {
			return nil, err
		}
		copied, err := deepCopySubtree(ctx, child, newHeader.Name, forest, rng)
		if err != nil {
			return nil, err
		}
		if _, err := forest.Put(ctx, copied); err != nil {
			return nil, err
		}
		newEntries[name] = NewPrivateLink(copied)
	}
	d.Entries = newEntries
	return WrapDirectory(&d), nil
}

// insertAtPath is mutateAtPath's counterpart for mv/cp, where the leaf
// value is an already-built node rather than one mutateAtPath
// constructs from raw content.
func insertAtPath(ctx context.Context, dir *PrivateDirectory, segments []string, mtime int64, forest *Forest, rng io.Reader, node *PrivateNode) (*PrivateDirectory, error) {
	return mutateAtPath(ctx, dir, segments, mtime, forest, rng, func(ctx context.Context, dir *PrivateDirectory, name string, mtime int64, forest *Forest, rng io.Reader) error {
		if _, ok, err := dir.LookupNode(ctx, name, forest); err != nil {
			return err
		} else if ok {
			return ErrAlreadyExists
		}
		relabeled, err := relabelSubtree(ctx, node, dir.Header.Name, forest)
		if err != nil {
			return err
		}
		if _, err := forest.Put(ctx, relabeled); err != nil {
			return err
		}
		dir.PutNode(name, relabeled)
		return nil
	})
}

// BasicMv removes the node at from and inserts it at to, re-labeling
// the moved subtree's headers to reflect its new parent.
func BasicMv(ctx context.Context, root **PrivateDirectory, forest *Forest, from, to Path, mtime int64, rng io.Reader) error {
	if len(to) == 0 {
		return ErrInvalidPath
	}
	removed, err := Rm(ctx, root, forest, from, rng)
	if err != nil {
		return err
	}
	newRoot, err := insertAtPath(ctx, *root, to, mtime, forest, rng, removed)
	if err != nil {
		return err
	}
	if _, err := forest.Put(ctx, WrapDirectory(newRoot)); err != nil {
		return err
	}
	*root = newRoot
	return nil
}

// Cp structurally copies the node at from to to. The copy gets a
// fresh inumber (and, recursively, so does every descendant), so its
// name diverges entirely from the original's.
func Cp(ctx context.Context, root **PrivateDirectory, forest *Forest, from, to Path, mtime int64, rng io.Reader) error {
	if len(to) == 0 {
		return ErrInvalidPath
	}
	source, err := GetNode(ctx, *root, forest, from, false)
	if err != nil {
		return err
	}

	newRoot, err := mutateAtPath(ctx, *root, to, mtime, forest, rng, func(ctx context.Context, dir *PrivateDirectory, name string, mtime int64, forest *Forest, rng io.Reader) error {
		if _, ok, err := dir.LookupNode(ctx, name, forest); err != nil {
			return err
		} else if ok {
			return ErrAlreadyExists
		}
		copied, err := deepCopySubtree(ctx, source, dir.Header.Name, forest, rng)
		if err != nil {
			return err
		}
		if _, err := forest.Put(ctx, copied); err != nil {
			return err
		}
		dir.PutNode(name, copied)
		return nil
	})
	if err != nil {
		return err
	}
	if _, err := forest.Put(ctx, WrapDirectory(newRoot)); err != nil {
		return err
	}
	*root = newRoot
	return nil
}
