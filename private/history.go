// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package private

import (
	"context"
	"fmt"

	"github.com/webnative-fs/wnfs/ratchet"
)

// nodeHistory walks a single node's revisions backward from its
// current header's ratchet position, one ratchet.PreviousIter step at
// a time.
type nodeHistory struct {
	header   Header
	ratchets []ratchet.Ratchet // newest-first, as ratchet.PreviousIter returns them
	idx      int
}

// newNodeHistory builds an iterator over the ratchet positions strictly
// between pastRatchet and header.Ratchet, both exclusive: PreviousIter
// always yields header.Ratchet itself as its first (newest) element when
// the two differ, which would make the first history step a no-op
// re-fetch of the node's own current revision, so that self-reference
// is dropped here.
func newNodeHistory(header Header, pastRatchet ratchet.Ratchet, budget int) (*nodeHistory, error) {
	ratchets, err := ratchet.PreviousIter(pastRatchet, header.Ratchet, budget)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoIntermediateRatchet, err)
	}
	if len(ratchets) > 0 {
		ratchets = ratchets[1:]
	}
	return &nodeHistory{header: header, ratchets: ratchets}, nil
}

// previousNode returns the node at the next-older ratchet position, or
// nil if the iterator is exhausted.
func (h *nodeHistory) previousNode(ctx context.Context, forest *Forest) (*PrivateNode, error) {
	if h.idx >= len(h.ratchets) {
		return nil, nil
	}
	h.header.Ratchet = h.ratchets[h.idx]
	h.idx++

	label := h.header.RevisionLabel(forest.Setup)
	temporalKey := h.header.TemporalKey()
	nodes, err := forest.GetLatest(ctx, label, temporalKey)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return nodes[0], nil
}

func (h *nodeHistory) previousDir(ctx context.Context, forest *Forest) (*PrivateDirectory, error) {
	node, err := h.previousNode(ctx, forest)
	if err != nil || node == nil {
		return nil, err
	}
	if !node.IsDir() {
		return nil, nil
	}
	return node.Dir, nil
}

// PrivateNodeHistory iterates a single node's revisions backward from
// its current ratchet position down to pastRatchet (exclusive),
// yielding the most recent revision first.
type PrivateNodeHistory struct {
	forest *Forest
	inner  *nodeHistory
}

// NewPrivateNodeHistory builds a history for node, bounded by budget
// ratchet steps.
func NewPrivateNodeHistory(node *PrivateNode, pastRatchet ratchet.Ratchet, budget int, forest *Forest) (*PrivateNodeHistory, error) {
	inner, err := newNodeHistory(node.Header(), pastRatchet, budget)
	if err != nil {
		return nil, err
	}
	return &PrivateNodeHistory{forest: forest, inner: inner}, nil
}

// Next returns the next-older revision, or nil when exhausted.
func (h *PrivateNodeHistory) Next(ctx context.Context) (*PrivateNode, error) {
	return h.inner.previousNode(ctx, h.forest)
}

// pathHistoryEntry is one ancestor on the path from root to the node
// PrivateNodeOnPathHistory is tracking: the ancestor directory
// currently being viewed, that directory's own history iterator, and
// the child name that continues the path toward the target.
type pathHistoryEntry struct {
	dir     *PrivateDirectory
	history *nodeHistory
	segment string
}

// PrivateNodeOnPathHistory yields historical revisions of a node
// located by path from a root directory. Because intermediate
// directories change between revisions too, it maintains a stack of
// per-ancestor history iterators alongside the target's own, stepping
// ancestors in bottom-up order and re-resolving the path through each
// older ancestor as it goes.
type PrivateNodeOnPathHistory struct {
	forest *Forest
	path   []pathHistoryEntry
	tail   *nodeHistory
}

// NewPrivateNodeOnPathHistory builds a path history for the node found
// by walking pathSegments from root. If searchLatest is set, the
// target is first advanced to its latest known revision before
// history begins walking backward from there.
func NewPrivateNodeOnPathHistory(ctx context.Context, root *PrivateDirectory, pathSegments Path, searchLatest bool, forest *Forest, pastRatchet ratchet.Ratchet, budget int) (*PrivateNodeOnPathHistory, error) {
	currentRatchet := root.Header.Ratchet

	if len(pathSegments) == 0 {
		tail, err := newNodeHistory(root.Header, pastRatchet, budget)
		if err != nil {
			return nil, err
		}
		return &PrivateNodeOnPathHistory{forest: forest, tail: tail}, nil
	}

	last := pathSegments[len(pathSegments)-1]
	dirSegments := pathSegments[:len(pathSegments)-1]

	ancestors := []*PrivateDirectory{root}
	cur := root
	for _, seg := range dirSegments {
		node, ok, err := cur.LookupNode(ctx, seg, forest)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrPathNotFound
		}
		if !node.IsDir() {
			return nil, ErrNotADirectory
		}
		cur = node.Dir
		ancestors = append(ancestors, cur)
	}

	target, ok, err := cur.LookupNode(ctx, last, forest)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPathNotFound
	}

	targetLatest := target
	if searchLatest {
		targetLatest, err = searchLatestNode(ctx, target, forest)
		if err != nil {
			return nil, err
		}
	}

	result := &PrivateNodeOnPathHistory{forest: forest, tail: &nodeHistory{header: targetLatest.Header()}}
	for i, dir := range ancestors {
		segment := last
		if i < len(dirSegments) {
			segment = dirSegments[i]
		}
		result.path = append(result.path, pathHistoryEntry{dir: dir, history: &nodeHistory{header: dir.Header}, segment: segment})
	}

	ratchets, err := ratchet.PreviousIter(pastRatchet, currentRatchet, budget)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoIntermediateRatchet, err)
	}
	result.path[0].history.ratchets = ratchets
	result.path[0].history.idx = 0

	return result, nil
}

// stepAncestors walks the ancestor stack back one revision and
// re-resolves the path through it, returning the node now found at the
// target's segment. Ancestors whose own iterator is exhausted are
// popped and re-seated with a freshly built iterator bounded by the
// next-older ancestor found further up the stack; found is false once
// the stack itself is exhausted.
func (p *PrivateNodeOnPathHistory) stepAncestors(ctx context.Context, budget int) (*PrivateNode, bool, error) {
	type stashedEntry struct {
		dir     *PrivateDirectory
		segment string
	}
	var working []stashedEntry

	for {
		if len(p.path) == 0 {
			return nil, false, nil
		}
		idx := len(p.path) - 1
		entry := p.path[idx]
		prevDir, err := entry.history.previousDir(ctx, p.forest)
		if err != nil {
			return nil, false, err
		}
		if prevDir != nil {
			p.path[idx] = pathHistoryEntry{dir: prevDir, history: entry.history, segment: entry.segment}
			break
		}
		p.path = p.path[:idx]
		working = append(working, stashedEntry{dir: entry.dir, segment: entry.segment})
	}

	// The stack's deepest still-live ancestor (path[last]) was just
	// stepped back by the loop above; reuse that result as-is for the
	// first re-seating below instead of stepping it a second time.
	usedStep := false
	for i := len(working) - 1; i >= 0; i-- {
		we := working[i]
		ancestor := &p.path[len(p.path)-1]

		var ancestorDir *PrivateDirectory
		if !usedStep {
			ancestorDir = ancestor.dir
			usedStep = true
		} else {
			d, err := ancestor.history.previousDir(ctx, p.forest)
			if err != nil {
				return nil, false, err
			}
			if d == nil {
				return nil, false, nil
			}
			ancestorDir = d
		}

		olderNode, ok, err := ancestorDir.LookupNode(ctx, ancestor.segment, p.forest)
		if err != nil {
			return nil, false, err
		}
		if !ok || !olderNode.IsDir() {
			return nil, false, nil
		}

		h, err := newNodeHistory(we.dir.Header, olderNode.Dir.Header.Ratchet, budget)
		if err != nil {
			return nil, false, err
		}
		p.path = append(p.path, pathHistoryEntry{dir: olderNode.Dir, history: h, segment: we.segment})
	}

	ancestor := p.path[len(p.path)-1]
	olderNode, ok, err := ancestor.dir.LookupNode(ctx, ancestor.segment, p.forest)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return olderNode, true, nil
}

// Previous returns the next-older revision of the target node, or nil
// once no further revision can be reached within budget. Ancestor
// directories can change across a revision boundary without the target
// leaf itself changing (a sibling write, say); such steps are skipped
// so every node Previous returns is a genuinely distinct revision.
func (p *PrivateNodeOnPathHistory) Previous(ctx context.Context, budget int) (*PrivateNode, error) {
	if len(p.path) == 0 && p.tail != nil {
		// An empty path targets the root itself, whose revisions the tail
		// iterator walks directly.
		return p.tail.previousNode(ctx, p.forest)
	}
	for {
		node, found, err := p.stepAncestors(ctx, budget)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		if p.tail != nil && node.Header().Ratchet.Equal(p.tail.header.Ratchet) {
			continue
		}
		p.tail = &nodeHistory{header: node.Header()}
		return node, nil
	}
}
