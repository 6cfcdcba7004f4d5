// Package workingtree implements the working-tree actor: serialized
// access to one index file, and the conversions between dir-cache
// entries and tree objects behind write-tree and read-tree.
package workingtree

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/srchound/gitkernel/internal/actor"
	"github.com/srchound/gitkernel/internal/atomicfile"
	"github.com/srchound/gitkernel/internal/trailer"
	"github.com/srchound/gitkernel/plumbing"
	"github.com/srchound/gitkernel/plumbing/filemode"
	"github.com/srchound/gitkernel/plumbing/format/index"
	"github.com/srchound/gitkernel/plumbing/object"
)

// Errors specific to the tree conversions.
var (
	ErrIncompleteMerge = errors.New("incomplete_merge")
	ErrObjectsMissing  = errors.New("objects_missing")
	ErrPrefixNotFound  = errors.New("prefix_not_found")
)

// ObjectStore is the subset of a storage backend the working-tree actor
// needs: existence checks and writes for the tree objects it produces,
// and reads for the tree objects read_tree walks.
type ObjectStore interface {
	Has(id plumbing.Hash) bool
	Put(id plumbing.Hash, typ plumbing.ObjectType, content []byte) error
	ReadObject(id plumbing.Hash) (plumbing.ObjectType, []byte, error)
}

// WorkingTree owns serialized access to one index file.
type WorkingTree struct {
	fs      billy.Filesystem
	path    string
	objects ObjectStore
	mb      *actor.Mailbox
}

// New returns a WorkingTree actor for the index file at path on fs,
// using objects for write_tree/read_tree's object access.
func New(fs billy.Filesystem, path string, objects ObjectStore) *WorkingTree {
	return &WorkingTree{fs: fs, path: path, objects: objects, mb: actor.Start()}
}

// Close stops the actor's goroutine.
func (w *WorkingTree) Close() { w.mb.Stop() }

func (w *WorkingTree) readIndex() (*index.Index, error) {
	f, err := w.fs.Open(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &index.Index{Version: 2}, nil
		}
		return nil, err
	}
	defer f.Close()

	tr := trailer.NewReader(f)
	idx, err := index.Decode(tr)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(io.Discard, tr); err != nil {
		return nil, err
	}
	if err := tr.Verify(); err != nil {
		return nil, err
	}
	return idx, nil
}

func (w *WorkingTree) writeIndex(idx *index.Index) error {
	var buf bytes.Buffer
	tw := trailer.NewWriter(&buf)
	if err := index.Encode(tw, idx); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return atomicfile.Write(w.fs, w.path, buf.Bytes())
}

// Snapshot returns the current index, re-parsed from disk.
func (w *WorkingTree) Snapshot(ctx context.Context) (*index.Index, error) {
	var idx *index.Index
	var outerErr error
	err := actor.Do(ctx, w.mb, func() {
		idx, outerErr = w.readIndex()
	})
	if err != nil {
		return nil, err
	}
	return idx, outerErr
}

// Reset replaces the index with an empty one.
func (w *WorkingTree) Reset(ctx context.Context) error {
	var outerErr error
	err := actor.Do(ctx, w.mb, func() {
		outerErr = w.writeIndex(&index.Index{Version: 2})
	})
	if err != nil {
		return err
	}
	return outerErr
}

// Update merges add into the index and removes the given (path, stage)
// targets, then writes the result.
func (w *WorkingTree) Update(ctx context.Context, add []index.Entry, remove []string, removeStage index.Stage) error {
	var outerErr error
	err := actor.Do(ctx, w.mb, func() {
		idx, rerr := w.readIndex()
		if rerr != nil {
			outerErr = rerr
			return
		}
		if len(remove) > 0 {
			idx.Remove(remove, removeStage)
		}
		if len(add) > 0 {
			idx.Add(add)
		}
		outerErr = w.writeIndex(idx)
	})
	if err != nil {
		return err
	}
	return outerErr
}

// WriteTreeOptions controls WriteTree.
type WriteTreeOptions struct {
	MissingOK bool
	Prefix    string
}

// WriteTree converts the current index into a tree of Tree objects,
// writes them all to the object store, and returns the root (or
// requested prefix's) tree ID.
func (w *WorkingTree) WriteTree(ctx context.Context, opts WriteTreeOptions) (plumbing.Hash, error) {
	var result plumbing.Hash
	var outerErr error
	err := actor.Do(ctx, w.mb, func() {
		idx, rerr := w.readIndex()
		if rerr != nil {
			outerErr = rerr
			return
		}
		if !idx.FullyMerged() {
			outerErr = ErrIncompleteMerge
			return
		}
		if !opts.MissingOK {
			if err := w.verifyBatched(idx.Entries); err != nil {
				outerErr = err
				return
			}
		}

		root, trees, err := buildTrees(idx.Entries)
		if err != nil {
			outerErr = err
			return
		}
		for id, body := range trees {
			if err := w.objects.Put(id, plumbing.TreeObject, body); err != nil && !errors.Is(err, plumbing.ErrObjectExists) {
				outerErr = err
				return
			}
		}

		if opts.Prefix == "" {
			result = root
			return
		}
		subID, found := findPrefix(root, trees, opts.Prefix)
		if !found {
			outerErr = ErrPrefixNotFound
			return
		}
		result = subID
	})
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return result, outerErr
}

func (w *WorkingTree) verifyBatched(entries []index.Entry) error {
	const batch = 100
	for i := 0; i < len(entries); i += batch {
		end := i + batch
		if end > len(entries) {
			end = len(entries)
		}
		for _, e := range entries[i:end] {
			if !w.objects.Has(e.Hash) {
				return ErrObjectsMissing
			}
		}
	}
	return nil
}

// treeNode is an in-progress directory while building trees bottom-up.
type treeNode struct {
	entries  []object.TreeEntry
	children map[string]*treeNode
}

func newTreeNode() *treeNode {
	return &treeNode{children: make(map[string]*treeNode)}
}

func buildTrees(entries []index.Entry) (plumbing.Hash, map[plumbing.Hash][]byte, error) {
	root := newTreeNode()

	for _, e := range entries {
		parts := strings.Split(e.Name, "/")
		node := root
		for _, dir := range parts[:len(parts)-1] {
			child, ok := node.children[dir]
			if !ok {
				child = newTreeNode()
				node.children[dir] = child
			}
			node = child
		}
		leaf := parts[len(parts)-1]
		node.entries = append(node.entries, object.TreeEntry{Name: leaf, Mode: e.Mode, Hash: e.Hash})
	}

	out := make(map[plumbing.Hash][]byte)
	rootID := writeNode(root, out)
	return rootID, out, nil
}

func writeNode(n *treeNode, out map[plumbing.Hash][]byte) plumbing.Hash {
	entries := append([]object.TreeEntry(nil), n.entries...)

	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		childID := writeNode(n.children[name], out)
		entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: childID})
	}

	tree := object.NewTree(entries)
	var buf bytes.Buffer
	tree.Encode(&buf)
	id := plumbing.ComputeHash(plumbing.TreeObject, buf.Bytes())
	out[id] = buf.Bytes()
	return id
}

func findPrefix(root plumbing.Hash, trees map[plumbing.Hash][]byte, prefix string) (plumbing.Hash, bool) {
	cur := root
	for _, part := range strings.Split(strings.Trim(prefix, "/"), "/") {
		body, ok := trees[cur]
		if !ok {
			return plumbing.ZeroHash, false
		}
		t := &object.Tree{}
		if err := t.Decode(bytes.NewReader(body)); err != nil {
			return plumbing.ZeroHash, false
		}
		entry, ok := t.Entry(part)
		if !ok || !entry.Mode.IsTree() {
			return plumbing.ZeroHash, false
		}
		cur = entry.Hash
	}
	return cur, true
}

// ReadTreeOptions controls ReadTree.
type ReadTreeOptions struct {
	MissingOK bool
}

// ReadTree walks the tree at id recursively, producing stage-0 dir-cache
// entries, and writes the resulting index.
func (w *WorkingTree) ReadTree(ctx context.Context, id plumbing.Hash, opts ReadTreeOptions) error {
	var outerErr error
	err := actor.Do(ctx, w.mb, func() {
		entries, rerr := w.walkTree(id, "")
		if rerr != nil {
			if !opts.MissingOK {
				outerErr = rerr
				return
			}
		}
		idx := &index.Index{Version: 2, Entries: entries}
		idx.Sort()
		outerErr = w.writeIndex(idx)
	})
	if err != nil {
		return err
	}
	return outerErr
}

func (w *WorkingTree) walkTree(id plumbing.Hash, prefix string) ([]index.Entry, error) {
	typ, body, err := w.objects.ReadObject(id)
	if err != nil {
		return nil, err
	}
	if typ != plumbing.TreeObject {
		return nil, fmt.Errorf("%w: %s is not a tree", plumbing.ErrInvalidObject, id)
	}

	t := &object.Tree{}
	if err := t.Decode(bytes.NewReader(body)); err != nil {
		return nil, err
	}

	var out []index.Entry
	for _, e := range t.Entries {
		name := e.Name
		if prefix != "" {
			name = prefix + "/" + name
		}
		if e.Mode.IsTree() {
			sub, err := w.walkTree(e.Hash, name)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
			continue
		}
		out = append(out, index.Entry{
			Mode: e.Mode,
			Hash: e.Hash,
			Name: name,
		})
	}
	return out, nil
}
