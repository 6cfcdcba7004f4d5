// Package gitkernel implements the repository façade: a single handle
// that dispatches plumbing operations to a storage backend variant
// (on-disk or in-memory) and, for on-disk repositories, a lazily-created
// working-tree actor.
package gitkernel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/srchound/gitkernel/configfile"
	"github.com/srchound/gitkernel/plumbing"
	"github.com/srchound/gitkernel/plumbing/filemode"
	"github.com/srchound/gitkernel/plumbing/format/config"
	"github.com/srchound/gitkernel/plumbing/format/index"
	"github.com/srchound/gitkernel/plumbing/object"
	"github.com/srchound/gitkernel/storage/filesystem"
	"github.com/srchound/gitkernel/storage/memory"
	"github.com/srchound/gitkernel/workingtree"
)

// backendKind is the tag of the Repository's storage-backend sum type:
// deliberately a tag, not an interface hierarchy, since the two backends'
// method sets diverge rather than share a contract.
type backendKind int

const (
	onDisk backendKind = iota
	inMemory
)

// Repository is a handle to one repository: either an on-disk backend
// rooted at workDir/gitDir, or an in-memory one. Valid answers whether
// the handle is still live.
type Repository struct {
	kind backendKind
	live bool

	// on-disk fields
	gitDir  billy.Filesystem
	workDir billy.Filesystem
	objects *filesystem.ObjectStorage
	refs    *filesystem.ReferenceStorage
	config  *configfile.File

	// in-memory fields
	mem *memory.Storage

	wt *workingtree.WorkingTree
}

// ErrInvalidRepository is returned by operations against a closed or
// never-initialized handle.
var ErrInvalidRepository = errors.New("invalid_repository")

// Init creates a fresh on-disk repository at workDirPath, with its git
// directory at workDirPath/.git.
func Init(workDirPath string) (*Repository, error) {
	workDir := osfs.New(workDirPath)
	gitDir, err := workDir.Chroot(".git")
	if err != nil {
		return nil, err
	}

	for _, dir := range []string{
		"branches", "hooks", "info", "objects/info", "objects/pack", "refs/heads", "refs/tags",
	} {
		if err := gitDir.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	if err := writeFile(gitDir, "HEAD", []byte("ref: refs/heads/master\n")); err != nil {
		return nil, err
	}
	if err := writeFile(gitDir, "description", []byte("Unnamed repository; edit this file 'description' to name the repository.\n")); err != nil {
		return nil, err
	}
	if err := writeFile(gitDir, "info/exclude", nil); err != nil {
		return nil, err
	}

	cfg := "[core]\n" +
		"\trepositoryformatversion = 0\n" +
		"\tfilemode = true\n" +
		"\tbare = false\n" +
		"\tlogallrefupdates = true\n"
	if err := writeFile(gitDir, "config", []byte(cfg)); err != nil {
		return nil, err
	}

	return Open(workDirPath)
}

func writeFile(fs billy.Filesystem, path string, content []byte) error {
	f, err := fs.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(content)
	return err
}

// Open attaches to an existing on-disk repository at workDirPath.
func Open(workDirPath string) (*Repository, error) {
	workDir := osfs.New(workDirPath)
	gitDir, err := workDir.Chroot(".git")
	if err != nil {
		return nil, err
	}

	r := &Repository{
		kind:    onDisk,
		live:    true,
		gitDir:  gitDir,
		workDir: workDir,
		objects: filesystem.NewObjectStorage(gitDir),
		refs:    filesystem.NewReferenceStorage(gitDir),
		config:  configfile.Open(gitDir, "config"),
	}
	return r, nil
}

// NewInMemory returns a repository backed entirely by memory.
func NewInMemory() *Repository {
	return &Repository{kind: inMemory, live: true, mem: memory.NewStorage()}
}

// ensureLive guards every operation against a closed or never-initialized
// handle.
func (r *Repository) ensureLive() error {
	if !r.Valid() {
		return ErrInvalidRepository
	}
	return nil
}

// Valid reports whether r is a live handle.
func (r *Repository) Valid() bool { return r != nil && r.live }

// SetDefaultWorkingTree attaches a working-tree actor rooted at r's work
// directory. It is a one-shot operation: calling it again is a no-op.
func (r *Repository) SetDefaultWorkingTree() error {
	if r.kind != onDisk {
		return plumbing.ErrBareRepository
	}
	if r.wt != nil {
		return nil
	}
	r.wt = workingtree.New(r.gitDir, "index", r.objects)
	return nil
}

func (r *Repository) workingTree() (*workingtree.WorkingTree, error) {
	if err := r.ensureLive(); err != nil {
		return nil, err
	}
	if r.wt == nil {
		if err := r.SetDefaultWorkingTree(); err != nil {
			return nil, err
		}
	}
	return r.wt, nil
}

// Close releases any actors this handle owns.
func (r *Repository) Close() {
	r.live = false
	if r.config != nil {
		r.config.Close()
	}
	if r.wt != nil {
		r.wt.Close()
	}
}

func (r *Repository) hasObject(id plumbing.Hash) bool {
	if r.kind == onDisk {
		return r.objects.Has(id)
	}
	return r.mem.Has(id)
}

func (r *Repository) getObject(id plumbing.Hash) (plumbing.ObjectType, []byte, error) {
	if r.kind == onDisk {
		return filesystem.ReadAll(r.objects, id)
	}
	return r.mem.Get(id)
}

func (r *Repository) putObject(id plumbing.Hash, typ plumbing.ObjectType, content []byte) error {
	if r.kind == onDisk {
		return r.objects.Put(id, typ, content)
	}
	return r.mem.Put(id, typ, content)
}

// HashObject computes the object ID of content as the given type,
// optionally writing it to the object store.
func (r *Repository) HashObject(typ plumbing.ObjectType, content []byte, write bool) (plumbing.Hash, error) {
	if err := r.ensureLive(); err != nil {
		return plumbing.ZeroHash, err
	}
	if !typ.Valid() {
		return plumbing.ZeroHash, plumbing.ErrInvalidObject
	}
	id := plumbing.ComputeHash(typ, content)
	if !write {
		return id, nil
	}
	if err := r.putObject(id, typ, content); err != nil && !errors.Is(err, plumbing.ErrObjectExists) {
		return plumbing.ZeroHash, err
	}
	return id, nil
}

// CatFile returns the raw type and content of id.
func (r *Repository) CatFile(id plumbing.Hash) (plumbing.ObjectType, []byte, error) {
	if err := r.ensureLive(); err != nil {
		return plumbing.InvalidObject, nil, err
	}
	if !r.hasObject(id) {
		return plumbing.InvalidObject, nil, plumbing.ErrObjectNotFound
	}
	return r.getObject(id)
}

// CatFileCommit decodes id as a commit.
func (r *Repository) CatFileCommit(id plumbing.Hash) (*object.Commit, error) {
	typ, content, err := r.CatFile(id)
	if err != nil {
		return nil, err
	}
	if typ != plumbing.CommitObject {
		return nil, fmt.Errorf("%w: not a commit", plumbing.ErrInvalidObject)
	}
	c := &object.Commit{}
	if err := c.Decode(bytes.NewReader(content)); err != nil {
		return nil, err
	}
	return c, nil
}

// CatFileTree decodes id as a tree.
func (r *Repository) CatFileTree(id plumbing.Hash) (*object.Tree, error) {
	typ, content, err := r.CatFile(id)
	if err != nil {
		return nil, err
	}
	if typ != plumbing.TreeObject {
		return nil, fmt.Errorf("%w: not a tree", plumbing.ErrInvalidObject)
	}
	t := &object.Tree{}
	if err := t.Decode(bytes.NewReader(content)); err != nil {
		return nil, err
	}
	return t, nil
}

// CatFileTag decodes id as an annotated tag.
func (r *Repository) CatFileTag(id plumbing.Hash) (*object.Tag, error) {
	typ, content, err := r.CatFile(id)
	if err != nil {
		return nil, err
	}
	if typ != plumbing.TagObject {
		return nil, fmt.Errorf("%w: not a tag", plumbing.ErrInvalidObject)
	}
	t := &object.Tag{}
	if err := t.Decode(bytes.NewReader(content)); err != nil {
		return nil, err
	}
	return t, nil
}

// CommitTreeOptions are the fields of a new commit.
type CommitTreeOptions struct {
	Tree      plumbing.Hash
	Parents   []plumbing.Hash
	Author    object.Signature
	Committer object.Signature
	Message   string
}

// CommitTree builds and writes a new commit object.
func (r *Repository) CommitTree(opts CommitTreeOptions) (plumbing.Hash, error) {
	if err := r.ensureLive(); err != nil {
		return plumbing.ZeroHash, err
	}
	c := &object.Commit{
		Tree:      opts.Tree,
		Parents:   opts.Parents,
		Author:    opts.Author,
		Committer: opts.Committer,
		Message:   opts.Message,
	}

	var buf bytes.Buffer
	if err := c.Encode(&buf); err != nil {
		return plumbing.ZeroHash, err
	}
	id := plumbing.ComputeHash(plumbing.CommitObject, buf.Bytes())

	if err := r.putObject(id, plumbing.CommitObject, buf.Bytes()); err != nil && !errors.Is(err, plumbing.ErrObjectExists) {
		return plumbing.ZeroHash, err
	}
	return id, nil
}

// WriteTree delegates to the working-tree actor.
func (r *Repository) WriteTree(ctx context.Context, opts workingtree.WriteTreeOptions) (plumbing.Hash, error) {
	wt, err := r.workingTree()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return wt.WriteTree(ctx, opts)
}

// ReadTree delegates to the working-tree actor.
func (r *Repository) ReadTree(ctx context.Context, id plumbing.Hash, opts workingtree.ReadTreeOptions) error {
	wt, err := r.workingTree()
	if err != nil {
		return err
	}
	return wt.ReadTree(ctx, id, opts)
}

// DirCache returns the current index, re-parsed from disk.
func (r *Repository) DirCache(ctx context.Context) (*index.Index, error) {
	if err := r.ensureLive(); err != nil {
		return nil, err
	}
	wt, err := r.workingTree()
	if err != nil {
		return nil, err
	}
	return wt.Snapshot(ctx)
}

// LsFilesStage returns the current index's entries (ls_files_stage).
func (r *Repository) LsFilesStage(ctx context.Context) ([]index.Entry, error) {
	wt, err := r.workingTree()
	if err != nil {
		return nil, err
	}
	idx, err := wt.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return idx.Entries, nil
}

// CacheInfo is one (mode, object id, path) triple for
// UpdateIndexCacheInfo.
type CacheInfo struct {
	Mode filemode.FileMode
	Hash plumbing.Hash
	Path string
}

// UpdateIndexCacheInfo is update_index_cache_info: it stages (mode, id,
// path) triples at stage 0, replacing any existing entry at the same
// path and stage.
func (r *Repository) UpdateIndexCacheInfo(ctx context.Context, entries []CacheInfo) error {
	wt, err := r.workingTree()
	if err != nil {
		return err
	}

	add := make([]index.Entry, len(entries))
	for i, e := range entries {
		add[i] = index.Entry{Mode: e.Mode, Hash: e.Hash, Name: e.Path}
	}
	return wt.Update(ctx, add, nil, 0)
}

// ListRefs returns every ref under refs/heads/, sorted by name.
func (r *Repository) ListRefs() ([]*plumbing.Reference, error) {
	if err := r.ensureLive(); err != nil {
		return nil, err
	}
	if r.kind == onDisk {
		return r.refs.List()
	}
	return r.mem.ListRefs()
}

// GetRef looks up name, following symbolic chains when follow is set.
func (r *Repository) GetRef(name plumbing.ReferenceName, follow bool) (*plumbing.Reference, error) {
	if err := r.ensureLive(); err != nil {
		return nil, err
	}
	if r.kind == onDisk {
		return r.refs.Get(name, follow)
	}
	return r.mem.GetRef(name, follow)
}

// UpdateRef writes a hash reference, creating or moving it. The target
// must exist as an object; for an on-disk, non-bare repository it must
// also be a commit. The in-memory backend defers the commit-type check.
func (r *Repository) UpdateRef(name plumbing.ReferenceName, target plumbing.Hash) error {
	if err := r.ensureLive(); err != nil {
		return err
	}
	if !plumbing.IsValidReferenceName(name) {
		return plumbing.ErrInvalidRef
	}
	if !r.hasObject(target) {
		return plumbing.ErrTargetNotFound
	}
	ref := plumbing.NewHashReference(name, target)
	if r.kind == onDisk {
		if !r.isBare() {
			typ, _, err := r.getObject(target)
			if err != nil {
				return err
			}
			if typ != plumbing.CommitObject {
				return plumbing.ErrTargetNotCommit
			}
		}
		return r.refs.Put(ref, filesystem.PutOptions{Follow: true})
	}
	return r.mem.PutRef(ref, memory.PutOptions{Follow: true})
}

// isBare reads core.bare from the repository config, defaulting to false
// when the file or the variable is absent.
func (r *Repository) isBare() bool {
	entries, err := r.config.GetEntries(context.Background(), configfile.Query{Section: "core", Name: "bare"})
	if err != nil || len(entries) == 0 {
		return false
	}
	return entries[len(entries)-1].Value == "true"
}

// PutSymbolicRef writes name as a symbolic ref pointing at target.
func (r *Repository) PutSymbolicRef(name, target plumbing.ReferenceName) error {
	if err := r.ensureLive(); err != nil {
		return err
	}
	ref := plumbing.NewSymbolicReference(name, target)
	if r.kind == onDisk {
		return r.refs.Put(ref, filesystem.PutOptions{})
	}
	return r.mem.PutRef(ref, memory.PutOptions{})
}

// GetSymbolicRef reads name without following it, returning the target
// ref name it points at.
func (r *Repository) GetSymbolicRef(name plumbing.ReferenceName) (plumbing.ReferenceName, error) {
	if err := r.ensureLive(); err != nil {
		return "", err
	}
	var ref *plumbing.Reference
	var err error
	if r.kind == onDisk {
		ref, err = r.refs.Get(name, false)
	} else {
		ref, err = r.mem.GetRef(name, false)
	}
	if err != nil {
		return "", err
	}
	if ref.Type() != plumbing.SymbolicReference {
		return "", plumbing.ErrInvalidRef
	}
	return ref.Target(), nil
}

// DeleteSymbolicRef removes name.
func (r *Repository) DeleteSymbolicRef(name plumbing.ReferenceName) error {
	if err := r.ensureLive(); err != nil {
		return err
	}
	if r.kind == onDisk {
		return r.refs.Delete(name, filesystem.PutOptions{})
	}
	return r.mem.DeleteRef(name, memory.PutOptions{})
}

// GetConfigEntries returns the config entries matching q. In-memory
// repositories have no racy-git cache to maintain, so they query their
// parsed config directly.
func (r *Repository) GetConfigEntries(ctx context.Context, q configfile.Query) ([]ConfigEntry, error) {
	if err := r.ensureLive(); err != nil {
		return nil, err
	}
	if r.kind == onDisk {
		entries, err := r.config.GetEntries(ctx, q)
		if err != nil {
			return nil, err
		}
		return toConfigEntries(entries), nil
	}
	return toConfigEntries(r.mem.Config().Get(q.Section, q.Subsection, q.HasSubsection, q.Name)), nil
}

// AddConfigEntries applies entries to the config under opts' semantics.
func (r *Repository) AddConfigEntries(ctx context.Context, entries []configfile.Incoming, opts configfile.MutateOptions) error {
	if err := r.ensureLive(); err != nil {
		return err
	}
	if r.kind == onDisk {
		return r.config.AddEntries(ctx, entries, opts)
	}

	if opts.Add && opts.ReplaceAll {
		return errors.New("invalid_format: add and replace_all are mutually exclusive")
	}

	next := r.mem.Config()
	for _, in := range entries {
		if err := memAddEntry(next, in, opts); err != nil {
			return err
		}
	}
	r.mem.SetConfig(next)
	return nil
}

// ConfigEntry is one resolved config variable returned by
// GetConfigEntries.
type ConfigEntry struct {
	Section    string
	Subsection string
	Name       string
	Value      string
}

func toConfigEntries(src []config.Entry) []ConfigEntry {
	out := make([]ConfigEntry, len(src))
	for i, e := range src {
		out[i] = ConfigEntry{Section: e.Section, Subsection: e.Subsection, Name: e.Name, Value: e.Value}
	}
	return out
}

// memAddEntry mirrors configfile's add/replace semantics for the
// in-memory backend, which has no file or racy-git cache to serialize
// through an actor.
func memAddEntry(cfg *config.Config, in configfile.Incoming, opts configfile.MutateOptions) error {
	section := strings.ToLower(in.Section)
	name := strings.ToLower(in.Name)

	var matchIdx []int
	for i, e := range cfg.Entries {
		if e.Section == section && e.Subsection == in.Subsection && e.Name == name {
			matchIdx = append(matchIdx, i)
		}
	}

	entry := config.Entry{
		Section:    section,
		Subsection: in.Subsection,
		Name:       name,
		Value:      in.Value,
		HasValue:   true,
	}

	switch {
	case opts.Add:
		cfg.InsertEntry(entry)
		return nil
	case opts.ReplaceAll:
		cfg.RemoveEntries(matchIdx)
		cfg.InsertEntry(entry)
		return nil
	default:
		switch len(matchIdx) {
		case 0:
			cfg.InsertEntry(entry)
			return nil
		case 1:
			cfg.ReplaceEntry(matchIdx[0], in.Value)
			return nil
		default:
			return configfile.ErrReplacingMultivar
		}
	}
}
