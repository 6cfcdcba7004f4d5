// Package configfile implements the config-file actor: a racy-git-safe
// read cache in front of plumbing/format/config, plus the query and
// mutation operations the repository façade exposes.
package configfile

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/srchound/gitkernel/internal/actor"
	"github.com/srchound/gitkernel/internal/atomicfile"
	"github.com/srchound/gitkernel/plumbing/format/config"
)

// racyWindow is the "racy-git" safety margin: any gap smaller than this
// between the last check and the observed mtime is treated as "possibly
// modified".
const racyWindow = 3 * time.Second

// ErrReplacingMultivar is returned when a default (non-add, non-replace-
// all) mutation targets a variable that currently has more than one
// value.
var ErrReplacingMultivar = errors.New("replacing_multivar")

// File is the config-file actor: owns the only write path to its target
// file and serializes all access through a Mailbox.
type File struct {
	fs   billy.Filesystem
	path string
	mb   *actor.Mailbox

	lastCheck time.Time
	lastMtime time.Time
	cached    *config.Config
}

// Open returns a File actor for path on fs. The file need not exist yet;
// a missing file parses as an empty Config.
func Open(fs billy.Filesystem, path string) *File {
	return &File{fs: fs, path: path, mb: actor.Start()}
}

// Close stops the actor's goroutine.
func (f *File) Close() { f.mb.Stop() }

// read returns the current parsed config, re-parsing if the file's mtime
// indicates a change, or if the last check landed inside the racy
// window.
func (f *File) read() (*config.Config, error) {
	info, err := f.fs.Stat(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			if f.cached == nil {
				f.cached = &config.Config{}
			}
			return f.cached, nil
		}
		return nil, err
	}

	mtime := info.ModTime()
	racy := f.lastCheck.Sub(mtime) < racyWindow
	changed := f.cached == nil || !mtime.Equal(f.lastMtime) || racy

	if !changed {
		return f.cached, nil
	}

	data, err := readFile(f.fs, f.path)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Decode(data)
	if err != nil {
		return nil, err
	}

	f.cached = cfg
	f.lastMtime = mtime
	f.lastCheck = time.Now()
	return cfg, nil
}

func readFile(fs billy.Filesystem, path string) ([]byte, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(file); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Query is the entry's filter shape for GetEntries.
type Query struct {
	Section       string
	Subsection    string
	HasSubsection bool
	Name          string
}

// GetEntries returns the entries matching q.
func (f *File) GetEntries(ctx context.Context, q Query) ([]config.Entry, error) {
	var out []config.Entry
	var outerErr error
	err := actor.Do(ctx, f.mb, func() {
		cfg, rerr := f.read()
		if rerr != nil {
			outerErr = rerr
			return
		}
		out = cfg.Get(q.Section, q.Subsection, q.HasSubsection, q.Name)
	})
	if err != nil {
		return nil, err
	}
	return out, outerErr
}

// MutateOptions controls AddEntries semantics.
type MutateOptions struct {
	Add        bool
	ReplaceAll bool
}

// Incoming is one entry to add or replace.
type Incoming struct {
	Section    string
	Subsection string
	Name       string
	Value      string
}

// AddEntries applies entries to the file under opts' semantics, writing
// the result atomically. Add and ReplaceAll are mutually exclusive.
func (f *File) AddEntries(ctx context.Context, entries []Incoming, opts MutateOptions) error {
	if opts.Add && opts.ReplaceAll {
		return errors.New("invalid_format: add and replace_all are mutually exclusive")
	}

	var outerErr error
	err := actor.Do(ctx, f.mb, func() {
		cfg, rerr := f.read()
		if rerr != nil {
			outerErr = rerr
			return
		}

		next := cfg.Clone()

		for _, in := range entries {
			if err := applyMutation(next, in, opts); err != nil {
				outerErr = err
				return
			}
		}

		data := config.Encode(next)
		if werr := atomicfile.Write(f.fs, f.path, data); werr != nil {
			outerErr = werr
			return
		}
		f.cached = next
		if info, serr := f.fs.Stat(f.path); serr == nil {
			f.lastMtime = info.ModTime()
		}
		f.lastCheck = time.Now()
	})
	if err != nil {
		return err
	}
	return outerErr
}

func applyMutation(cfg *config.Config, in Incoming, opts MutateOptions) error {
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
			return ErrReplacingMultivar
		}
	}
}
