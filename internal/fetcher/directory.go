// Package fetcher enumerates the crash corpus. Crash files are opaque: only
// judges ever read their contents.
package fetcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/signalnine/crashrank/internal/crash"
)

var ErrNotFound = errors.New("crash not found")

// Directory reads a crash corpus from a directory tree, one crash per file
// matching the pattern. The crash id combines the parent directory name and
// the file stem so same-named files in different directories stay distinct.
type Directory struct {
	dir     string
	crashes map[string]crash.Crash
	ids     []string
}

func NewDirectory(dir, pattern string) (*Directory, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("crashes directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("crashes path is not a directory: %s", dir)
	}
	if pattern == "" {
		pattern = "*"
	}

	root, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving crashes directory: %w", err)
	}

	d := &Directory{dir: dir, crashes: map[string]crash.Crash{}}
	err = filepath.WalkDir(dir, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		ok, err := path.Match(pattern, entry.Name())
		if err != nil {
			return fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if !ok {
			return nil
		}

		resolved, err := filepath.EvalSymlinks(p)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", p, err)
		}
		// Symlinks pointing outside the corpus are not crashes.
		if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
			return nil
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", p, err)
		}

		stem := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		id := filepath.Base(filepath.Dir(abs)) + "_" + stem
		c, err := crash.New(id, abs)
		if err != nil {
			return err
		}
		d.crashes[id] = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning crashes directory: %w", err)
	}

	d.ids = make([]string, 0, len(d.crashes))
	for id := range d.crashes {
		d.ids = append(d.ids, id)
	}
	sort.Strings(d.ids)
	return d, nil
}

// List returns all crashes in a stable (id-sorted) order.
func (d *Directory) List() []crash.Crash {
	out := make([]crash.Crash, 0, len(d.ids))
	for _, id := range d.ids {
		out = append(out, d.crashes[id])
	}
	return out
}

func (d *Directory) Get(id string) (crash.Crash, error) {
	c, ok := d.crashes[id]
	if !ok {
		return crash.Crash{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c, nil
}

func (d *Directory) Count() int {
	return len(d.crashes)
}
