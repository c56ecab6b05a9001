// Package corpus enumerates and deduplicates saved fuzz inputs. Fuzzing
// engines name corpus files after a content hash, but merged corpora and
// crash-artifact directories routinely hold byte-identical inputs under
// different names; replaying those again tells us nothing.
package corpus

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/zeebo/blake3"
)

// Walk expands the given paths into a sorted list of regular files. A
// directory contributes every regular file beneath it; dotfiles (corpus
// metadata, editor droppings) are skipped. A plain file path is taken as-is.
func Walk(paths []string) ([]string, error) {
	var files []string

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("corpus: %w", err)
		}

		if !info.IsDir() {
			files = append(files, path)
			continue
		}

		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			name := d.Name()
			if d.IsDir() {
				if p != path && len(name) > 0 && name[0] == '.' {
					return filepath.SkipDir
				}
				return nil
			}
			if len(name) > 0 && name[0] == '.' {
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			files = append(files, p)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("corpus: walk %s: %w", path, err)
		}
	}

	sort.Strings(files)
	return files, nil
}

// Set tracks input contents already seen, keyed by BLAKE3 digest.
// Safe for concurrent use.
type Set struct {
	mu   sync.Mutex
	seen map[[32]byte]struct{}
}

// NewSet creates an empty Set.
func NewSet() *Set {
	return &Set{seen: make(map[[32]byte]struct{})}
}

// First reports whether data is being seen for the first time, recording it
// either way.
func (s *Set) First(data []byte) bool {
	sum := blake3.Sum256(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[sum]; ok {
		return false
	}
	s.seen[sum] = struct{}{}
	return true
}

// Len returns how many distinct inputs have been recorded.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
