package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/dvloznov/ledger-sync/internal/domain"
)

// ErrProfileNotFound is returned when deleting an unknown profile.
var ErrProfileNotFound = errors.New("profile not found")

// Profile ids name working directories, so they are restricted to a safe alphabet.
var profileIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// File is the on-disk shape of the profiles file.
type File struct {
	DefaultCategories domain.Taxonomy      `yaml:"default_categories"`
	Profiles          []domain.SyncProfile `yaml:"profiles"`
}

// Validate checks structural problems only. Missing credentials are reported
// when an execution runs.
func (f File) Validate() error {
	var problems []string
	seen := make(map[string]bool)
	for i, p := range f.Profiles {
		if err := validateProfile(p); err != nil {
			problems = append(problems, fmt.Sprintf("profiles[%d]: %v", i, err))
			continue
		}
		if seen[p.ID] {
			problems = append(problems, fmt.Sprintf("profiles[%d]: duplicate id %q", i, p.ID))
		}
		seen[p.ID] = true
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func validateProfile(p domain.SyncProfile) error {
	if !profileIDPattern.MatchString(p.ID) {
		return fmt.Errorf("invalid id %q (want lowercase letters, digits, '-' or '_')", p.ID)
	}
	if p.Schedule != "" {
		if _, err := cron.ParseStandard(p.Schedule); err != nil {
			return fmt.Errorf("profile %s: invalid schedule %q: %w", p.ID, p.Schedule, err)
		}
	}
	return nil
}

// FileStore keeps the profiles file in memory. Readers always get deep
// copies, so a running execution never observes a later edit.
type FileStore struct {
	path string

	mu   sync.RWMutex
	file File
}

// NewFileStore creates an empty store bound to path. Call Load to read it.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// OpenFileStore creates a store and loads path. A missing file is an empty
// configuration.
func OpenFileStore(path string) (*FileStore, error) {
	s := NewFileStore(path)
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the file the store reads and writes.
func (s *FileStore) Path() string { return s.path }

// Load re-reads the file. On error the previous contents are kept.
func (s *FileStore) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("Load: reading %s: %w", s.path, err)
	}

	var f File
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("Load: parsing %s: %w", s.path, err)
		}
	}
	if err := f.Validate(); err != nil {
		return fmt.Errorf("Load: %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.file = f
	s.mu.Unlock()
	return nil
}

// Profiles returns copies of every profile, in file order.
func (s *FileStore) Profiles() []domain.SyncProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.SyncProfile, len(s.file.Profiles))
	for i, p := range s.file.Profiles {
		out[i] = p.Clone()
	}
	return out
}

// Profile returns a copy of one profile.
func (s *FileStore) Profile(id string) (domain.SyncProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.file.Profiles {
		if p.ID == id {
			return p.Clone(), true
		}
	}
	return domain.SyncProfile{}, false
}

// DefaultTaxonomy returns a copy of the process-wide category taxonomy.
func (s *FileStore) DefaultTaxonomy() domain.Taxonomy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.file.DefaultCategories.Clone()
}

// SaveProfile adds or replaces a profile and writes the file.
func (s *FileStore) SaveProfile(p domain.SyncProfile) error {
	if err := validateProfile(p); err != nil {
		return fmt.Errorf("SaveProfile: %w", err)
	}

	return s.update(func(f *File) error {
		for i := range f.Profiles {
			if f.Profiles[i].ID == p.ID {
				f.Profiles[i] = p.Clone()
				return nil
			}
		}
		f.Profiles = append(f.Profiles, p.Clone())
		return nil
	})
}

// DeleteProfile removes a profile and writes the file.
func (s *FileStore) DeleteProfile(id string) error {
	return s.update(func(f *File) error {
		for i := range f.Profiles {
			if f.Profiles[i].ID == id {
				f.Profiles = append(f.Profiles[:i], f.Profiles[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("DeleteProfile: %w: %s", ErrProfileNotFound, id)
	})
}

// SetDefaultTaxonomy replaces the default taxonomy and writes the file.
func (s *FileStore) SetDefaultTaxonomy(t domain.Taxonomy) error {
	return s.update(func(f *File) error {
		f.DefaultCategories = t.Clone()
		return nil
	})
}

// update applies fn to a copy of the file, writes it, then swaps it in.
// Saves are serialised by the write lock.
func (s *FileStore) update(fn func(*File) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := File{DefaultCategories: s.file.DefaultCategories.Clone()}
	for _, p := range s.file.Profiles {
		next.Profiles = append(next.Profiles, p.Clone())
	}
	if err := fn(&next); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	if err := writeFile(s.path, next); err != nil {
		return err
	}
	s.file = next
	return nil
}

// writeFile replaces path atomically. The file holds credentials, so it is
// private to the owner.
func writeFile(path string, f File) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("writeFile: encoding: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("writeFile: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".profiles-*.yaml")
	if err != nil {
		return fmt.Errorf("writeFile: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writeFile: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("writeFile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writeFile: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("writeFile: %w", err)
	}
	return nil
}
