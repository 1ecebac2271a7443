package state

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/eric-downes/claude-sync/internal/utils"
	"github.com/goccy/go-json"
)

const (
	fileFormatVersion = 1
	timestampFormat   = "20060102150405"
)

type fileDocument struct {
	Version   int            `json:"version"`
	Project   string         `json:"project"`
	UpdatedAt time.Time      `json:"updated_at"`
	Entries   []*Entry       `json:"entries"`
	Backups   []*BackupEntry `json:"backups"`
}

// FileStore keeps one JSON document per project and rewrites it atomically on every mutation.
type FileStore struct {
	dir string

	mu      sync.Mutex
	loaded  map[string]bool
	entries map[string]*Entry       // project:path
	backups map[string]*BackupEntry // project:id
}

var _ Store = (*FileStore)(nil)

func NewFileStore(dir string) (*FileStore, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create state directory %s: %w", dir, err)
	}
	return &FileStore{
		dir:     dir,
		loaded:  make(map[string]bool),
		entries: make(map[string]*Entry),
		backups: make(map[string]*BackupEntry),
	}, nil
}

// ProjectFile is where the state document for project lives
func (s *FileStore) ProjectFile(project string) string {
	return filepath.Join(s.dir, utils.SafeName(project)+".json")
}

func (s *FileStore) Get(project, path string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(project); err != nil {
		return nil, err
	}
	return s.entries[key(project, path)].Clone(), nil
}

func (s *FileStore) Save(entry *Entry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(entry.Project); err != nil {
		return err
	}

	k := key(entry.Project, entry.Path)
	prev, existed := s.entries[k]
	s.entries[k] = entry.Clone()

	if err := s.persist(entry.Project); err != nil {
		if existed {
			s.entries[k] = prev
		} else {
			delete(s.entries, k)
		}
		return err
	}
	return nil
}

func (s *FileStore) Delete(project, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(project); err != nil {
		return err
	}

	k := key(project, path)
	prev, existed := s.entries[k]
	if !existed {
		return nil
	}
	delete(s.entries, k)

	if err := s.persist(project); err != nil {
		s.entries[k] = prev
		return err
	}
	return nil
}

func (s *FileStore) List(project string) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(project); err != nil {
		return nil, err
	}

	var out []*Entry
	for _, e := range s.entries {
		if e.Project == project {
			out = append(out, e.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *Entry) int { return strings.Compare(a.Path, b.Path) })
	return out, nil
}

func (s *FileStore) GetBackup(project, id string) (*BackupEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(project); err != nil {
		return nil, err
	}
	b, ok := s.backups[key(project, id)]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (s *FileStore) SaveBackup(entry *BackupEntry) error {
	if err := validateBackup(entry); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(entry.Project); err != nil {
		return err
	}

	k := key(entry.Project, entry.ID)
	cp := *entry
	s.backups[k] = &cp

	if err := s.persist(entry.Project); err != nil {
		delete(s.backups, k)
		return err
	}
	return nil
}

func (s *FileStore) DeleteBackup(project, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(project); err != nil {
		return err
	}

	k := key(project, id)
	prev, ok := s.backups[k]
	if !ok {
		return nil
	}
	delete(s.backups, k)

	if err := s.persist(project); err != nil {
		s.backups[k] = prev
		return err
	}
	return nil
}

func (s *FileStore) ListBackups(project string) ([]*BackupEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(project); err != nil {
		return nil, err
	}
	return s.projectBackups(project), nil
}

func (s *FileStore) CleanupOldBackups(project string, retain int, pinned ...string) ([]*BackupEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(project); err != nil {
		return nil, err
	}

	expired := selectExpired(s.projectBackups(project), retain, pinned)
	if len(expired) == 0 {
		return nil, nil
	}

	removed := make(map[string]*BackupEntry, len(expired))
	for _, b := range expired {
		k := key(project, b.ID)
		removed[k] = s.backups[k]
		delete(s.backups, k)
	}

	if err := s.persist(project); err != nil {
		for k, b := range removed {
			s.backups[k] = b
		}
		return nil, err
	}
	return expired, nil
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) projectBackups(project string) []*BackupEntry {
	var out []*BackupEntry
	for _, b := range s.backups {
		if b.Project == project {
			cp := *b
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *BackupEntry) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// ensureLoaded reads the project document on first access. A missing document means
// nothing was synced yet; an unreadable one is moved aside and treated the same way.
func (s *FileStore) ensureLoaded(project string) error {
	if s.loaded[project] {
		return nil
	}

	path := s.ProjectFile(project)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.loaded[project] = true
		return nil
	case err != nil:
		return fmt.Errorf("read state file %s: %w", path, err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		aside := fmt.Sprintf("%s.corrupt.%s", path, time.Now().Format(timestampFormat))
		slog.Warn("state file unreadable, starting with empty state", "project", project, "path", path, "movedTo", aside, "error", err)
		if renameErr := os.Rename(path, aside); renameErr != nil {
			slog.Warn("state file could not be moved aside", "path", path, "error", renameErr)
		}
		s.loaded[project] = true
		return nil
	}

	for _, e := range doc.Entries {
		if e == nil || e.Path == "" {
			continue
		}
		e.Project = project
		s.entries[key(project, e.Path)] = e
	}
	for _, b := range doc.Backups {
		if b == nil || b.ID == "" {
			continue
		}
		b.Project = project
		s.backups[key(project, b.ID)] = b
	}

	s.loaded[project] = true
	slog.Debug("state loaded", "project", project, "entries", len(doc.Entries), "backups", len(doc.Backups))
	return nil
}

func (s *FileStore) persist(project string) error {
	doc := fileDocument{
		Version:   fileFormatVersion,
		Project:   project,
		UpdatedAt: time.Now().UTC(),
		Entries:   []*Entry{},
		Backups:   s.projectBackups(project),
	}
	for _, e := range s.entries {
		if e.Project == project {
			doc.Entries = append(doc.Entries, e)
		}
	}
	slices.SortFunc(doc.Entries, func(a, b *Entry) int { return strings.Compare(a.Path, b.Path) })
	if doc.Backups == nil {
		doc.Backups = []*BackupEntry{}
	}

	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state for %s: %w", project, err)
	}

	if err := utils.WriteFileAtomic(s.ProjectFile(project), data, ""); err != nil {
		return fmt.Errorf("write state for %s: %w", project, err)
	}
	return nil
}
