package kb

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/eric-downes/claude-sync/internal/utils"
)

// Memory is an in-process knowledge base. Uploads always mint a new file id,
// mirroring remotes that have no update-in-place.
type Memory struct {
	mu       sync.Mutex
	user     *User
	projects map[string]*Project
	files    map[string]map[string]*KnowledgeFile // project -> file id -> file
	seq      int

	// Now is the clock used for CreatedAt/ModifiedAt
	Now func() time.Time
	// Fail, when set, is consulted before every call; a non-nil error is returned as-is
	Fail func(op, projectID, key string) error
	// Transform, when set, rewrites uploaded content before it is stored
	Transform func(path string, content []byte) []byte
	// Calls records every mutating call as "op:path"
	Calls []string
}

var _ Client = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		user:     &User{ID: "user-1", Email: "user@example.com", Name: "Local User"},
		projects: make(map[string]*Project),
		files:    make(map[string]map[string]*KnowledgeFile),
		Now:      time.Now,
	}
}

// AddProject registers a project and returns it
func (m *Memory) AddProject(id, name string) *Project {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := &Project{ID: id, Name: name, UpdatedAt: m.Now()}
	m.projects[id] = p
	if m.files[id] == nil {
		m.files[id] = make(map[string]*KnowledgeFile)
	}
	return p
}

// Put stores a file directly, bypassing Fail and Transform. Used to seed remote state.
func (m *Memory) Put(projectID, path string, content []byte, modified time.Time) *KnowledgeFile {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, f := range m.files[projectID] {
		if f.Path == path {
			delete(m.files[projectID], id)
		}
	}
	return m.storeLocked(projectID, path, content, modified)
}

// Remove deletes a file by path directly, bypassing Fail.
func (m *Memory) Remove(projectID, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, f := range m.files[projectID] {
		if f.Path == path {
			delete(m.files[projectID], id)
		}
	}
}

// Content returns the stored content for path, if any
func (m *Memory) Content(projectID, path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, f := range m.files[projectID] {
		if f.Path == path {
			return slices.Clone(f.Content), true
		}
	}
	return nil, false
}

// FileCount is the number of files stored for a project
func (m *Memory) FileCount(projectID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files[projectID])
}

// MutationCount is the number of mutating calls seen so far
func (m *Memory) MutationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

func (m *Memory) GetCurrentUser(ctx context.Context) (*User, error) {
	if err := m.check(ctx, "me", "", ""); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u := *m.user
	return &u, nil
}

func (m *Memory) ListProjects(ctx context.Context) ([]*Project, error) {
	if err := m.check(ctx, "list_projects", "", ""); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Project, 0, len(m.projects))
	for _, p := range m.projects {
		cp := *p
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *Project) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (m *Memory) GetProject(ctx context.Context, projectID string) (*Project, error) {
	if err := m.check(ctx, "get_project", projectID, ""); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.projects[projectID]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) ListKnowledgeFiles(ctx context.Context, projectID string) ([]*KnowledgeFile, error) {
	if err := m.check(ctx, "list_files", projectID, ""); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	files, ok := m.files[projectID]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}

	out := make([]*KnowledgeFile, 0, len(files))
	for _, f := range files {
		// listings carry metadata and hash, not content
		cp := *f
		cp.Content = nil
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *KnowledgeFile) int { return strings.Compare(a.Path, b.Path) })
	return out, nil
}

func (m *Memory) GetKnowledgeFile(ctx context.Context, projectID, fileID string) (*KnowledgeFile, error) {
	if err := m.check(ctx, "get_file", projectID, fileID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[projectID][fileID]
	if !ok {
		return nil, fmt.Errorf("file %s: %w", fileID, ErrNotFound)
	}
	cp := *f
	cp.Content = slices.Clone(f.Content)
	return &cp, nil
}

func (m *Memory) UploadKnowledgeFile(ctx context.Context, projectID, path string, content []byte) (*KnowledgeFile, error) {
	if err := m.check(ctx, "upload", projectID, path); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.projects[projectID]; !ok {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	if m.Transform != nil {
		content = m.Transform(path, content)
	}

	m.Calls = append(m.Calls, "upload:"+path)
	f := m.storeLocked(projectID, path, content, m.Now())
	cp := *f
	cp.Content = nil
	return &cp, nil
}

func (m *Memory) DeleteKnowledgeFile(ctx context.Context, projectID, fileID string) error {
	if err := m.check(ctx, "delete", projectID, fileID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[projectID][fileID]
	if !ok {
		return fmt.Errorf("file %s: %w", fileID, ErrNotFound)
	}
	m.Calls = append(m.Calls, "delete:"+f.Path)
	delete(m.files[projectID], fileID)
	return nil
}

func (m *Memory) check(ctx context.Context, op, projectID, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.Fail != nil {
		return m.Fail(op, projectID, key)
	}
	return nil
}

func (m *Memory) storeLocked(projectID, path string, content []byte, modified time.Time) *KnowledgeFile {
	if m.files[projectID] == nil {
		m.files[projectID] = make(map[string]*KnowledgeFile)
	}
	m.seq++
	f := &KnowledgeFile{
		ID:         fmt.Sprintf("file-%04d", m.seq),
		Path:       path,
		Content:    slices.Clone(content),
		Size:       int64(len(content)),
		Hash:       utils.BytesHash(content),
		CreatedAt:  modified,
		ModifiedAt: modified,
	}
	m.files[projectID][f.ID] = f
	return f
}
