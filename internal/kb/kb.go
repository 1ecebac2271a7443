// Package kb defines the contract the sync engine needs from a remote knowledge base.
// The transport behind it is opaque: kbsdk speaks HTTP, Memory keeps everything in-process.
package kb

import (
	"context"
	"errors"
	"time"

	"github.com/eric-downes/claude-sync/internal/utils"
)

var (
	ErrNotFound     = errors.New("kb: not found")
	ErrUnauthorized = errors.New("kb: unauthorized")
)

type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	URL         string    `json:"url,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// KnowledgeFile is a single document stored in a project's knowledge base.
// Content may be empty in listings; GetKnowledgeFile always returns it.
type KnowledgeFile struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	Content    []byte    `json:"content,omitempty"`
	Size       int64     `json:"size"`
	Hash       string    `json:"hash,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// ContentHash returns the SHA-256 of the file content, falling back to the
// server-reported hash when the content was not included.
func (f *KnowledgeFile) ContentHash() string {
	if len(f.Content) > 0 || (f.Size == 0 && f.Hash == "") {
		return utils.BytesHash(f.Content)
	}
	return f.Hash
}

// Client is everything the engine calls on the remote side.
type Client interface {
	GetCurrentUser(ctx context.Context) (*User, error)
	ListProjects(ctx context.Context) ([]*Project, error)
	GetProject(ctx context.Context, projectID string) (*Project, error)
	ListKnowledgeFiles(ctx context.Context, projectID string) ([]*KnowledgeFile, error)
	GetKnowledgeFile(ctx context.Context, projectID, fileID string) (*KnowledgeFile, error)
	UploadKnowledgeFile(ctx context.Context, projectID, path string, content []byte) (*KnowledgeFile, error)
	DeleteKnowledgeFile(ctx context.Context, projectID, fileID string) error
}
