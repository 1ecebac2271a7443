package kbsdk

import "github.com/eric-downes/claude-sync/internal/kb"

type ListProjectsResponse struct {
	Projects []*kb.Project `json:"projects"`
}

type ListFilesResponse struct {
	Files []*kb.KnowledgeFile `json:"files"`
}

type UploadFileRequest struct {
	Path    string `json:"path"`
	Content []byte `json:"content"`
}
