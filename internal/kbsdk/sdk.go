// Package kbsdk is an HTTP implementation of kb.Client.
package kbsdk

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/eric-downes/claude-sync/internal/kb"
	"github.com/eric-downes/claude-sync/internal/utils"
	"github.com/eric-downes/claude-sync/internal/version"
	"github.com/imroc/req/v3"
)

const (
	HeaderVersion  = "X-Sync-Version"
	HeaderDeviceID = "X-Sync-Device-Id"

	defaultTimeout    = 30 * time.Second
	defaultRetryCount = 3
)

const (
	v1Me      = "/api/v1/me"
	v1Project = "/api/v1/projects/{projectId}"
	v1Files   = "/api/v1/projects/{projectId}/files"
	v1File    = "/api/v1/projects/{projectId}/files/{fileId}"
	v1Listing = "/api/v1/projects"
)

var UserAgent = fmt.Sprintf("claude-sync/%s (%s; %s; %s)", version.Version, version.Revision, runtime.GOOS, runtime.GOARCH)

type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	RetryCount int
}

// Client talks to the knowledge base REST API
type Client struct {
	http *req.Client
}

var _ kb.Client = (*Client)(nil)

func New(cfg *Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrNoServerURL
	}
	if cfg.Token == "" {
		return nil, ErrNoToken
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := cfg.RetryCount
	if retries < 0 {
		retries = 0
	} else if retries == 0 {
		retries = defaultRetryCount
	}

	httpClient := req.C().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetUserAgent(UserAgent).
		SetCommonHeader(HeaderVersion, version.Version).
		SetCommonBearerAuthToken(cfg.Token).
		SetCommonErrorResult(&APIError{}).
		SetCommonRetryCount(retries).
		SetCommonRetryBackoffInterval(500*time.Millisecond, 5*time.Second).
		SetCommonRetryCondition(retryable).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)

	if utils.HWID != "" {
		httpClient.SetCommonHeader(HeaderDeviceID, utils.HWID)
	}

	return &Client{http: httpClient}, nil
}

// retryable only retries reads; an upload retried after a lost response could create a duplicate
func retryable(resp *req.Response, err error) bool {
	if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
		return false
	}
	if err != nil {
		return true
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
}

func (c *Client) GetCurrentUser(ctx context.Context) (*kb.User, error) {
	var user kb.User
	res, err := c.http.R().
		SetContext(ctx).
		SetSuccessResult(&user).
		Get(v1Me)
	if err := handleAPIError(res, err, "get current user"); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) ListProjects(ctx context.Context) ([]*kb.Project, error) {
	var resp ListProjectsResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetSuccessResult(&resp).
		Get(v1Listing)
	if err := handleAPIError(res, err, "list projects"); err != nil {
		return nil, err
	}
	return resp.Projects, nil
}

func (c *Client) GetProject(ctx context.Context, projectID string) (*kb.Project, error) {
	var project kb.Project
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("projectId", projectID).
		SetSuccessResult(&project).
		Get(v1Project)
	if err := handleAPIError(res, err, "get project"); err != nil {
		return nil, err
	}
	return &project, nil
}

func (c *Client) ListKnowledgeFiles(ctx context.Context, projectID string) ([]*kb.KnowledgeFile, error) {
	var resp ListFilesResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("projectId", projectID).
		SetSuccessResult(&resp).
		Get(v1Files)
	if err := handleAPIError(res, err, "list files"); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

func (c *Client) GetKnowledgeFile(ctx context.Context, projectID, fileID string) (*kb.KnowledgeFile, error) {
	var file kb.KnowledgeFile
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"projectId": projectID, "fileId": fileID}).
		SetSuccessResult(&file).
		Get(v1File)
	if err := handleAPIError(res, err, "get file"); err != nil {
		return nil, err
	}
	return &file, nil
}

func (c *Client) UploadKnowledgeFile(ctx context.Context, projectID, path string, content []byte) (*kb.KnowledgeFile, error) {
	var file kb.KnowledgeFile
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("projectId", projectID).
		SetBody(&UploadFileRequest{Path: path, Content: content}).
		SetSuccessResult(&file).
		Post(v1Files)
	if err := handleAPIError(res, err, "upload file"); err != nil {
		return nil, err
	}
	return &file, nil
}

func (c *Client) DeleteKnowledgeFile(ctx context.Context, projectID, fileID string) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"projectId": projectID, "fileId": fileID}).
		Delete(v1File)
	return handleAPIError(res, err, "delete file")
}
