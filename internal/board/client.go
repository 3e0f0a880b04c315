package board

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hylla/nexus/internal/domain"
)

// defaultHTTPTimeout bounds one board API round trip.
const defaultHTTPTimeout = 10 * time.Second

// apiPrefix is the versioned REST mount point.
const apiPrefix = "/api/v1"

// Client talks to the nexus REST API as one actor.
type Client struct {
	baseURL string
	http    *http.Client
	actor   domain.Actor
}

// NewClient creates a new API client. A nil httpClient uses a default with a timeout.
func NewClient(baseURL string, actor domain.Actor, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    httpClient,
		actor:   actor,
	}
}

type taskResponse struct {
	ID              string     `json:"id"`
	ProjectID       string     `json:"project_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	AssigneeID      string     `json:"assignee_id"`
	Status          string     `json:"status"`
	LastBlockReason string     `json:"last_block_reason"`
	CreatedBy       string     `json:"created_by"`
	UpdatedBy       string     `json:"updated_by"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	DeletedAt       *time.Time `json:"deleted_at"`
}

type commentResponse struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type statusRequest struct {
	Status  string `json:"status"`
	Comment string `json:"comment,omitempty"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Hint    string `json:"hint"`
	} `json:"error"`
}

// TransitionStatus implements Transport over PATCH /tasks/{id}/status.
func (c *Client) TransitionStatus(ctx context.Context, taskID string, status domain.Status, reason string) (domain.Task, error) {
	var resp taskResponse
	err := c.do(ctx, http.MethodPatch, "/tasks/"+url.PathEscape(taskID)+"/status", nil, statusRequest{
		Status:  string(status),
		Comment: reason,
	}, &resp)
	if err != nil {
		return domain.Task{}, err
	}
	return resp.toDomain()
}

// ListBoard implements Source over GET /tasks.
func (c *Client) ListBoard(ctx context.Context, projectID string) ([]domain.Task, error) {
	var resp struct {
		Tasks []taskResponse `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodGet, "/tasks", url.Values{"project_id": {projectID}}, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.Task, 0, len(resp.Tasks))
	for _, item := range resp.Tasks {
		task, err := item.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, nil
}

// ListBlockReasons implements Source over GET /tasks/{id}/comments.
func (c *Client) ListBlockReasons(ctx context.Context, taskID string) ([]domain.Comment, error) {
	var resp struct {
		Comments []commentResponse `json:"comments"`
	}
	if err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(taskID)+"/comments", nil, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.Comment, 0, len(resp.Comments))
	for _, item := range resp.Comments {
		out = append(out, domain.Comment{
			ID:        item.ID,
			TaskID:    item.TaskID,
			AuthorID:  item.AuthorID,
			Body:      item.Body,
			CreatedAt: item.CreatedAt,
		})
	}
	return out, nil
}

func (r taskResponse) toDomain() (domain.Task, error) {
	status, err := domain.ParseStatus(r.Status)
	if err != nil {
		return domain.Task{}, fmt.Errorf("decode task %q: %w", r.ID, err)
	}
	return domain.Task{
		ID:              r.ID,
		ProjectID:       r.ProjectID,
		Title:           r.Title,
		Description:     r.Description,
		AssigneeID:      r.AssigneeID,
		Status:          status,
		CreatedBy:       r.CreatedBy,
		UpdatedBy:       r.UpdatedBy,
		LastBlockReason: r.LastBlockReason,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		DeletedAt:       r.DeletedAt,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	endpoint := c.baseURL + apiPrefix + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Actor-ID", c.actor.ID)
	req.Header.Set("X-Actor-Role", string(c.actor.Role))

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrNetwork, err)
	}
	return nil
}

// rejectCodes lists the error codes that are business rejections rather than failures.
var rejectCodes = map[string]domain.RejectCode{
	string(domain.RejectNotOwner):      domain.RejectNotOwner,
	string(domain.RejectMissingReason): domain.RejectMissingReason,
	string(domain.RejectNotFound):      domain.RejectNotFound,
	string(domain.RejectInvalidStatus): domain.RejectInvalidStatus,
	string(domain.RejectDenied):        domain.RejectDenied,
}

func decodeError(resp *http.Response) error {
	var errResp errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error.Code != "" {
		if code, ok := rejectCodes[errResp.Error.Code]; ok {
			return &RejectionError{Code: code, Message: errResp.Error.Message}
		}
		return fmt.Errorf("%s: %s", errResp.Error.Code, errResp.Error.Message)
	}
	return fmt.Errorf("api error: %s", resp.Status)
}
