package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"meetcap/internal/ports"
)

const (
	DefaultBaseURL = "http://localhost:8000/api"
	DefaultTimeout = 30 * time.Second

	headerRequestID = "X-Request-ID"
)

// Config controls the backend connection.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// APIError is a non-2xx backend response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned HTTP %d: %s", e.StatusCode, e.Message)
}

// Client implements ports.SessionBackend over the recording HTTP API.
type Client struct {
	http   *resty.Client
	logger zerolog.Logger
}

func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	http := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			if req.Header.Get(headerRequestID) == "" {
				req.SetHeader(headerRequestID, uuid.NewString())
			}
			return nil
		})
	if cfg.Token != "" {
		http.SetAuthToken(cfg.Token)
	}

	return &Client{
		http:   http,
		logger: logger.With().Str("component", "backend").Logger(),
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Detail  json.RawMessage `json:"detail"`
	Data    json.RawMessage `json:"data"`
}

// Meeting is the server-side view of a session.
type Meeting struct {
	ID           json.Number `json:"id"`
	Title        string      `json:"title"`
	Status       string      `json:"status"`
	DriveFileURL *string     `json:"drive_file_url"`
	CreatedAt    string      `json:"created_at"`
}

type meetingData struct {
	Meeting Meeting `json:"meeting"`
}

type chunkData struct {
	ChunkID   json.Number `json:"chunk_id"`
	Filename  string      `json:"filename"`
	Status    string      `json:"status"`
	MeetingID json.Number `json:"meeting_id"`
}

type endData struct {
	MeetingID json.Number `json:"meeting_id"`
	Status    string      `json:"status"`
}

// StartSession registers a new session and returns its server id.
func (c *Client) StartSession(ctx context.Context, title string) (string, error) {
	var data meetingData
	if err := c.do(ctx, c.http.R().SetBody(map[string]string{"title": title}), "POST", "/recording/start", &data); err != nil {
		return "", fmt.Errorf("failed to register session: %w", err)
	}

	id := data.Meeting.ID.String()
	if id == "" {
		return "", errors.New("failed to register session: response carried no session id")
	}
	c.logger.Info().Str("session_id", id).Str("title", title).Msg("Session registered")
	return id, nil
}

// UploadChunk sends one sealed segment as multipart form data.
func (c *Client) UploadChunk(ctx context.Context, chunk ports.ChunkUpload) (string, error) {
	req := c.http.R().
		SetMultipartField("audio_file", chunk.FileName, chunk.MimeType, bytes.NewReader(chunk.Data)).
		SetMultipartFormData(map[string]string{
			"meeting_id":   chunk.SessionID,
			"chunk_number": strconv.Itoa(chunk.Sequence),
		})

	var data chunkData
	if err := c.do(ctx, req, "POST", "/recording/chunk", &data); err != nil {
		return "", fmt.Errorf("failed to upload chunk %d: %w", chunk.Sequence, err)
	}
	return data.ChunkID.String(), nil
}

// EndSession marks the session terminal server-side.
func (c *Client) EndSession(ctx context.Context, sessionID string) (string, error) {
	body := map[string]any{"meeting_id": sessionIDValue(sessionID)}

	var data endData
	if err := c.do(ctx, c.http.R().SetBody(body), "POST", "/recording/end", &data); err != nil {
		return "", fmt.Errorf("failed to end session %s: %w", sessionID, err)
	}
	c.logger.Info().Str("session_id", sessionID).Str("status", data.Status).Msg("Session ended")
	return data.Status, nil
}

// SessionStatus fetches the server view of a session.
func (c *Client) SessionStatus(ctx context.Context, sessionID string) (Meeting, error) {
	var data meetingData
	req := c.http.R().SetPathParam("id", sessionID)
	if err := c.do(ctx, req, "GET", "/recording/status/{id}", &data); err != nil {
		return Meeting{}, fmt.Errorf("failed to fetch session %s: %w", sessionID, err)
	}
	return data.Meeting, nil
}

func (c *Client) do(ctx context.Context, req *resty.Request, method string, path string, out any) error {
	var env envelope
	resp, err := req.SetContext(ctx).SetResult(&env).SetError(&env).Execute(method, path)
	if err != nil {
		return err
	}

	if resp.IsError() {
		return &APIError{StatusCode: resp.StatusCode(), Message: env.errorMessage()}
	}
	if !env.Success && len(env.Data) == 0 {
		return &APIError{StatusCode: resp.StatusCode(), Message: env.errorMessage()}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	decoder := json.NewDecoder(bytes.NewReader(env.Data))
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func (e envelope) errorMessage() string {
	if e.Message != "" {
		return e.Message
	}
	if len(e.Detail) == 0 {
		return ""
	}
	var detail string
	if err := json.Unmarshal(e.Detail, &detail); err == nil {
		return detail
	}
	return string(e.Detail)
}

// sessionIDValue sends numeric ids as JSON numbers, which the server expects.
func sessionIDValue(sessionID string) any {
	if n, err := strconv.ParseInt(sessionID, 10, 64); err == nil {
		return n
	}
	return sessionID
}
