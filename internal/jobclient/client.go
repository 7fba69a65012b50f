package jobclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MimeLyc/subtitle-studio/pkg/log"
)

const maxErrorBody = 64 << 10

// Client talks to the job server. It is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("server url must be absolute: %q", baseURL)
	}
	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// UploadFile opens path and submits it. Empty or missing files fail
// validation without touching the network.
func (c *Client) UploadFile(ctx context.Context, path, lang string) (string, error) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return "", NewValidationError("Please select a file to upload")
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	return c.Upload(ctx, UploadRequest{
		FileName: filepath.Base(path),
		Content:  f,
		Size:     info.Size(),
		Language: lang,
	})
}

// Upload posts a multipart form with "file" and "language" to /upload and
// returns the server's file id.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(mw, req))
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("upload"), pr)
	if err != nil {
		pr.Close()
		return "", err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	var resp struct {
		FileID string `json:"file_id"`
	}
	if err := c.do(httpReq, &resp); err != nil {
		pr.Close()
		return "", err
	}
	if resp.FileID == "" {
		return "", &APIError{StatusCode: http.StatusOK, Message: "server returned no file id"}
	}
	log.Debug("Uploaded %s as %s", req.FileName, resp.FileID)
	return resp.FileID, nil
}

func writeUploadForm(mw *multipart.Writer, req UploadRequest) error {
	part, err := mw.CreateFormFile("file", req.FileName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, req.Content); err != nil {
		return err
	}
	if err := mw.WriteField("language", req.Language); err != nil {
		return err
	}
	return mw.Close()
}

// Translate posts a JSON body to /translate and returns the translation id.
func (c *Client) Translate(ctx context.Context, req TranslationRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("translate"), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var resp struct {
		TranslationID string `json:"translation_id"`
	}
	if err := c.do(httpReq, &resp); err != nil {
		return "", err
	}
	if resp.TranslationID == "" {
		return "", &APIError{StatusCode: http.StatusOK, Message: "server returned no translation id"}
	}
	return resp.TranslationID, nil
}

// Status issues one GET /status/{id}. No caching.
func (c *Client) Status(ctx context.Context, id string) (Status, error) {
	if strings.TrimSpace(id) == "" {
		return Status{}, NewValidationError("No job to check")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("status", id), nil)
	if err != nil {
		return Status{}, err
	}
	var st Status
	if err := c.do(httpReq, &st); err != nil {
		return Status{}, err
	}
	return st, nil
}

// DownloadPath is the server-relative link for a finished artifact.
func DownloadPath(id string) string {
	return "/download/" + url.PathEscape(id)
}

// DownloadURL is DownloadPath resolved against the server base URL.
func (c *Client) DownloadURL(id string) string {
	return c.endpoint("download", id)
}

// Download streams the artifact for id into w.
func (c *Client) Download(ctx context.Context, id string, w io.Writer) (int64, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.DownloadURL(id), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, decodeError(resp)
	}
	return io.Copy(w, resp.Body)
}

func (c *Client) endpoint(segments ...string) string {
	u := *c.baseURL
	escaped := make([]string, 0, len(segments))
	for _, s := range segments {
		escaped = append(escaped, url.PathEscape(s))
	}
	u.RawPath = strings.TrimRight(c.baseURL.EscapedPath(), "/") + "/" + strings.Join(escaped, "/")
	u.Path, _ = url.PathUnescape(u.RawPath)
	return u.String()
}

// do sends req and decodes a 2xx JSON body into out. Error bodies follow the
// {"error": "..."} contract with a generic fallback.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("Invalid server response (%d)", resp.StatusCode)}
	}
	if envelope.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: envelope.Error}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("Invalid server response (%d)", resp.StatusCode)}
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return genericServerError(resp.StatusCode)
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || strings.TrimSpace(body.Error) == "" {
		return genericServerError(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: body.Error}
}
