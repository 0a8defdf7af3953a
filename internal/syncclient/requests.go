package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Existence is the answer to a content existence check.
type Existence int

const (
	// ExistsUnknown means the check failed; it is not a negative answer.
	ExistsUnknown Existence = iota
	ExistsFalse
	ExistsTrue
)

// String returns the existence as text.
func (e Existence) String() string {
	switch e {
	case ExistsTrue:
		return "true"
	case ExistsFalse:
		return "false"
	default:
		return "unknown"
	}
}

// CheckExists asks the server whether an archive with hash is already
// catalogued. The path template has {hash} substituted. Any failure yields
// ExistsUnknown together with the cause.
func (c *Client) CheckExists(ctx context.Context, base, pathTemplate, hash string) (Existence, error) {
	base = NormalizeBaseURL(base)
	if base == "" || hash == "" {
		return ExistsUnknown, ErrUnavailable
	}
	if strings.TrimSpace(pathTemplate) == "" {
		pathTemplate = DefaultCheckPathTemplate
	}
	target := joinPath(base, strings.ReplaceAll(strings.TrimSpace(pathTemplate), "{hash}", hash))

	exists, err := do(ctx, c, "exists", c.timeouts.Default, func(ctx context.Context) (bool, error) {
		var body struct {
			Exists bool `json:"exists"`
		}
		if err := c.getJSON(ctx, "exists", target, &body); err != nil {
			return false, err
		}
		return body.Exists, nil
	})
	if err != nil {
		return ExistsUnknown, err
	}
	if exists {
		return ExistsTrue, nil
	}
	return ExistsFalse, nil
}

// Upload posts the archive at zipPath as multipart form data with a
// project_id field and a file part.
func (c *Client) Upload(ctx context.Context, base, pathTemplate, zipPath string, projectID int) error {
	base = NormalizeBaseURL(base)
	if base == "" || zipPath == "" || projectID <= 0 {
		return fmt.Errorf("failed to upload %s; %w", filepath.Base(zipPath), ErrUnavailable)
	}
	if strings.TrimSpace(pathTemplate) == "" {
		pathTemplate = DefaultUploadPathTemplate
	}
	target := joinPath(base, pathTemplate)

	data, err := os.ReadFile(zipPath)
	if err != nil {
		return fmt.Errorf("failed to read archive; %w", err)
	}

	body, contentType, err := multipartBody(filepath.Base(zipPath), data, projectID)
	if err != nil {
		return err
	}

	_, err = do(ctx, c, "upload", c.timeouts.Upload, func(ctx context.Context) (struct{}, error) {
		req, err := c.newRequest(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to create request; %w", err)
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to upload archive; %w", err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode != http.StatusOK {
			return struct{}{}, &StatusError{Op: "upload", Status: resp.StatusCode}
		}
		return struct{}{}, nil
	})
	return err
}

func multipartBody(fileName string, data []byte, projectID int) ([]byte, string, error) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	if err := mw.SetBoundary("----AssetSnapshotBoundary" + strings.ReplaceAll(uuid.NewString(), "-", "")); err != nil {
		return nil, "", fmt.Errorf("failed to set multipart boundary; %w", err)
	}

	if err := mw.WriteField("project_id", strconv.Itoa(projectID)); err != nil {
		return nil, "", fmt.Errorf("failed to write project_id field; %w", err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	header.Set("Content-Type", "application/zip")
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create file part; %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("failed to write file part; %w", err)
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body; %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

// ResolveProjectID maps a source path to a catalog project, asking the
// server to create it when missing. Only a positive numeric id is accepted.
func (c *Client) ResolveProjectID(ctx context.Context, base, sourcePath string) (int, error) {
	base = NormalizeBaseURL(base)
	if base == "" || sourcePath == "" {
		return 0, ErrUnavailable
	}
	target := base + "/projects/resolve?source_path=" + url.QueryEscape(sourcePath) + "&auto_create=1"

	return do(ctx, c, "resolve_project", c.timeouts.Default, func(ctx context.Context) (int, error) {
		var body struct {
			ProjectID *float64 `json:"project_id"`
		}
		if err := c.getJSON(ctx, "resolve_project", target, &body); err != nil {
			return 0, err
		}
		if body.ProjectID == nil || int(*body.ProjectID) <= 0 {
			return 0, fmt.Errorf("failed to resolve project for %s; %w", sourcePath, ErrUnavailable)
		}
		return int(*body.ProjectID), nil
	})
}

// Progress describes the position of an export within its batch.
type Progress struct {
	BatchID int64
	Current int
	Total   int
	Name    string
}

// Percent returns the rounded completion percentage, 0 for an empty batch.
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	return int(math.Round(float64(p.Current) / float64(p.Total) * 100))
}

type notifyBody struct {
	BatchID int64  `json:"batch_id"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Percent int    `json:"percent"`
	Name    string `json:"name"`
	Source  string `json:"source"`
}

// NotifyProgress posts a progress event without waiting for the response.
// Events beyond the configured rate are dropped. The returned channel is
// closed once the request has finished.
func (c *Client) NotifyProgress(base string, p Progress) <-chan struct{} {
	done := make(chan struct{})
	base = NormalizeBaseURL(base)
	if base == "" || !c.notify.Allow() {
		close(done)
		return done
	}

	payload, err := json.Marshal(notifyBody{
		BatchID: p.BatchID,
		Current: p.Current,
		Total:   p.Total,
		Percent: p.Percent(),
		Name:    p.Name,
		Source:  "plugin",
	})
	if err != nil {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		_, err := do(context.Background(), c, "notify", c.timeouts.Default, func(ctx context.Context) (struct{}, error) {
			req, err := c.newRequest(ctx, http.MethodPost, base+"/events/notify", bytes.NewReader(payload))
			if err != nil {
				return struct{}{}, err
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := c.httpClient.Do(req)
			if err != nil {
				return struct{}{}, err
			}
			defer resp.Body.Close()
			_, _ = io.Copy(io.Discard, resp.Body)
			return struct{}{}, nil
		})
		if err != nil {
			c.logger.Debug("progress notification failed", "name", p.Name, "error", err)
		}
	}()
	return done
}

// Download fetches snapshot id into destDir as <id>.zip and returns its path.
func (c *Client) Download(ctx context.Context, base string, id int, destDir string) (string, error) {
	base = NormalizeBaseURL(base)
	if base == "" {
		return "", ErrUnavailable
	}
	if id <= 0 {
		return "", fmt.Errorf("invalid snapshot id %d", id)
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create download directory; %w", err)
	}

	target := fmt.Sprintf("%s/download/%d.zip", base, id)
	dest := filepath.Join(destDir, fmt.Sprintf("%d.zip", id))

	return do(ctx, c, "download", c.timeouts.Download, func(ctx context.Context) (string, error) {
		req, err := c.newRequest(ctx, http.MethodGet, target, nil)
		if err != nil {
			return "", fmt.Errorf("failed to create request; %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("failed to download snapshot %d; %w", id, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return "", &StatusError{Op: "download", Status: resp.StatusCode}
		}

		tmp, err := os.CreateTemp(destDir, ".download-*.zip.tmp")
		if err != nil {
			return "", fmt.Errorf("failed to create temp file; %w", err)
		}
		tmpName := tmp.Name()
		defer os.Remove(tmpName)

		n, err := io.Copy(tmp, resp.Body)
		if closeErr := tmp.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return "", fmt.Errorf("failed to write snapshot %d; %w", id, err)
		}
		if n == 0 {
			return "", fmt.Errorf("snapshot %d is empty; %w", id, ErrUnavailable)
		}

		if err := os.Rename(tmpName, dest); err != nil {
			return "", fmt.Errorf("failed to move snapshot into place; %w", err)
		}
		return dest, nil
	})
}

// getJSON performs a GET and decodes a 200 response into out.
func (c *Client) getJSON(ctx context.Context, op, target string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request; %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to catalog server; %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Op: op, Status: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse %s response; %w", op, err)
	}
	return nil
}

// IsTimeout reports whether err came from a request timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
