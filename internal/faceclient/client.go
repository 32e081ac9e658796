// Package faceclient talks to the external face recognition provider.
// The provider is an opaque cloud API: it holds one template per enrolled
// person and answers identification (1:N), verification (1:1) and enrollment
// calls. Confidence scores are returned as-is; thresholds are the caller's
// business.
package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Sentinel errors for provider-side faults. Callers decide whether a fault is
// fatal (enrollment, identity resolution) or downgraded to an unverified
// result (check-in/check-out).
var (
	ErrRecognitionFailed = errors.New("face recognition failed")
	ErrEnrollmentFailed  = errors.New("face enrollment failed")
)

// Candidate is one identification match returned by the provider.
type Candidate struct {
	Name        string  `json:"name"`
	Probability float64 `json:"probability"`
	TemplateID  string  `json:"uuid"`
}

// BestCandidate returns the candidate with the strictly highest probability.
// On a tie the first one encountered wins. ok is false for an empty list.
func BestCandidate(candidates []Candidate) (best Candidate, ok bool) {
	for i, c := range candidates {
		if i == 0 || c.Probability > best.Probability {
			best = c
		}
	}
	return best, len(candidates) > 0
}

// Client calls the face recognition API. The embedded http.Client timeout
// bounds every provider round trip; expiry surfaces as ErrRecognitionFailed
// or ErrEnrollmentFailed like any other provider fault.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// New creates a client with the given request timeout.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Identify runs a 1:N search of the photo against all enrolled templates and
// returns zero or more candidates. An empty list is not an error.
func (c *Client) Identify(ctx context.Context, photoPath string) ([]Candidate, error) {
	var out []Candidate
	if err := c.postPhotoForm(ctx, "/photo/search", nil, photoPath, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecognitionFailed, err)
	}
	return out, nil
}

// Verify confirms the photo against one enrolled template.
func (c *Client) Verify(ctx context.Context, templateID, photoPath string) (bool, error) {
	var out struct {
		Verified    bool    `json:"verified"`
		Probability float64 `json:"probability"`
	}
	if err := c.postPhotoRaw(ctx, "/person/"+templateID+"/verify", photoPath, &out); err != nil {
		return false, fmt.Errorf("%w: %v", ErrRecognitionFailed, err)
	}
	return out.Verified, nil
}

// Enroll creates a new template labelled with name from the photo and returns
// the provider's opaque template id.
func (c *Client) Enroll(ctx context.Context, name, photoPath string) (string, error) {
	var out struct {
		UUID string `json:"uuid"`
	}
	fields := map[string]string{"name": name}
	if err := c.postPhotoForm(ctx, "/person", fields, photoPath, &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEnrollmentFailed, err)
	}
	if out.UUID == "" {
		return "", fmt.Errorf("%w: response missing template id", ErrEnrollmentFailed)
	}
	return out.UUID, nil
}

// AddSample augments an existing template with another photo.
func (c *Client) AddSample(ctx context.Context, templateID, photoPath string) error {
	if err := c.postPhotoRaw(ctx, "/person/"+templateID, photoPath, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrEnrollmentFailed, err)
	}
	return nil
}

// postPhotoForm sends the photo as a multipart form field alongside any extra
// fields and decodes the JSON response into out.
func (c *Client) postPhotoForm(ctx context.Context, path string, fields map[string]string, photoPath string, out any) error {
	f, err := os.Open(photoPath)
	if err != nil {
		return fmt.Errorf("open photo: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = w.WriteField(k, v)
	}
	part, err := w.CreateFormFile("photo", filepath.Base(photoPath))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("read photo: %w", err)
	}
	w.Close()

	return c.do(ctx, path, &buf, w.FormDataContentType(), out)
}

// postPhotoRaw sends the photo bytes as the request body.
func (c *Client) postPhotoRaw(ctx context.Context, path, photoPath string, out any) error {
	data, err := os.ReadFile(photoPath)
	if err != nil {
		return fmt.Errorf("read photo: %w", err)
	}
	return c.do(ctx, path, bytes.NewReader(data), "application/octet-stream", out)
}

func (c *Client) do(ctx context.Context, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("token", c.APIKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("face api error %s: %s", resp.Status, string(respBody))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode face api response: %w", err)
	}
	return nil
}
