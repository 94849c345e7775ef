// Package facesrv provides a faces.Provider backed by a face-recognition
// sidecar exposing a small REST API:
//
//   - POST /detect — multipart JPEG upload; returns the detected faces with
//     their best enrolled-name match and embedding distance.
//   - POST /embed — multipart JPEG upload; returns the embedding vector of
//     the largest face in the frame.
//
// The sidecar owns the heavy perception work (dlib/ONNX models); this client
// only moves frames and results. Recognition threshold tuning lives
// server-side so that the guard and the sidecar cannot disagree about what
// counts as a match.
package facesrv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/nholtz/roomwarden/pkg/provider/faces"
)

const (
	defaultTimeout = 10 * time.Second
	detectEndpoint = "/detect"
	embedEndpoint  = "/embed"
)

// Compile-time interface assertion.
var _ faces.Provider = (*Client)(nil)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithTimeout sets the per-request HTTP timeout. Defaults to 10 s — frame
// processing is allowed to be slow, the vision worker simply skips frames
// while a request is in flight.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// Client implements faces.Provider against a face-recognition sidecar.
// Safe for concurrent use.
type Client struct {
	serverURL  string
	httpClient *http.Client
}

// New creates a Client targeting the sidecar at serverURL
// (e.g., "http://localhost:5100").
func New(serverURL string, opts ...Option) (*Client, error) {
	if serverURL == "" {
		return nil, errors.New("facesrv: serverURL must not be empty")
	}
	c := &Client{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// detectResponse is the JSON body returned by POST /detect.
type detectResponse struct {
	Faces []struct {
		Top      int     `json:"top"`
		Right    int     `json:"right"`
		Bottom   int     `json:"bottom"`
		Left     int     `json:"left"`
		Name     string  `json:"name"`
		Distance float64 `json:"distance"`
	} `json:"faces"`
}

// embedResponse is the JSON body returned by POST /embed.
type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Detect implements faces.Provider.
func (c *Client) Detect(ctx context.Context, frameJPEG []byte) ([]faces.Match, error) {
	body, err := c.postFrame(ctx, detectEndpoint, frameJPEG)
	if err != nil {
		return nil, err
	}

	var dr detectResponse
	if err := json.Unmarshal(body, &dr); err != nil {
		return nil, fmt.Errorf("facesrv: decode detect response: %w", err)
	}

	matches := make([]faces.Match, 0, len(dr.Faces))
	for _, f := range dr.Faces {
		name := f.Name
		if name == "" {
			name = faces.Unknown
		}
		matches = append(matches, faces.Match{
			Location: faces.Location{Top: f.Top, Right: f.Right, Bottom: f.Bottom, Left: f.Left},
			Name:     name,
			Distance: f.Distance,
		})
	}
	return matches, nil
}

// Embed implements faces.Provider.
func (c *Client) Embed(ctx context.Context, frameJPEG []byte) ([]float32, error) {
	body, err := c.postFrame(ctx, embedEndpoint, frameJPEG)
	if err != nil {
		return nil, err
	}

	var er embedResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return nil, fmt.Errorf("facesrv: decode embed response: %w", err)
	}
	if len(er.Embedding) == 0 {
		return nil, errors.New("facesrv: no face found in frame")
	}
	return er.Embedding, nil
}

// postFrame uploads a JPEG as multipart form data and returns the response
// body on HTTP 200.
func (c *Client) postFrame(ctx context.Context, endpoint string, frameJPEG []byte) ([]byte, error) {
	if len(frameJPEG) == 0 {
		return nil, errors.New("facesrv: frame must not be empty")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("frame", "frame.jpg")
	if err != nil {
		return nil, fmt.Errorf("facesrv: build multipart: %w", err)
	}
	if _, err := fw.Write(frameJPEG); err != nil {
		return nil, fmt.Errorf("facesrv: write frame: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("facesrv: finalise multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("facesrv: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("facesrv: %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("facesrv: %s: server returned %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	return io.ReadAll(resp.Body)
}
