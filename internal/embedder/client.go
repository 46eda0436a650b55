// Package embedder talks to the external face embedding service used for cross-validation.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/rollcall/internal/face"
)

const (
	defaultURL     = "http://localhost:8000"
	defaultModel   = "cross" // model name for reference only
	defaultTimeout = 30 * time.Second
	faceEndpoint   = "/embed/face"
)

// ErrNoFace is returned when the service detects no face in the crop.
var ErrNoFace = errors.New("no face detected in crop")

// Client computes face embeddings of cropped regions using the embedding service.
type Client struct {
	baseURL  string
	model    string
	cropSize int
	client   *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithCropSize sets the edge length of the square crop sent to the service.
func WithCropSize(size int) Option {
	return func(c *Client) {
		if size > 0 {
			c.cropSize = size
		}
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// NewClient creates a new embedding client
func NewClient(baseURL, model string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = defaultURL
	}
	if model == "" {
		model = defaultModel
	}
	c := &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		model:    model,
		cropSize: face.DefaultCropSize,
		client:   &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Detection represents a single detected face
type Detection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float64 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// faceResponse represents the response from the face embedding endpoint
type faceResponse struct {
	FacesCount int         `json:"faces_count"`
	Faces      []Detection `json:"faces"`
	Model      string      `json:"model"`
}

// Embed crops the face region out of the frame and returns the embedding of the
// most confident detection in the crop.
func (c *Client) Embed(ctx context.Context, region face.ImageContext) ([]float64, error) {
	crop, err := face.Crop(region, c.cropSize)
	if err != nil {
		return nil, fmt.Errorf("failed to crop face: %w", err)
	}

	body, err := c.postMultipartImage(ctx, faceEndpoint, crop)
	if err != nil {
		return nil, err
	}

	var resp faceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	best := -1
	for i, f := range resp.Faces {
		if len(f.Embedding) == 0 {
			continue
		}
		if best < 0 || f.DetScore > resp.Faces[best].DetScore {
			best = i
		}
	}
	if best < 0 {
		return nil, ErrNoFace
	}
	return resp.Faces[best].Embedding, nil
}

// postMultipartImage constructs a multipart form with the JPEG crop and posts it to the given endpoint.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="face.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// Model returns the model name being used
func (c *Client) Model() string {
	return c.model
}
