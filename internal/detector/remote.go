package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	defaultDetectorURL = "http://localhost:8000"
	defaultMinScore    = 0.5
	remoteIoUThreshold = 0.3
)

// Remote asks an InsightFace-style embedding server for face boxes. Only
// the boxes are used; embeddings in the response are ignored.
type Remote struct {
	baseURL  string
	minScore float64
	client   *http.Client
}

// NewRemote creates a remote detector client.
func NewRemote(baseURL string) *Remote {
	if baseURL == "" {
		baseURL = defaultDetectorURL
	}
	return &Remote{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		minScore: defaultMinScore,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// remoteFace represents a single detected face
type remoteFace struct {
	BBox     []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore float64   `json:"det_score"`
}

// remoteResponse represents the response from the face endpoint
type remoteResponse struct {
	FacesCount int          `json:"faces_count"`
	Faces      []remoteFace `json:"faces"`
}

func (d *Remote) Detect(img image.Image) ([]image.Rectangle, error) {
	return d.DetectContext(context.Background(), img)
}

// DetectContext posts the frame as JPEG and converts the returned boxes to
// rectangles in img coordinates.
func (d *Remote) DetectContext(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	var frame bytes.Buffer
	if err := jpeg.Encode(&frame, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("%w: encoding frame: %v", ErrDetector, err)
	}

	body, err := d.postMultipartImage(ctx, "/embed/face", frame.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetector, err)
	}

	var resp remoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %v", ErrDetector, err)
	}

	bounds := img.Bounds()
	faces := make([]image.Rectangle, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		if len(f.BBox) != 4 || f.DetScore < d.minScore {
			continue
		}
		faces = append(faces, image.Rect(
			bounds.Min.X+int(math.Round(f.BBox[0])),
			bounds.Min.Y+int(math.Round(f.BBox[1])),
			bounds.Min.X+int(math.Round(f.BBox[2])),
			bounds.Min.Y+int(math.Round(f.BBox[3])),
		))
	}
	return Suppress(Clip(faces, bounds, 1), remoteIoUThreshold), nil
}

// postMultipartImage posts image data as the "file" form field.
func (d *Remote) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.client.Do(req)
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
