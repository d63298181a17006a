package pii

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// maxDetectorResponse caps how much of a detection response is read.
const maxDetectorResponse = 10 << 20 // 10 MB

// RemoteDetector delegates detection to an external NER service over HTTP.
// The service receives {"text": ..., "labels": [...], "threshold": ...} and
// answers with a DetectorOutput-shaped JSON body. Detection results are
// cached by content hash so re-processing the same document does not hit
// the service again.
type RemoteDetector struct {
	baseURL   string
	client    *http.Client
	threshold float64
	labels    []string
	cache     *gocache.Cache
}

// remoteRequest is the wire format sent to the detection service.
type remoteRequest struct {
	Text      string   `json:"text"`
	Labels    []string `json:"labels,omitempty"`
	Threshold float64  `json:"threshold,omitempty"`
}

// NewRemoteDetector creates a detector client for the NER service at baseURL.
// threshold discards entities below the given confidence; labels restricts
// the requested entity types (nil for the service default set).
func NewRemoteDetector(baseURL string, timeout time.Duration, threshold float64, labels []string, cacheTTL time.Duration) *RemoteDetector {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var c *gocache.Cache
	if cacheTTL > 0 {
		c = gocache.New(cacheTTL, 2*cacheTTL)
	}
	return &RemoteDetector{
		baseURL:   baseURL,
		client:    &http.Client{Timeout: timeout},
		threshold: threshold,
		labels:    labels,
		cache:     c,
	}
}

func (d *RemoteDetector) GetName() string {
	return "remote_detector"
}

// Detect sends the text to the external service and decodes the entity spans.
func (d *RemoteDetector) Detect(ctx context.Context, input DetectorInput) (DetectorOutput, error) {
	labels := input.AllowedLabels
	if len(labels) == 0 {
		labels = d.labels
	}

	cacheKey := d.cacheKey(input.Text, labels)
	if d.cache != nil {
		if cached, ok := d.cache.Get(cacheKey); ok {
			return cached.(DetectorOutput), nil
		}
	}

	reqBody, err := json.Marshal(remoteRequest{
		Text:      input.Text,
		Labels:    labels,
		Threshold: d.threshold,
	})
	if err != nil {
		return DetectorOutput{}, fmt.Errorf("failed to encode detection request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/detect", bytes.NewReader(reqBody))
	if err != nil {
		return DetectorOutput{}, fmt.Errorf("failed to create detection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return DetectorOutput{}, fmt.Errorf("detection service request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return DetectorOutput{}, fmt.Errorf("detection service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDetectorResponse))
	if err != nil {
		return DetectorOutput{}, fmt.Errorf("failed to read detection response: %w", err)
	}

	var output DetectorOutput
	if err := json.Unmarshal(body, &output); err != nil {
		return DetectorOutput{}, fmt.Errorf("failed to decode detection response: %w", err)
	}
	output.Text = input.Text

	// Apply the confidence threshold locally as well; not every service
	// honors the request-side threshold field.
	if d.threshold > 0 {
		filtered := output.Entities[:0]
		for _, e := range output.Entities {
			if e.Confidence >= d.threshold {
				filtered = append(filtered, e)
			}
		}
		output.Entities = filtered
	}

	if d.cache != nil {
		d.cache.SetDefault(cacheKey, output)
	}

	return output, nil
}

func (d *RemoteDetector) Close() error {
	if d.cache != nil {
		d.cache.Flush()
	}
	return nil
}

// cacheKey derives a stable key from the text content and requested labels.
func (d *RemoteDetector) cacheKey(text string, labels []string) string {
	h := sha256.New()
	h.Write([]byte(text))
	for _, l := range labels {
		h.Write([]byte{0x1f})
		h.Write([]byte(l))
	}
	return hex.EncodeToString(h.Sum(nil))
}
