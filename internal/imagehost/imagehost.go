// Package imagehost uploads receipt and project photos to an image CDN and
// builds resized delivery URLs for them.
package imagehost

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

var (
	ErrUpload   = errors.New("image upload failed")
	ErrNotFound = errors.New("image not found")
)

// Host is the image CDN used by the ledger and the PDF exporter.
type Host interface {
	Upload(ctx context.Context, data []byte) (publicID string, err error)
	// URL returns a delivery URL cropped to width x height; zero dimensions
	// are left out.
	URL(publicID string, width, height int) string
	Fetch(ctx context.Context, publicID string) ([]byte, error)
}

type Config struct {
	CloudName    string
	UploadPreset string
	// APIBaseURL and DeliveryBaseURL default to Cloudinary's public endpoints.
	APIBaseURL      string
	DeliveryBaseURL string
	Timeout         time.Duration
}

const (
	defaultAPIBaseURL      = "https://api.cloudinary.com/v1_1"
	defaultDeliveryBaseURL = "https://res.cloudinary.com"
)

// Cloudinary is a resty-backed Host using unsigned upload presets.
type Cloudinary struct {
	api          *resty.Client
	delivery     *resty.Client
	cloudName    string
	uploadPreset string
	deliveryBase string
}

var _ Host = (*Cloudinary)(nil)

func NewCloudinary(cfg Config) *Cloudinary {
	apiBase := strings.TrimSuffix(cfg.APIBaseURL, "/")
	if apiBase == "" {
		apiBase = defaultAPIBaseURL
	}
	deliveryBase := strings.TrimSuffix(cfg.DeliveryBaseURL, "/")
	if deliveryBase == "" {
		deliveryBase = defaultDeliveryBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Cloudinary{
		api: resty.New().
			SetBaseURL(fmt.Sprintf("%s/%s", apiBase, cfg.CloudName)).
			SetTimeout(timeout),
		delivery:     resty.New().SetTimeout(timeout),
		cloudName:    cfg.CloudName,
		uploadPreset: cfg.UploadPreset,
		deliveryBase: deliveryBase,
	}
}

type uploadResponse struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// DataURI encodes data as a base64 data URI with a sniffed content type.
func DataURI(data []byte) string {
	return "data:" + http.DetectContentType(data) + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func (c *Cloudinary) Upload(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty image", ErrUpload)
	}
	result := new(uploadResponse)
	apiErr := new(apiError)

	resp, err := c.api.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"file":          DataURI(data),
			"upload_preset": c.uploadPreset,
		}).
		SetResult(result).
		SetError(apiErr).
		Post("/image/upload")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpload, err)
	}
	if resp.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = resp.Status()
		}
		return "", fmt.Errorf("%w: status=%d, message=%s", ErrUpload, resp.StatusCode(), msg)
	}
	if result.PublicID == "" {
		return "", fmt.Errorf("%w: response without public_id", ErrUpload)
	}
	return result.PublicID, nil
}

func transformation(width, height int) string {
	parts := []string{"c_fill"}
	if width > 0 {
		parts = append(parts, "w_"+strconv.Itoa(width))
	}
	if height > 0 {
		parts = append(parts, "h_"+strconv.Itoa(height))
	}
	if len(parts) == 1 {
		return ""
	}
	return strings.Join(parts, ",")
}

func (c *Cloudinary) URL(publicID string, width, height int) string {
	base := fmt.Sprintf("%s/%s/image/upload", c.deliveryBase, c.cloudName)
	if t := transformation(width, height); t != "" {
		return base + "/" + t + "/" + publicID
	}
	return base + "/" + publicID
}

// Fetch downloads the original image.
func (c *Cloudinary) Fetch(ctx context.Context, publicID string) ([]byte, error) {
	resp, err := c.delivery.R().SetContext(ctx).Get(c.URL(publicID, 0, 0))
	if err != nil {
		return nil, fmt.Errorf("fetch image %s: %w", publicID, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, publicID)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch image %s: status=%d", publicID, resp.StatusCode())
	}
	return resp.Body(), nil
}

// Memory is an in-process Host for development and tests. URLs point at
// BaseURL, which the HTTP server can serve with Fetch.
type Memory struct {
	BaseURL string

	mu     sync.RWMutex
	images map[string][]byte
}

var _ Host = (*Memory)(nil)

func NewMemory(baseURL string) *Memory {
	return &Memory{BaseURL: strings.TrimSuffix(baseURL, "/"), images: make(map[string][]byte)}
}

func (m *Memory) Upload(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpload, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty image", ErrUpload)
	}
	id := "receipts/" + uuid.NewString()
	m.mu.Lock()
	m.images[id] = append([]byte(nil), data...)
	m.mu.Unlock()
	return id, nil
}

func (m *Memory) URL(publicID string, width, height int) string {
	if t := transformation(width, height); t != "" {
		return m.BaseURL + "/" + t + "/" + publicID
	}
	return m.BaseURL + "/" + publicID
}

func (m *Memory) Fetch(_ context.Context, publicID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.images[publicID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, publicID)
	}
	return append([]byte(nil), data...), nil
}
