// Package imageload turns slide image references into bytes for completion
// backends that only accept inline image data.
package imageload

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
)

const DefaultMaxBytes int64 = 20 << 20

var ErrUnsupportedScheme = errors.New("image scheme cannot be fetched")

// Image is a decoded slide image.
type Image struct {
	MIMEType string
	Data     []byte
}

func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

type Loader struct {
	httpClient *http.Client
	maxBytes   int64
}

func NewLoader(httpClient *http.Client, maxBytes int64) *Loader {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Loader{httpClient: httpClient, maxBytes: maxBytes}
}

func (l *Loader) Load(ctx context.Context, ref domain.ImageRef) (Image, error) {
	if ref.IsDataURI() {
		return DecodeDataURI(ref.URL)
	}
	if !strings.HasPrefix(ref.URL, "http://") && !strings.HasPrefix(ref.URL, "https://") {
		return Image{}, fmt.Errorf("%w: %s", ErrUnsupportedScheme, ref.URL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return Image{}, fmt.Errorf("create image request: %w", err)
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return Image{}, fmt.Errorf("fetch image status: %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes+1))
	if err != nil {
		return Image{}, fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > l.maxBytes {
		return Image{}, fmt.Errorf("image exceeds %d bytes", l.maxBytes)
	}

	return Image{MIMEType: resolveMIMEType(resp.Header.Get("Content-Type"), ref.MIMEType, data), Data: data}, nil
}

// DecodeDataURI decodes a base64 "data:image/...;base64," reference.
func DecodeDataURI(raw string) (Image, error) {
	if len(raw) < 5 || !strings.EqualFold(raw[:5], "data:") {
		return Image{}, errors.New("not a data uri")
	}
	header, payload, ok := strings.Cut(raw[5:], ",")
	if !ok {
		return Image{}, errors.New("data uri has no payload")
	}
	const marker = ";base64"
	if len(header) < len(marker) || !strings.EqualFold(header[len(header)-len(marker):], marker) {
		return Image{}, errors.New("data uri is not base64 encoded")
	}
	mediaType := strings.ToLower(header[:len(header)-len(marker)])
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, fmt.Errorf("decode data uri: %w", err)
	}
	return Image{MIMEType: mediaType, Data: data}, nil
}

func resolveMIMEType(header, declared string, data []byte) string {
	if mediaType, _, err := mime.ParseMediaType(header); err == nil && strings.HasPrefix(mediaType, "image/") {
		return mediaType
	}
	if declared != "" {
		return declared
	}
	return http.DetectContentType(data)
}
