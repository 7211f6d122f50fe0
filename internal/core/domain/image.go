package domain

import (
	"mime"
	"net/url"
	"path"
	"strings"
)

// ImageRef is a successfully constructed reference to a slide image.
type ImageRef struct {
	NodeID   string `json:"node_id"`
	URL      string `json:"url"`
	MIMEType string `json:"mime_type,omitempty"`
	PageNum  string `json:"page_num,omitempty"`
}

// IsDataURI reports whether the reference carries the image inline.
func (r ImageRef) IsDataURI() bool {
	return len(r.URL) >= 5 && strings.EqualFold(r.URL[:5], "data:")
}

var imageSchemes = map[string]struct{}{
	"http":  {},
	"https": {},
	"gs":    {},
	"s3":    {},
	"data":  {},
}

// NewImageRef builds an image reference from a node's image_path metadata.
// Anything that is not an absolute URL with a supported scheme is rejected.
func NewImageRef(node ContentNode, raw string) (ImageRef, error) {
	ref := strings.TrimSpace(raw)
	fail := func(reason string) (ImageRef, error) {
		return ImageRef{}, &ImageReferenceError{NodeID: node.ID, Reference: raw, Reason: reason}
	}

	if ref == "" {
		return fail("empty reference")
	}

	parsed, err := url.Parse(ref)
	if err != nil {
		return fail("parse url: " + err.Error())
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme == "" {
		return fail("reference is not an absolute url")
	}
	if _, ok := imageSchemes[scheme]; !ok {
		return fail("unsupported scheme " + scheme)
	}

	mimeType := ""
	switch scheme {
	case "data":
		mimeType = dataURIMediaType(parsed.Opaque)
		if !strings.HasPrefix(mimeType, "image/") {
			return fail("data uri is not an image")
		}
		if !dataURIIsBase64(parsed.Opaque) {
			return fail("data uri is not base64 encoded")
		}
	default:
		if parsed.Host == "" {
			return fail("url has no host")
		}
		mimeType = mime.TypeByExtension(strings.ToLower(path.Ext(parsed.Path)))
		if i := strings.Index(mimeType, ";"); i >= 0 {
			mimeType = mimeType[:i]
		}
	}

	page, _ := node.PageNum()
	return ImageRef{
		NodeID:   node.ID,
		URL:      ref,
		MIMEType: mimeType,
		PageNum:  page,
	}, nil
}

func dataURIMediaType(opaque string) string {
	head, _, ok := strings.Cut(opaque, ",")
	if !ok {
		return ""
	}
	mediaType, _, _ := strings.Cut(head, ";")
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func dataURIIsBase64(opaque string) bool {
	head, _, ok := strings.Cut(opaque, ",")
	return ok && strings.HasSuffix(strings.ToLower(strings.TrimSpace(head)), ";base64")
}
