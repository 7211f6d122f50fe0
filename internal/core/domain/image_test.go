package domain

import (
	"errors"
	"testing"
)

func TestNewImageRefAcceptsHTTPURL(t *testing.T) {
	node := ContentNode{ID: "n1", Metadata: map[string]string{MetadataPageNum: "12"}}
	ref, err := NewImageRef(node, "https://storage.example.com/slides/page_12.png")
	if err != nil {
		t.Fatalf("NewImageRef() error = %v", err)
	}
	if ref.NodeID != "n1" || ref.PageNum != "12" {
		t.Fatalf("unexpected ref: %+v", ref)
	}
	if ref.MIMEType != "image/png" {
		t.Fatalf("expected image/png, got %q", ref.MIMEType)
	}
}

func TestNewImageRefAcceptsImageDataURI(t *testing.T) {
	ref, err := NewImageRef(ContentNode{ID: "n1"}, "data:image/jpeg;base64,/9j/4AAQ")
	if err != nil {
		t.Fatalf("NewImageRef() error = %v", err)
	}
	if !ref.IsDataURI() || ref.MIMEType != "image/jpeg" {
		t.Fatalf("unexpected ref: %+v", ref)
	}
}

func TestNewImageRefRejectsInvalidReferences(t *testing.T) {
	cases := map[string]string{
		"bare word":      "not-a-valid-reference",
		"empty":          "   ",
		"relative path":  "slides/page_1.png",
		"unknown scheme": "ftp://host/page.png",
		"no host":        "https:///page.png",
		"non image data": "data:text/plain;base64,aGVsbG8=",
		"unencoded data": "data:image/png,rawbytes",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewImageRef(ContentNode{ID: "n1"}, raw)
			var refErr *ImageReferenceError
			if !errors.As(err, &refErr) {
				t.Fatalf("expected ImageReferenceError, got %v", err)
			}
			if refErr.NodeID != "n1" || refErr.Reference != raw {
				t.Fatalf("unexpected error fields: %+v", refErr)
			}
		})
	}
}

func TestNewImageRefAcceptsUppercaseDataScheme(t *testing.T) {
	ref, err := NewImageRef(ContentNode{ID: "n1"}, "DATA:image/png;BASE64,iVBORw0KGgo=")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ref.IsDataURI() {
		t.Fatalf("expected %q to be treated as a data uri", ref.URL)
	}
	if ref.MIMEType != "image/png" {
		t.Fatalf("unexpected mime type %q", ref.MIMEType)
	}
}
