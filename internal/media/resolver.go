package media

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"
)

var ErrUnsupportedAttachment = errors.New("unsupported attachment")

// Resolver is the attachment collaborator: it turns a raw upload
// reference into a stable URL plus a coarse mime category. The engine
// stores only the result, never raw bytes.
type Resolver interface {
	Resolve(ctx context.Context, raw string) (resolvedURL, mimeCategory string, err error)
}

// URLResolver accepts already-uploaded http(s) references and
// categorizes them by file extension.
type URLResolver struct{}

func NewURLResolver() *URLResolver {
	return &URLResolver{}
}

func (URLResolver) Resolve(_ context.Context, raw string) (string, string, error) {
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", "", ErrUnsupportedAttachment
	}
	return parsed.String(), categorize(parsed.Path), nil
}

func categorize(p string) string {
	switch strings.ToLower(strings.TrimPrefix(path.Ext(p), ".")) {
	case "png", "jpg", "jpeg", "gif", "webp":
		return "image"
	case "mp4", "webm", "mov":
		return "video"
	case "mp3", "ogg", "wav", "m4a":
		return "audio"
	}
	return "file"
}

var _ Resolver = (*URLResolver)(nil)
