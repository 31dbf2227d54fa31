package media

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCategorizesByExtension(t *testing.T) {
	r := NewURLResolver()
	cases := map[string]string{
		"https://cdn.example.com/a/photo.JPG": "image",
		"https://cdn.example.com/a/clip.mp4":  "video",
		"https://cdn.example.com/a/voice.ogg": "audio",
		"https://cdn.example.com/a/notes.pdf": "file",
	}
	for raw, want := range cases {
		resolved, kind, err := r.Resolve(context.Background(), raw)
		require.NoError(t, err, raw)
		assert.Equal(t, raw, resolved)
		assert.Equal(t, want, kind, raw)
	}
}

func TestResolveRejectsNonHTTP(t *testing.T) {
	r := NewURLResolver()
	for _, raw := range []string{"", "ftp://host/f.png", "javascript:alert(1)", "/relative/path.png"} {
		_, _, err := r.Resolve(context.Background(), raw)
		assert.ErrorIs(t, err, ErrUnsupportedAttachment, raw)
	}
}
