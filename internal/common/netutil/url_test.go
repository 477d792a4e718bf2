package netutil

import (
	"context"
	"testing"

	commonerrors "github.com/deploymenttheory/go-recipe-runner/internal/common/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url   string
		valid bool
	}{
		{"https://example.com/src.tar.gz", true},
		{"http://localhost:8080/a.zip", true},
		{"example.com/src.tar.gz", false},
		{"ftp://example.com/src.tar.gz", false},
		{"https:///src.tar.gz", false},
		{"://bad", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, commonerrors.ErrInvalidURL)
			}
		})
	}
}

func TestFilenameFromURL(t *testing.T) {
	name, err := FilenameFromURL("https://example.com/releases/eos-1.0.tar.gz?download=1")
	require.NoError(t, err)
	assert.Equal(t, "eos-1.0.tar.gz", name)

	_, err = FilenameFromURL("https://example.com/")
	assert.ErrorIs(t, err, commonerrors.ErrInvalidURL)
}

func TestDownloadFileRejectsInvalidURL(t *testing.T) {
	_, err := DownloadFile(context.Background(), "ftp://example.com/a.zip", t.TempDir()+"/a.zip", DownloadOptions{})
	assert.ErrorIs(t, err, commonerrors.ErrInvalidURL)
}
