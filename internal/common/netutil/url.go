package netutil

import (
	"fmt"
	"net/url"
	"path"

	commonerrors "github.com/deploymenttheory/go-recipe-runner/internal/common/errors"
)

// ValidateURL checks that rawURL is an absolute http or https URL
func ValidateURL(rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %s", commonerrors.ErrInvalidURL, err.Error())
	}

	if parsedURL.Scheme == "" {
		return fmt.Errorf("%w: missing scheme (http:// or https://)", commonerrors.ErrInvalidURL)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme '%s'", commonerrors.ErrInvalidURL, parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("%w: missing host", commonerrors.ErrInvalidURL)
	}

	return nil
}

// FilenameFromURL returns the last path element of rawURL
func FilenameFromURL(rawURL string) (string, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %s", commonerrors.ErrInvalidURL, err.Error())
	}

	// A trailing slash leaves nothing to name the file after
	filename := path.Base(parsedURL.Path)
	if filename == "" || filename == "." || filename == "/" {
		return "", fmt.Errorf("%w: could not determine filename from URL", commonerrors.ErrInvalidURL)
	}

	return filename, nil
}
