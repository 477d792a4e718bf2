// Package netutil downloads source archives over HTTP.
package netutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/deploymenttheory/go-recipe-runner/internal/common/cryptoutil"
	commonerrors "github.com/deploymenttheory/go-recipe-runner/internal/common/errors"
	"github.com/deploymenttheory/go-recipe-runner/internal/logger"
	"github.com/dustin/go-humanize"
)

// DownloadOptions tunes DownloadFile.
type DownloadOptions struct {
	// Per-attempt timeout; zero means none
	Timeout time.Duration

	// Extra attempts after the first one
	Retries uint

	// Initial delay between attempts, doubled each time
	RetryDelay time.Duration

	// Expected sha256, optionally prefixed "sha256:"; empty skips the check
	Checksum string

	Client *http.Client
}

// Result describes a completed download.
type Result struct {
	Path   string
	Size   int64
	SHA256 string
}

// DownloadFile fetches url into dest. The body is written to a temporary
// file next to dest and renamed once the checksum matches, so dest never
// holds a partial download. Checksum mismatches and 4xx responses are not
// retried.
func DownloadFile(ctx context.Context, url, dest string, opts DownloadOptions) (*Result, error) {
	if err := ValidateURL(url); err != nil {
		return nil, err
	}

	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	expected, algorithm := cryptoutil.ParseHashWithAlgorithm(opts.Checksum)
	if algorithm != "" && algorithm != cryptoutil.SHA256 {
		return nil, fmt.Errorf("%w: source checksums must be sha256, got %s", commonerrors.ErrUnsupportedAlgorithm, algorithm)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", commonerrors.ErrFileWriteError, err)
	}

	logger.LogInfo(fmt.Sprintf("Downloading file: %s", url), nil)

	var result *Result
	err := retry.Do(func() error {
		var err error
		result, err = downloadOnce(ctx, client, url, dest, expected, opts.Timeout)
		return err
	},
		retry.Attempts(opts.Retries+1),
		retry.Delay(delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			logger.LogWarn("Retrying download", map[string]interface{}{
				"url":     url,
				"attempt": n + 1,
				"error":   err.Error(),
			})
		}),
	)
	if err != nil {
		return nil, err
	}

	logger.LogInfo("Download completed successfully", map[string]interface{}{
		"url":  url,
		"size": humanize.Bytes(uint64(result.Size)),
	})
	return result, nil
}

func downloadOnce(ctx context.Context, client *http.Client, url, dest, expected string, timeout time.Duration) (*Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("%w: %v", commonerrors.ErrInvalidURL, err))
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", commonerrors.ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".part-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", commonerrors.ErrFileWriteError, err)
	}
	defer os.Remove(tmp.Name())

	hasher, err := cryptoutil.NewHashWriter(cryptoutil.SHA256)
	if err != nil {
		return nil, retry.Unrecoverable(err)
	}
	size, err := io.Copy(io.MultiWriter(tmp, hasher), resp.Body)
	closeErr := tmp.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", commonerrors.ErrDownloadFailed, err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("%w: %v", commonerrors.ErrFileWriteError, closeErr)
	}

	actual := hasher.SumHex()
	if expected != "" && !strings.EqualFold(actual, expected) {
		return nil, retry.Unrecoverable(fmt.Errorf("%w: expected %s, got %s", commonerrors.ErrChecksumFailed, expected, actual))
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return nil, fmt.Errorf("%w: %v", commonerrors.ErrFileWriteError, err)
	}

	return &Result{Path: dest, Size: size, SHA256: actual}, nil
}

// StatusError is a non-200 response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP status %d", e.URL, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return commonerrors.ErrHTTPStatusFailed
}

// Server errors and throttling are worth another attempt; other statuses
// are not.
func isRetryable(err error) bool {
	if !retry.IsRecoverable(err) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}
