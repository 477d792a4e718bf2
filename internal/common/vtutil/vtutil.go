// Package vtutil checks fetched source archives against VirusTotal file
// reports.
package vtutil

import (
	"context"
	"fmt"
	"strings"

	vt "github.com/VirusTotal/vt-go"
	"github.com/deploymenttheory/go-recipe-runner/internal/common/cryptoutil"
	commonerrors "github.com/deploymenttheory/go-recipe-runner/internal/common/errors"
	"github.com/deploymenttheory/go-recipe-runner/internal/logger"
)

// Verdict summarises the last analysis of a file.
type Verdict struct {
	SHA256     string
	Known      bool
	Malicious  int
	Suspicious int
	Harmless   int
	Undetected int
	Permalink  string
}

// Total is the number of engines that reported on the file.
func (v *Verdict) Total() int {
	return v.Malicious + v.Suspicious + v.Harmless + v.Undetected
}

// FileLookup fetches the report for a sha256. Unknown files come back with
// Known false and no error.
type FileLookup interface {
	LookupFile(ctx context.Context, sha256 string) (*Verdict, error)
}

// Client is a FileLookup backed by the VirusTotal API.
type Client struct {
	vtClient *vt.Client
}

// NewClient creates a Client for apiKey.
func NewClient(apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: VirusTotal API key is required", commonerrors.ErrAPIKeyMissing)
	}
	return &Client{vtClient: vt.NewClient(apiKey)}, nil
}

// LookupFile implements FileLookup.
func (c *Client) LookupFile(ctx context.Context, sha256 string) (*Verdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	obj, err := c.vtClient.GetObject(vt.URL("files/%s", sha256))
	if err != nil {
		if isNotFound(err) {
			return &Verdict{SHA256: sha256}, nil
		}
		return nil, fmt.Errorf("%w: %v", commonerrors.ErrAPICommunicationError, err)
	}

	return parseFileObject(sha256, obj), nil
}

func parseFileObject(sha256 string, obj *vt.Object) *Verdict {
	verdict := &Verdict{
		SHA256:    sha256,
		Known:     true,
		Permalink: fmt.Sprintf("https://www.virustotal.com/gui/file/%s/detection", sha256),
	}

	// Counts arrive as json.Number; absent stats read as zero
	count := func(key string) int {
		n, err := obj.GetInt64("last_analysis_stats." + key)
		if err != nil {
			return 0
		}
		return int(n)
	}
	verdict.Malicious = count("malicious")
	verdict.Suspicious = count("suspicious")
	verdict.Harmless = count("harmless")
	verdict.Undetected = count("undetected")

	return verdict
}

func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "notfound") || strings.Contains(msg, "not found")
}

// Scanner applies the malicious-verdict threshold to files.
type Scanner struct {
	Lookup FileLookup

	// More malicious verdicts than this fail the check
	MaxMalicious int
}

// CheckFile hashes path and checks it.
func (s *Scanner) CheckFile(ctx context.Context, path string) (*Verdict, error) {
	sum, err := cryptoutil.CalculateFileChecksum(path, cryptoutil.SHA256)
	if err != nil {
		return nil, err
	}
	return s.CheckHash(ctx, sum)
}

// CheckHash looks sha256 up and fails with ErrMaliciousSource when the
// verdict is over the threshold. Unknown files pass.
func (s *Scanner) CheckHash(ctx context.Context, sha256 string) (*Verdict, error) {
	verdict, err := s.Lookup.LookupFile(ctx, sha256)
	if err != nil {
		return nil, err
	}

	if !verdict.Known {
		logger.LogWarn("Source archive unknown to VirusTotal", map[string]interface{}{
			"sha256": sha256,
		})
		return verdict, nil
	}

	fields := map[string]interface{}{
		"sha256":    sha256,
		"malicious": verdict.Malicious,
		"total":     verdict.Total(),
		"permalink": verdict.Permalink,
	}
	if verdict.Malicious > s.MaxMalicious {
		logger.LogError("Source archive flagged as malicious", nil, fields)
		return verdict, fmt.Errorf("%w: %d of %d engines flagged %s",
			commonerrors.ErrMaliciousSource, verdict.Malicious, verdict.Total(), sha256)
	}

	logger.LogInfo("Source archive scan passed", fields)
	return verdict, nil
}
