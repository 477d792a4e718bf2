package errors

import (
	"errors"
)

var (
	// General Errors
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrUnsupportedFile   = errors.New("unsupported file format")
	ErrPathNotAccessible = errors.New("path is not accessible")
	ErrPathEscapesScope  = errors.New("path escapes the working directory scope")

	// Archive Errors
	ErrUnsupportedCompression = errors.New("unsupported compression format")
	ErrInvalidArchive         = errors.New("archive file is corrupted or unsupported")
	ErrExtractionFailed       = errors.New("extraction failed")

	// File & Directory Errors
	ErrFileNotFound    = errors.New("file not found")
	ErrFileReadError   = errors.New("error reading file")
	ErrFileWriteError  = errors.New("error writing to file")
	ErrDirNotFound     = errors.New("directory not found")
	ErrDirCopyError    = errors.New("error copying directory")
	ErrDirCleanupError = errors.New("error removing directory")

	// Download Errors
	ErrDownloadFailed   = errors.New("failed to download file")
	ErrChecksumFailed   = errors.New("checksum mismatch after download")
	ErrInvalidURL       = errors.New("invalid download URL")
	ErrHTTPStatusFailed = errors.New("unexpected HTTP status code during download")

	// Hash Errors
	ErrInvalidHasher        = errors.New("invalid hasher")
	ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")

	// Source Errors
	ErrSourceFetchFailed = errors.New("failed to fetch recipe source")
	ErrUnsupportedSource = errors.New("unsupported source locator")
	ErrMaliciousSource   = errors.New("source archive flagged as malicious")

	// VirusTotal API Errors
	ErrAPIKeyMissing         = errors.New("API key is required")
	ErrAPICommunicationError = errors.New("error communicating with VirusTotal API")
	ErrResourceNotFound      = errors.New("requested resource not found")

	// Registry Errors
	ErrRegistryFailure        = errors.New("install registry operation failed")
	ErrRegistryNotInitialized = errors.New("install registry not initialized")

	// Receipt Errors
	ErrReceiptWriteFailed = errors.New("failed to write install receipt")
	ErrReceiptReadFailed  = errors.New("failed to read install receipt")

	// Configuration Errors
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrConfigFileNotFound = errors.New("configuration file not found")
	ErrConfigParseError   = errors.New("error parsing configuration")
	ErrAlreadyInitialized = errors.New("component already initialized")
	ErrNotInitialized     = errors.New("component not initialized")
)
