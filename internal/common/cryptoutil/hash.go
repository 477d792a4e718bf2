// Package cryptoutil provides hashing and checksum verification for fetched
// sources, receipts and recipe fingerprints.
package cryptoutil

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	commonerrors "github.com/deploymenttheory/go-recipe-runner/internal/common/errors"
	"golang.org/x/crypto/blake2b"
)

// Bytes2Hex encodes a byte slice to hex string
func Bytes2Hex(d []byte) string {
	return hex.EncodeToString(d)
}

// HashAlgorithm represents supported hash algorithms
type HashAlgorithm string

const (
	// SHA256 algorithm, used for source archive checksums
	SHA256 HashAlgorithm = "sha256"

	// SHA512 algorithm
	SHA512 HashAlgorithm = "sha512"

	// BLAKE2B256 algorithm, used for recipe fingerprints
	BLAKE2B256 HashAlgorithm = "blake2b-256"
)

// Hasher provides an interface for hashing operations
type Hasher interface {
	// Hash hashes the provided data
	Hash(data []byte) (string, error)

	// HashFile hashes the content of a file
	HashFile(path string) (string, error)

	// HashReader hashes data from a reader
	HashReader(reader io.Reader) (string, error)

	// NewHashWriter creates a writer for streaming hash calculation
	NewHashWriter() *HashWriter

	// VerifyFile checks if the provided hash matches the calculated hash for the file
	VerifyFile(path string, expectedHash string) (bool, error)
}

// hasherImpl implements the Hasher interface
type hasherImpl struct {
	algorithm HashAlgorithm
	newHash   func() hash.Hash
}

// NewHasher creates a new Hasher for the specified algorithm
func NewHasher(algorithm HashAlgorithm) (Hasher, error) {
	var newHashFunc func() hash.Hash

	switch HashAlgorithm(strings.ToLower(string(algorithm))) {
	case SHA256:
		newHashFunc = sha256.New
	case SHA512:
		newHashFunc = sha512.New
	case BLAKE2B256:
		newHashFunc = func() hash.Hash {
			// New256 only fails for keys longer than 64 bytes
			h, _ := blake2b.New256(nil)
			return h
		}
	default:
		return nil, fmt.Errorf("%w: '%s'", commonerrors.ErrUnsupportedAlgorithm, algorithm)
	}

	return &hasherImpl{
		algorithm: algorithm,
		newHash:   newHashFunc,
	}, nil
}

// Hash hashes the provided data
func (h *hasherImpl) Hash(data []byte) (string, error) {
	hasher := h.newHash()
	if _, err := hasher.Write(data); err != nil {
		return "", fmt.Errorf("hash operation failed: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// HashFile hashes the content of a file
func (h *hasherImpl) HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", commonerrors.ErrFileNotFound, path)
		}
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return h.HashReader(file)
}

// HashReader hashes data from a reader
func (h *hasherImpl) HashReader(reader io.Reader) (string, error) {
	hasher := h.newHash()
	if _, err := io.Copy(hasher, reader); err != nil {
		return "", fmt.Errorf("hash operation failed: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// NewHashWriter creates a writer for streaming hash calculation
func (h *hasherImpl) NewHashWriter() *HashWriter {
	return &HashWriter{hash: h.newHash()}
}

// VerifyFile checks if the provided hash matches the calculated hash for the file
func (h *hasherImpl) VerifyFile(path string, expectedHash string) (bool, error) {
	actualHash, err := h.HashFile(path)
	if err != nil {
		return false, err
	}

	return strings.EqualFold(actualHash, expectedHash), nil
}

// ParseHashWithAlgorithm parses a hash string that might include the algorithm as a prefix
// Example formats: "sha256:1234abcd..." or "1234abcd..."
func ParseHashWithAlgorithm(hashStr string) (string, HashAlgorithm) {
	parts := strings.SplitN(hashStr, ":", 2)

	if len(parts) == 2 {
		switch algorithm := HashAlgorithm(strings.ToLower(parts[0])); algorithm {
		case SHA256, SHA512, BLAKE2B256:
			return parts[1], algorithm
		}
	}

	return hashStr, ""
}

// CalculateFileChecksum calculates a file's checksum using the specified algorithm
func CalculateFileChecksum(filePath string, algorithm HashAlgorithm) (string, error) {
	hasher, err := NewHasher(algorithm)
	if err != nil {
		return "", err
	}

	return hasher.HashFile(filePath)
}

// VerifyFileChecksum verifies a file's checksum against an expected value
func VerifyFileChecksum(filePath, expectedChecksum string, algorithm HashAlgorithm) (bool, error) {
	hasher, err := NewHasher(algorithm)
	if err != nil {
		return false, err
	}

	return hasher.VerifyFile(filePath, expectedChecksum)
}
