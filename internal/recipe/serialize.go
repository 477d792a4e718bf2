package recipe

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/deploymenttheory/go-recipe-runner/internal/common/cryptoutil"
	commonerrors "github.com/deploymenttheory/go-recipe-runner/internal/common/errors"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Marshal encodes r in the given format. Parse(Marshal(r)) reproduces r for
// every valid recipe.
func Marshal(r *Recipe, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatJSON:
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case FormatTOML:
		return toml.Marshal(r)
	default:
		return nil, fmt.Errorf("%w: cannot encode recipes as %q", commonerrors.ErrUnsupportedFile, format)
	}
}

// Fingerprint returns the blake2b-256 digest of the canonical JSON encoding of
// r. Two recipes with the same fingerprint build the same thing.
func Fingerprint(r *Recipe) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}

	hasher, err := cryptoutil.NewHasher(cryptoutil.BLAKE2B256)
	if err != nil {
		return "", err
	}
	return hasher.Hash(data)
}
