package policy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/coverwise/core"
	"gopkg.in/yaml.v3"
)

// Format is a policy file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatOf infers the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// Parse decodes one policy document. Unknown fields are rejected.
func Parse(r io.Reader, format Format) (*core.PolicyDocument, error) {
	var f File
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: empty document", ErrInvalidPolicy)
			}
			return nil, fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
		}
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return f.ToPolicy()
}

// Load reads and converts the policy file at path.
func Load(path string) (*core.PolicyDocument, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Parse(bytes.NewReader(data), format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Save writes doc to path in the format implied by its extension.
func Save(path string, doc *core.PolicyDocument) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	f := FromPolicy(doc)

	var data []byte
	switch format {
	case FormatJSON:
		data, err = json.MarshalIndent(f, "", "  ")
	default:
		data, err = yaml.Marshal(f)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
