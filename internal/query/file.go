package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	gc "github.com/joshsymonds/gmailpipe/internal/gmail"
)

// LoadFile reads a query from disk. JSON and YAML files hold a Filter and
// reject unknown fields; any other extension is read as a raw query string.
func LoadFile(path string) (gc.Query, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path chosen by the user
	if err != nil {
		return gc.Query{}, fmt.Errorf("read filter file: %w", err)
	}

	var f Filter
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return gc.Query{}, fmt.Errorf("decode %s: %w", path, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return gc.Query{}, fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		return Raw(string(data))
	}
	return f.Build()
}
