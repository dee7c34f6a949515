// Package roster loads the preferred teacher ordering from a YAML file.
package roster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of a roster:
//
//	teachers:
//	  - 王小明
//	  - 李大華
type File struct {
	Teachers []string `yaml:"teachers"`
}

// Load reads a roster file. An empty path yields an empty roster.
func Load(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes roster YAML, trimming names and dropping blanks and repeats.
func Parse(raw []byte) ([]string, error) {
	var file File
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode roster: %w", err)
	}
	seen := make(map[string]struct{}, len(file.Teachers))
	names := make([]string, 0, len(file.Teachers))
	for _, name := range file.Teachers {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names, nil
}

// Static is a roster held in memory, typically the result of Load.
type Static []string

// Names returns the roster in order.
func (s Static) Names(context.Context) ([]string, error) {
	return []string(s), nil
}
