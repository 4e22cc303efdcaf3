package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-playground/validator/v10"
)

var sourceValidator = validator.New()

// LoadSource reads one registry source from a JSON file produced by the
// build-time registry generator. The file is trusted static data, but struct
// validation still runs so a truncated or hand-edited file fails at startup
// rather than at request time.
func LoadSource(path string, tier Tier) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, fmt.Errorf("registry: read source %s: %w", path, err)
	}
	var src Source
	if err := json.Unmarshal(data, &src); err != nil {
		return Source{}, fmt.Errorf("registry: parse source %s: %w", path, err)
	}
	if err := sourceValidator.Struct(src); err != nil {
		return Source{}, fmt.Errorf("registry: invalid source %s: %w", path, err)
	}
	src.Tier = tier
	return src, nil
}

// LoadPluginDir loads every *.json file in dir as a plugin source. Files are
// loaded in lexical filename order, which is the documented plugin precedence
// order; slug collisions between plugins are still rejected by Compose.
func LoadPluginDir(dir string) ([]Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("registry: read plugin dir %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	sources := make([]Source, 0, len(names))
	for _, name := range names {
		src, err := LoadSource(filepath.Join(dir, name), TierPlugin)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}
