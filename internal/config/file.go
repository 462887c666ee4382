package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// fileConfig holds the decoded TOML document. Keys are looked up by
// dotted path, e.g. "queue.concurrency".
type fileConfig map[string]any

func loadFile(path string) (fileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}
	data := map[string]any{}
	if err := toml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}
	return fileConfig(data), nil
}

func (f fileConfig) lookup(path string) (any, bool) {
	var cur any = map[string]any(f)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func (f fileConfig) getString(path, def string) string {
	if v, ok := f.lookup(path); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func (f fileConfig) getInt(path string, def int) int {
	if v, ok := f.lookup(path); ok {
		switch n := v.(type) {
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return def
}

func (f fileConfig) getFloat(path string, def float64) float64 {
	if v, ok := f.lookup(path); ok {
		switch n := v.(type) {
		case int64:
			return float64(n)
		case float64:
			return n
		}
	}
	return def
}

func (f fileConfig) getBool(path string, def bool) bool {
	if v, ok := f.lookup(path); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

func (f fileConfig) getDuration(path string, def time.Duration) time.Duration {
	s := f.getString(path, "")
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
