// Package env reads typed configuration from environment variables. A
// variable that is set, even to "", overrides the default.
package env

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func String(key string, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

// Secret reads key, falling back to the file named by key_FILE so secrets
// can be mounted rather than exported.
func Secret(key string, def string) (string, error) {
	if v, ok := os.LookupEnv(key); ok {
		return v, nil
	}
	path, ok := os.LookupEnv(key + "_FILE")
	if !ok || strings.TrimSpace(path) == "" {
		return def, nil
	}
	raw, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return "", fmt.Errorf("read %s_FILE: %w", key, err)
	}
	return strings.TrimRight(string(raw), "\r\n"), nil
}

// CSV splits a comma separated value, dropping blanks and duplicates.
func CSV(key string, def []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	out := []string{}
	seen := map[string]bool{}
	for _, part := range strings.Split(v, ",") {
		item := strings.TrimSpace(part)
		if item != "" && !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}

func Duration(key string, def time.Duration) (time.Duration, error) {
	return parse(key, def, time.ParseDuration)
}

func Bool(key string, def bool) (bool, error) {
	return parse(key, def, strconv.ParseBool)
}

func Int(key string, def int) (int, error) {
	return parse(key, def, strconv.Atoi)
}

func parse[T any](key string, def T, fn func(string) (T, error)) (T, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	out, err := fn(strings.TrimSpace(v))
	if err != nil {
		var zero T
		return zero, fmt.Errorf("parse %s: %w", key, err)
	}
	return out, nil
}
