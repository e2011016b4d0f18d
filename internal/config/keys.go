package config

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

const tokenKey = "telegram.token"

// Setting is one dot-separated configuration key with its value.
type Setting struct {
	Key    string
	Value  any
	Secret bool
}

// knownKeys is every leaf key of the config file, taken from the defaults.
var knownKeys = sync.OnceValue(func() map[string]bool {
	m, err := ToMap(defaults())
	if err != nil {
		panic(fmt.Sprintf("config: defaults do not marshal: %v", err))
	}
	keys := make(map[string]bool)
	walkLeaves("", m, func(key string, _ any) { keys[key] = true })
	return keys
})

// KnownKey reports whether key names a configuration field.
func KnownKey(key string) bool {
	return knownKeys()[key]
}

// IsSecretKey returns true if the given dot-separated key holds a credential.
func IsSecretKey(key string) bool {
	return key == tokenKey
}

// Settings lists cfg as dot-separated keys sorted by name. With mask set the
// bot token shows only its last four characters.
func Settings(cfg *Config, mask bool) ([]Setting, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	var out []Setting
	walkLeaves("", m, func(key string, v any) {
		s := Setting{Key: key, Value: v, Secret: IsSecretKey(key)}
		if mask && s.Secret {
			if str, ok := v.(string); ok {
				s.Value = maskToken(str)
			}
		}
		out = append(out, s)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func maskToken(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 4:
		return "***" + s
	}
	return "***" + s[len(s)-4:]
}

// walkLeaves calls fn for every non-object value below m. Empty objects
// produce nothing.
func walkLeaves(prefix string, m map[string]any, fn func(key string, v any)) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			walkLeaves(key, child, fn)
			continue
		}
		fn(key, v)
	}
}

// lookupPath returns the value at a dot-separated key of a decoded JSON object.
func lookupPath(m map[string]any, key string) (any, bool) {
	parts := strings.Split(key, ".")
	var cur any = m
	for _, part := range parts {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[part]; !ok {
			return nil, false
		}
	}
	if _, isObj := cur.(map[string]any); isObj {
		return nil, false
	}
	return cur, true
}

// setPath stores v at a dot-separated key, creating missing sections. It
// refuses to replace a section with a scalar or to descend through a scalar.
func setPath(m map[string]any, key string, v any) error {
	parts := strings.Split(key, ".")
	cur := m
	for i, part := range parts[:len(parts)-1] {
		next, ok := cur[part]
		if !ok {
			child := make(map[string]any)
			cur[part] = child
			cur = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("%s is not a section", strings.Join(parts[:i+1], "."))
		}
		cur = child
	}
	leaf := parts[len(parts)-1]
	if _, isObj := cur[leaf].(map[string]any); isObj {
		return fmt.Errorf("%s is a section, set one of its keys instead", key)
	}
	cur[leaf] = v
	return nil
}
