package config

import (
	"fmt"
	"strings"
)

// Partitions is the `partitions` config key. It accepts either a TOML
// array of strings or a single comma-separated string on read, always
// emitting an array on write.
type Partitions []string

// UnmarshalTOML implements pelletier/go-toml/v2's Unmarshaler, receiving
// the already-decoded TOML value rather than raw bytes.
func (p *Partitions) UnmarshalTOML(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*p = nil
		return nil
	case string:
		*p = splitAndTrim(v)
		return nil
	case []interface{}:
		out := make(Partitions, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("partitions: expected string entries, got %T", item)
			}
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
		*p = out
		return nil
	default:
		return fmt.Errorf("partitions: unsupported TOML type %T", value)
	}
}

// MarshalTOML always emits an array, regardless of how the value was
// originally read.
func (p Partitions) MarshalTOML() ([]byte, error) {
	if len(p) == 0 {
		return []byte("[]"), nil
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, part := range p {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q", part)
	}
	b.WriteByte(']')
	return []byte(b.String()), nil
}

func splitAndTrim(s string) Partitions {
	fields := strings.Split(s, ",")
	out := make(Partitions, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
