package modules

import "strings"

// LoadModeOverrides reads the mode-overrides file: one `id = mode` per
// line, `#` comments, values lowercased. A missing file yields an empty
// map, matching scanKeyValue's missing-file behavior.
func LoadModeOverrides(path string) (map[string]Mode, error) {
	kv, err := scanKeyValue(path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Mode, len(kv))
	for id, mode := range kv {
		out[id] = Mode(strings.ToLower(mode))
	}
	return out, nil
}
