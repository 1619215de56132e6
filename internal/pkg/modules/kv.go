package modules

import (
	"bufio"
	"os"
	"strings"
)

// scanKeyValue reads a simple `key = value` / `key=value` text file,
// skipping blank lines and lines beginning with `#`. A missing file
// yields an empty map and no error.
func scanKeyValue(path string) (map[string]string, error) {
	out := map[string]string{}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return out, scanner.Err()
}
