// Package config loads and serializes the engine's TOML configuration:
// plain Go structs with `toml:` tags, decoded with pelletier/go-toml/v2.
package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// File is the top-level configuration.
type File struct {
	ModuleDir   string      `toml:"moduledir" comment:"directory holding one subdirectory per module"`
	TempDir     string      `toml:"tempdir" comment:"base directory holding the staging mount, loop image and runtime state"`
	MountSource string      `toml:"mountsource" comment:"source string for overlay mounts made through the new mount API"`
	Verbose     bool        `toml:"verbose" comment:"enable verbose logging"`
	Partitions  Partitions  `toml:"partitions" comment:"extra partitions beyond the built-in set, as a list or a comma-separated string"`
	ForceExt4   bool        `toml:"force_ext4" comment:"always use the ext4 loop image, skipping the tmpfs probe"`
	EnableNuke  bool        `toml:"enable_nuke" comment:"invoke the optional nuke LKM hook after an ext4 mount"`
}

// Default returns the configuration used when no config file is present.
func Default() *File {
	return &File{
		ModuleDir:   "/data/adb/modules",
		TempDir:     "/data/adb/modmount",
		MountSource: "modmount",
		Verbose:     false,
		Partitions:  nil,
		ForceExt4:   false,
		EnableNuke:  false,
	}
}

// Load reads and decodes a TOML configuration file, starting from
// Default() so a partially-specified file still yields sane values for
// unset keys. A missing file is not an error: Load returns Default().
func Load(path string) (*File, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	return cfg, nil
}

// Marshal serializes cfg back to TOML text.
func Marshal(cfg *File) ([]byte, error) {
	return toml.Marshal(cfg)
}

// WriteDefault writes a fully-populated default configuration to path,
// backing the `gen-config` subcommand.
func WriteDefault(path string) error {
	data, err := Marshal(Default())
	if err != nil {
		return errors.Wrap(err, "marshaling default config")
	}
	return os.WriteFile(path, data, 0o644)
}
