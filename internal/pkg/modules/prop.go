package modules

import "path/filepath"

// loadProp reads <sourcePath>/module.prop, returning a zero-value Prop
// (all empty strings) if the file is absent: a module with no
// module.prop still yields a valid {id,mode} JSON record.
func loadProp(sourcePath string) (Prop, error) {
	kv, err := scanKeyValue(filepath.Join(sourcePath, "module.prop"))
	if err != nil {
		return Prop{}, err
	}
	return Prop{
		Name:        kv["name"],
		Version:     kv["version"],
		Author:      kv["author"],
		Description: kv["description"],
	}, nil
}
