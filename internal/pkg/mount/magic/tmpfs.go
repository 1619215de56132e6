//go:build linux

package magic

import (
	"os"

	"github.com/modmount/modmount/pkg/sylog"
)

// ShouldCreateTmpfs reports whether realizing node requires a tmpfs
// shadow over hostPath: when any child would change the shape of the
// host directory, or the node opaquely replaces it.
func ShouldCreateTmpfs(node *Node, hostPath string, inheritedTmpfs bool) bool {
	if inheritedTmpfs {
		return true
	}
	if node.Replace && node.ModulePath != "" {
		return true
	}

	required := false
	hostEntries := readHostTypes(hostPath)

	for _, child := range node.Children {
		switch {
		case child.FileType == TypeSymlink:
			required = true
		case child.FileType == TypeWhiteout:
			if _, hostExists := hostEntries[child.Name]; hostExists {
				required = true
			}
		default:
			hostType, hostExists := hostEntries[child.Name]
			if !hostExists || hostType != child.FileType {
				required = true
			}
		}
		if required {
			break
		}
	}

	if !required {
		return false
	}
	if node.ModulePath == "" {
		sylog.Errorf("magic-mount: tmpfs required at %s but no module backing to source metadata from; dropping conflicting children", hostPath)
		return false
	}
	return true
}

// readHostTypes stats every immediate child of hostPath and classifies
// it the same way classify() would, so it can be compared against the
// module-contributed node shape.
func readHostTypes(hostPath string) map[string]FileType {
	out := map[string]FileType{}
	entries, err := os.ReadDir(hostPath)
	if err != nil {
		return out
	}
	for _, e := range entries {
		full := hostPath + "/" + e.Name()
		out[e.Name()] = classify(full)
	}
	return out
}
