// Package modules implements the module inventory and synchronizer:
// enumerating enabled modules under the
// metadata directory and replicating their content into the staging
// mount with SELinux context repair.
package modules

// Mode is a module's mount strategy.
type Mode string

const (
	ModeAuto    Mode = "auto"
	ModeMagic   Mode = "magic"
	ModeOverlay Mode = "overlay"
)

// Disable marker files that make a module directory not-enabled.
var disableMarkers = []string{"disable", "remove", "skip_mount"}

// reservedIDs are directory names under the metadata directory that are
// never modules.
var reservedIDs = map[string]bool{
	"meta-hybrid": true,
	"lost+found":  true,
	".git":        true,
}

// Module is a single module subtree.
type Module struct {
	ID          string
	SourcePath  string
	ContentPath string // set by Sync once the module has been replicated
	Mode        Mode
	// PartitionsPresent is populated by Sync, one entry per partition
	// subdirectory found under ContentPath.
	PartitionsPresent map[string]struct{}
}

// Prop holds the fields of a module.prop file.
type Prop struct {
	Name        string
	Version     string
	Author      string
	Description string
}
