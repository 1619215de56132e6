package mount

import "os"

// statFn is a package-level variable rather than a direct os.Stat call so
// tests can stub stat results without touching the filesystem.
var statFn = os.Stat
