package version

import "runtime/debug"

// Version is set at build time with -ldflags, falling back to the module
// version when installed with go install.
var Version = "devel"

func init() {
	if Version != "devel" {
		return
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		Version = v
	}
}
