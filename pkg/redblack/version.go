package redblack

import "runtime/debug"

// Version is populated at build time via ldflags.
var Version = "v0.0.0-in-progress"

const modulePath = "github.com/secmsg/redblack-go"

// ModuleVersion returns Version when it was set at build time; otherwise the
// module version recorded in the binary's build info, if any.
func ModuleVersion() string {
	if Version != "v0.0.0-in-progress" {
		return Version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Version
	}
	if info.Main.Path == modulePath && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	for _, dep := range info.Deps {
		if dep.Path == modulePath {
			return dep.Version
		}
	}
	return Version
}
