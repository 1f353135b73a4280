package offline

import (
	"strings"
)

// Role is the logical purpose of a cache namespace.
type Role string

const (
	RoleStatic  Role = "static"
	RoleDynamic Role = "dynamic"
	RoleAPI     Role = "api"
)

var roles = []Role{RoleStatic, RoleDynamic, RoleAPI}

// NamespaceName returns "{prefix}-{role}-{version}".
func NamespaceName(prefix string, role Role, version string) string {
	return prefix + "-" + string(role) + "-" + version
}

// MetaNamespace holds the last-sync marker. It is unversioned so the marker
// survives activation sweeps.
func MetaNamespace(prefix string) string {
	return prefix + "-meta"
}

func (c Config) namespace(role Role) string {
	return NamespaceName(c.Prefix, role, c.Version)
}

func (c Config) currentNamespaces() map[string]bool {
	current := make(map[string]bool, len(roles)+1)
	for _, r := range roles {
		current[c.namespace(r)] = true
	}
	current[MetaNamespace(c.Prefix)] = true
	return current
}

// isStale reports whether name belongs to this prefix but not to the running
// version.
func (c Config) isStale(name string) bool {
	if !strings.HasPrefix(name, c.Prefix+"-") {
		return false
	}
	return !c.currentNamespaces()[name]
}
