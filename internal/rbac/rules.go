package rbac

import "strings"

// Policy maps a role to the permissions it grants. A grant ending in "*"
// covers every permission with that prefix, so "*" alone covers all of them.
type Policy map[string][]string

// DefaultPolicy is what the router enforces.
var DefaultPolicy = Policy{
	"student": {
		"exam:view",
		"attempt:create",
		"attempt:save",
		"attempt:submit",
		"attempt:view-own",
		"user:change_password",
	},
	"instructor": {
		"exam:create",
		"exam:view",
		"attempt:view-own",
		"attempt:view-all",
		"users:bulk_upsert",
		"users:list",
		"user:change_password",
		"events:view",
	},
	"admin": {"*"},
}

// Allows reports whether role holds perm. Unknown roles hold nothing.
func (p Policy) Allows(role, perm string) bool {
	for _, g := range p[role] {
		if g == perm {
			return true
		}
		if prefix, ok := strings.CutSuffix(g, "*"); ok && strings.HasPrefix(perm, prefix) {
			return true
		}
	}
	return false
}

// AllowsAny reports whether role holds at least one of perms.
func (p Policy) AllowsAny(role string, perms ...string) bool {
	for _, perm := range perms {
		if p.Allows(role, perm) {
			return true
		}
	}
	return false
}
