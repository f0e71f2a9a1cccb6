package rbac

import (
	"context"
	"strings"
)

// Policy maps a role to its permission patterns. A pattern is either an
// exact permission, "*", or a prefix ending in "*" such as "submission:*".
type Policy map[string][]string

type Checker struct {
	policy Policy
}

func NewChecker(p Policy) *Checker {
	if p == nil {
		p = RolePermissions
	}
	return &Checker{policy: p}
}

func (c *Checker) Has(role, perm string) bool {
	for _, p := range c.policy[role] {
		if matchPerm(p, perm) {
			return true
		}
	}
	return false
}

func (c *Checker) Any(role string, perms ...string) bool {
	for _, p := range perms {
		if c.Has(role, p) {
			return true
		}
	}
	return false
}

func matchPerm(pattern, perm string) bool {
	if pattern == "*" || pattern == perm {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(perm, strings.TrimSuffix(pattern, "*"))
	}
	return false
}

type ctxKey struct{}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, ctxKey{}, role)
}

func RoleFromContext(ctx context.Context) string {
	s, _ := ctx.Value(ctxKey{}).(string)
	return s
}

// Can reports whether the role in ctx holds perm under the default policy.
func Can(ctx context.Context, perm string) bool {
	return defaultChecker.Has(RoleFromContext(ctx), perm)
}
