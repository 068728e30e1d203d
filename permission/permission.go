// Package permission defines the predicate the Fetch Orchestrator
// consults before every hop, including every redirect (spec §6, §4.6):
// "permissions predicate check_specifier(spec) → Result". The
// orchestrator re-checks on each redirect hop, not just the initial
// specifier.
package permission

import "context"

// Checker authorizes access to a specifier before it is fetched.
type Checker interface {
	CheckSpecifier(ctx context.Context, specifier string) error
}

// CheckerFunc adapts a function to a Checker.
type CheckerFunc func(ctx context.Context, specifier string) error

func (f CheckerFunc) CheckSpecifier(ctx context.Context, specifier string) error {
	return f(ctx, specifier)
}

// AllowAll is a Checker that never denies access, the default for
// embedders with no sandboxing requirement.
var AllowAll Checker = CheckerFunc(func(context.Context, string) error { return nil })
