// Package ext registers the source fetcher as a ski script module, the
// thin "embedded script extension registration" spec §1 marks out of
// scope as an external collaborator that merely uses the fetcher.
package ext

import (
	"context"

	"github.com/grafana/sobek"
	"github.com/shiroyk/ski/js"
	"github.com/shiroyk/ski/modules"

	"github.com/shiroyk/ski-ext/sourcefetch"
)

func init() {
	modules.Register("sourcefetch", new(Module))
}

// Module adapts a *sourcefetch.Fetcher into a ski module constructor.
// Scripts that `new sourcefetch(...)` get one bound to the module-level
// Fetcher configured by the embedding application via Configure.
type Module struct{}

var fetcher *sourcefetch.Fetcher

// Configure sets the Fetcher instantiated scripts bind to. Must be called
// before any script imports the module; embedding applications own
// construction (Options, cache backend, permissions) per SPEC_FULL.md's
// config package.
func Configure(f *sourcefetch.Fetcher) { fetcher = f }

func (Module) Instantiate(rt *sobek.Runtime) (sobek.Value, error) {
	return rt.ToValue(func(call sobek.ConstructorCall) *sobek.Object {
		if fetcher == nil {
			js.Throw(rt, errUnconfigured)
		}
		return rt.ToValue(&binding{fetcher}).ToObject(rt)
	}), nil
}

var errUnconfigured = &notConfiguredError{}

type notConfiguredError struct{}

func (*notConfiguredError) Error() string {
	return "sourcefetch: ext.Configure was never called with a Fetcher"
}

// binding is the object exposed to scripts: synchronous wrappers over the
// Fetcher's public operations, translating sourcefetch.Error into thrown
// JS exceptions.
type binding struct {
	fetcher *sourcefetch.Fetcher
}

// Fetch resolves specifier and returns its source text, or throws.
func (b *binding) Fetch(call sobek.FunctionCall, rt *sobek.Runtime) sobek.Value {
	specifier := call.Argument(0).String()
	artifact, err := b.fetcher.Fetch(context.Background(), specifier)
	if err != nil {
		js.Throw(rt, err)
	}
	return rt.ToValue(map[string]any{
		"specifier":  artifact.FinalSpecifier,
		"mediaType":  artifact.MediaType.String(),
		"sourceText": artifact.SourceText,
		"headers":    artifact.Headers,
	})
}

// GetSource synchronously returns the cached or freshly-read-local source
// for specifier, or undefined.
func (b *binding) GetSource(call sobek.FunctionCall, rt *sobek.Runtime) sobek.Value {
	specifier := call.Argument(0).String()
	artifact, ok := b.fetcher.GetSource(specifier)
	if !ok {
		return sobek.Undefined()
	}
	return rt.ToValue(map[string]any{
		"specifier":  artifact.FinalSpecifier,
		"mediaType":  artifact.MediaType.String(),
		"sourceText": artifact.SourceText,
		"headers":    artifact.Headers,
	})
}
