package definition

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var compareOpts = cmp.Options{
	cmpopts.IgnoreFields(ServiceDefinition{}, "SourcePath"),
	cmpopts.EquateEmpty(),
}

// Equal reports whether two definitions have the same content. Where a
// definition was loaded from does not matter.
func Equal(a, b *ServiceDefinition) bool {
	if a == nil || b == nil {
		return a == b
	}
	return cmp.Equal(a, b, compareOpts)
}

// Diff returns a human readable difference, empty when Equal.
func Diff(a, b *ServiceDefinition) string {
	return cmp.Diff(a, b, compareOpts)
}
