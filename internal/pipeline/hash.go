package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"reflect"
	"runtime"
	"strings"

	"github.com/couchcryptid/appfunctions-sdk/pkg/interfaces"
)

// computeHash derives a deterministic string from the sequence of transform
// function identities: stable as long as the transform list is unchanged,
// different for any structural change. Function identity is taken from the
// compiled function's fully-qualified name, which changes whenever the
// transform list is reordered, replaced, lengthened, or shortened.
func computeHash(transforms []interfaces.AppFunction) string {
	names := make([]string, len(transforms))
	for i, fn := range transforms {
		names[i] = functionName(fn)
	}
	sum := sha256.Sum256([]byte(strings.Join(names, "|")))
	return hex.EncodeToString(sum[:])
}

func functionName(fn interfaces.AppFunction) string {
	if fn == nil {
		return "<nil>"
	}
	ptr := reflect.ValueOf(fn).Pointer()
	if f := runtime.FuncForPC(ptr); f != nil {
		return f.Name()
	}
	return "<unknown>"
}
