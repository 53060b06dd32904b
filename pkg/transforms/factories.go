package transforms

import (
	"fmt"
	"strings"
	"sync"

	"github.com/couchcryptid/appfunctions-sdk/pkg/interfaces"
)

// factories maps a function name to the factory that builds it from string
// parameters, so configurable-pipeline loaders can assemble transform
// chains from configuration. Built-ins register themselves below; custom
// user code registers through RegisterFactory. Names are matched
// case-insensitively.
var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]interfaces.FunctionFactory)
)

// RegisterFactory adds a named AppFunction factory, overwriting any
// previous registration under the same name.
func RegisterFactory(name string, factory interfaces.FunctionFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[strings.ToLower(name)] = factory
}

// NewFunction builds the named function from parameters, erroring when no
// factory is registered under name or the factory rejects the parameters.
func NewFunction(name string, parameters map[string]string) (interfaces.AppFunction, error) {
	factoriesMu.RLock()
	factory, ok := factories[strings.ToLower(name)]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no pipeline function registered under %q", name)
	}
	return factory(parameters)
}

func init() {
	RegisterFactory("ToJSON", func(_ map[string]string) (interfaces.AppFunction, error) {
		return ToJSON, nil
	})
	RegisterFactory("SetResponseData", func(_ map[string]string) (interfaces.AppFunction, error) {
		return SetResponseData, nil
	})
	RegisterFactory("ValueFilter", func(parameters map[string]string) (interfaces.AppFunction, error) {
		key := parameters["valuekey"]
		if key == "" {
			return nil, fmt.Errorf("ValueFilter requires a valuekey parameter")
		}
		var accepted []string
		for _, v := range strings.Split(parameters["acceptedvalues"], ",") {
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				accepted = append(accepted, trimmed)
			}
		}
		if len(accepted) == 0 {
			return nil, fmt.Errorf("ValueFilter requires a non-empty acceptedvalues parameter")
		}
		return NewValueFilter(key, accepted...), nil
	})
}
