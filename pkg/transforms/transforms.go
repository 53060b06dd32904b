// Package transforms holds a handful of illustrative pipeline functions
// built on the SDK's public AppFunction signature. They exist so tests and
// the reference cmd/appfunctions binary have something real to chain, not
// as a stand-in for a full exporter library.
package transforms

import (
	"encoding/json"
	"fmt"

	"github.com/couchcryptid/appfunctions-sdk/pkg/interfaces"
)

// ToJSON marshals data to JSON and sets it as the context's response data,
// continuing the pipeline with the encoded bytes as input to the next
// function.
func ToJSON(ctx interfaces.AppFunctionContext, data any) (bool, any) {
	if data == nil {
		return false, fmt.Errorf("ToJSON: no data received")
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return false, fmt.Errorf("ToJSON: %w", err)
	}

	ctx.SetResponseContentType("application/json")
	ctx.SetResponseData(encoded)
	return true, encoded
}

// SetResponseData sets whatever bytes data contains as the context's
// response data, useful as a pipeline's final stage.
func SetResponseData(ctx interfaces.AppFunctionContext, data any) (bool, any) {
	b, ok := data.([]byte)
	if !ok {
		return false, fmt.Errorf("SetResponseData: expected []byte, got %T", data)
	}
	ctx.SetResponseData(b)
	return false, nil
}

// NewValueFilter returns a transform that stops the pipeline cleanly (a
// non-error short circuit) whenever the named context value isn't found
// among acceptedValues, letting pipelines filter on values the decoder
// populated (e.g. "devicename").
func NewValueFilter(valueKey string, acceptedValues ...string) interfaces.AppFunction {
	accepted := make(map[string]bool, len(acceptedValues))
	for _, v := range acceptedValues {
		accepted[v] = true
	}

	return func(ctx interfaces.AppFunctionContext, data any) (bool, any) {
		v, ok := ctx.GetValue(valueKey)
		if !ok || !accepted[v] {
			return false, nil
		}
		return true, data
	}
}
