package pipeline

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/couchcryptid/appfunctions-sdk/internal/common"
	"github.com/couchcryptid/appfunctions-sdk/pkg/dtos"
)

// TargetKind tags the pipeline's target-type variant: raw bytes, the event
// DTO, or an arbitrary custom type decoded by JSON.
type TargetKind int

const (
	// TargetRaw passes the envelope payload through unchanged.
	TargetRaw TargetKind = iota
	// TargetEvent decodes the payload as either a wrapped add-event
	// request or a bare event, accepting base64-wrapped JSON too.
	TargetEvent
	// TargetCustom decodes JSON into a fresh copy of Example's type.
	TargetCustom
)

// Target describes the shape a pipeline's inbound payload decodes into.
type Target struct {
	Kind TargetKind
	// Example is the zero value of the custom target type, used only when
	// Kind is TargetCustom; reflect.New(reflect.TypeOf(Example)) allocates
	// a fresh instance per message so no state leaks across messages.
	Example any
}

// RawTarget is the target for pipelines whose functions want the envelope
// payload verbatim.
func RawTarget() Target { return Target{Kind: TargetRaw} }

// EventTarget is the target for pipelines that expect an AddEventRequest or
// bare Event payload.
func EventTarget() Target { return Target{Kind: TargetEvent} }

// CustomTarget is the target for pipelines that decode into an
// application-defined type. Pass a zero value of that type, e.g.
// CustomTarget(MyStruct{}).
func CustomTarget(example any) Target { return Target{Kind: TargetCustom, Example: example} }

// decodeTarget dispatches on the target kind. The returned map carries the
// devicename/profilename/sourcename values the event path populates into
// the context's values map; callers copy them in under the ctx lock.
func decodeTarget(target Target, envelope common.MessageEnvelope) (any, map[string]string, error) {
	switch target.Kind {
	case TargetRaw:
		return envelope.Payload, nil, nil

	case TargetEvent:
		return decodeEventTarget(envelope.Payload)

	case TargetCustom:
		if envelope.ContentType != common.ContentTypeJSON && envelope.ContentType != "application/json; charset=utf-8" {
			return nil, nil, fmt.Errorf("target type requires JSON content, got %q", envelope.ContentType)
		}
		fresh := reflect.New(reflect.TypeOf(target.Example)).Interface()
		if err := json.Unmarshal(envelope.Payload, fresh); err != nil {
			return nil, nil, fmt.Errorf("unmarshal custom target: %w", err)
		}
		return reflect.ValueOf(fresh).Elem().Interface(), nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown target kind %d", target.Kind)
	}
}

// decodeEventTarget tries, in order: a wrapped AddEventRequest, then a bare
// Event. The payload may itself be base64-encoded JSON, which is detected
// and transparently decoded first.
func decodeEventTarget(payload []byte) (any, map[string]string, error) {
	payload = maybeDecodeBase64(payload)

	var wrapped dtos.AddEventRequest
	if err := json.Unmarshal(payload, &wrapped); err == nil && wrapped.Event.DeviceName != "" {
		return wrapped.Event, eventValues(wrapped.Event), nil
	}

	var bare dtos.Event
	if err := json.Unmarshal(payload, &bare); err == nil && bare.DeviceName != "" {
		return bare, eventValues(bare), nil
	}

	return nil, nil, fmt.Errorf("payload is neither a valid AddEventRequest nor a valid Event")
}

func eventValues(e dtos.Event) map[string]string {
	return map[string]string{
		"devicename":  e.DeviceName,
		"profilename": e.ProfileName,
		"sourcename":  e.SourceName,
	}
}

// maybeDecodeBase64 detects a payload that is itself base64-encoded JSON
// (rather than plain JSON bytes) and transparently decodes it. Plain JSON
// always starts with '{' or '[' once whitespace is trimmed; base64 text
// does not, so the distinction is made on the first non-whitespace byte.
func maybeDecodeBase64(payload []byte) []byte {
	trimmed := trimLeadingSpace(payload)
	if len(trimmed) == 0 {
		return payload
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return payload
	}
	decoded, err := base64.StdEncoding.DecodeString(string(trimmed))
	if err != nil {
		return payload
	}
	return decoded
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) {
		switch b[i] {
		case ' ', '\t', '\n', '\r':
			i++
			continue
		}
		break
	}
	return b[i:]
}
