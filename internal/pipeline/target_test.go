package pipeline_test

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/appfunctions-sdk/internal/appfunction"
	"github.com/couchcryptid/appfunctions-sdk/internal/common"
	"github.com/couchcryptid/appfunctions-sdk/internal/pipeline"
	"github.com/couchcryptid/appfunctions-sdk/pkg/dtos"
)

func newRuntime() *pipeline.Runtime {
	return pipeline.New(testLogger(), nil, nil, nil)
}

func TestSetDefaultTarget_SteersDefaultPipelineDecode(t *testing.T) {
	r := newRuntime()
	r.SetDefaultTarget(pipeline.EventTarget())

	event := dtos.Event{DeviceName: "d1", ProfileName: "p1", SourceName: "s1"}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	ctx := appfunction.NewContext("corr-1", common.ContentTypeJSON, nil)
	data, err := r.DecodeMessageForTarget(ctx, common.MessageEnvelope{Payload: payload}, r.GetDefaultPipeline().TargetInfo())
	require.NoError(t, err)

	decoded, ok := data.(dtos.Event)
	require.True(t, ok)
	assert.Equal(t, event, decoded)
}

func TestDecodeMessageForTarget_Raw(t *testing.T) {
	r := newRuntime()
	ctx := appfunction.NewContext("corr-1", common.ContentTypeJSON, nil)

	data, err := r.DecodeMessageForTarget(ctx, common.MessageEnvelope{Payload: []byte("raw-bytes")}, pipeline.RawTarget())
	require.NoError(t, err)
	assert.Equal(t, []byte("raw-bytes"), data)
}

func TestDecodeMessageForTarget_Event_BareJSON(t *testing.T) {
	r := newRuntime()
	ctx := appfunction.NewContext("corr-1", common.ContentTypeJSON, nil)

	event := dtos.Event{DeviceName: "d1", ProfileName: "p1", SourceName: "s1"}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	data, err := r.DecodeMessageForTarget(ctx, common.MessageEnvelope{Payload: payload, CorrelationID: "corr-1"}, pipeline.EventTarget())
	require.NoError(t, err)

	decoded, ok := data.(dtos.Event)
	require.True(t, ok)
	assert.Equal(t, event, decoded)

	v, _ := ctx.GetValue("devicename")
	assert.Equal(t, "d1", v)
}

func TestDecodeMessageForTarget_Event_WrappedAddEventRequest(t *testing.T) {
	r := newRuntime()
	ctx := appfunction.NewContext("corr-1", common.ContentTypeJSON, nil)

	req := dtos.AddEventRequest{
		APIVersion: "v3",
		Event:      dtos.Event{DeviceName: "d2", ProfileName: "p2", SourceName: "s2"},
	}
	payload, err := json.Marshal(req)
	require.NoError(t, err)

	data, err := r.DecodeMessageForTarget(ctx, common.MessageEnvelope{Payload: payload}, pipeline.EventTarget())
	require.NoError(t, err)

	decoded, ok := data.(dtos.Event)
	require.True(t, ok)
	assert.Equal(t, req.Event, decoded)
}

func TestDecodeMessageForTarget_Event_Base64Wrapped(t *testing.T) {
	r := newRuntime()
	ctx := appfunction.NewContext("corr-1", common.ContentTypeJSON, nil)

	event := dtos.Event{DeviceName: "d3", ProfileName: "p3", SourceName: "s3"}
	rawJSON, err := json.Marshal(event)
	require.NoError(t, err)
	encoded := []byte(base64.StdEncoding.EncodeToString(rawJSON))

	data, err := r.DecodeMessageForTarget(ctx, common.MessageEnvelope{Payload: encoded}, pipeline.EventTarget())
	require.NoError(t, err)

	decoded, ok := data.(dtos.Event)
	require.True(t, ok)
	assert.Equal(t, event, decoded)
}

func TestDecodeMessageForTarget_Event_InvalidPayload(t *testing.T) {
	r := newRuntime()
	ctx := appfunction.NewContext("corr-1", common.ContentTypeJSON, nil)

	_, err := r.DecodeMessageForTarget(ctx, common.MessageEnvelope{Payload: []byte("not json or base64 {{{")}, pipeline.EventTarget())
	assert.Error(t, err)
}

type customPayload struct {
	Name string `json:"name"`
}

func TestDecodeMessageForTarget_Custom(t *testing.T) {
	r := newRuntime()
	ctx := appfunction.NewContext("corr-1", common.ContentTypeJSON, nil)

	payload, err := json.Marshal(customPayload{Name: "widget"})
	require.NoError(t, err)

	data, err := r.DecodeMessageForTarget(ctx, common.MessageEnvelope{
		Payload:     payload,
		ContentType: common.ContentTypeJSON,
	}, pipeline.CustomTarget(customPayload{}))
	require.NoError(t, err)

	decoded, ok := data.(customPayload)
	require.True(t, ok)
	assert.Equal(t, "widget", decoded.Name)
}

func TestDecodeMessageForTarget_Custom_RequiresJSONContentType(t *testing.T) {
	r := newRuntime()
	ctx := appfunction.NewContext("corr-1", "text/plain", nil)

	_, err := r.DecodeMessageForTarget(ctx, common.MessageEnvelope{
		Payload:     []byte(`{"name":"widget"}`),
		ContentType: "text/plain",
	}, pipeline.CustomTarget(customPayload{}))
	assert.Error(t, err)
}
