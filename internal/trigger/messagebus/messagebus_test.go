package messagebus

import (
	"io"
	"log/slog"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/appfunctions-sdk/internal/appfunction"
	"github.com/couchcryptid/appfunctions-sdk/internal/bootstrap/metrics"
	"github.com/couchcryptid/appfunctions-sdk/internal/common"
	"github.com/couchcryptid/appfunctions-sdk/internal/pipeline"
	"github.com/couchcryptid/appfunctions-sdk/internal/trigger"
	"github.com/couchcryptid/appfunctions-sdk/pkg/interfaces"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func passThrough(_ interfaces.AppFunctionContext, data any) (bool, any) { return true, data }

type recordingBinding struct {
	matches     []*pipeline.Pipeline
	processed   []string
	contentType string
}

func (b *recordingBinding) DecodeMessage(_ *appfunction.Context, envelope common.MessageEnvelope, _ []*pipeline.Pipeline) (any, error) {
	b.contentType = envelope.ContentType
	return envelope.Payload, nil
}

func (b *recordingBinding) ProcessMessage(_ *appfunction.Context, _ any, p *pipeline.Pipeline) error {
	b.processed = append(b.processed, p.ID())
	return nil
}

func (b *recordingBinding) GetMatchingPipelines(_ string) []*pipeline.Pipeline { return b.matches }
func (b *recordingBinding) GetDefaultPipeline() *pipeline.Pipeline             { return nil }

func TestHeaderValue_FindsMatchingHeader(t *testing.T) {
	headers := []kafkago.Header{{Key: "correlationid", Value: []byte("corr-1")}}
	assert.Equal(t, "corr-1", headerValue(headers, "correlationid"))
}

func TestHeaderValue_MissingHeaderReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", headerValue(nil, "correlationid"))
}

func TestHandleMessage_DefaultsContentTypeToJSONWhenHeaderAbsent(t *testing.T) {
	r := pipeline.New(testLogger(), nil, nil, nil)
	require.NoError(t, r.AddFunctionPipeline("p1", []string{"#"}, []interfaces.AppFunction{passThrough}, pipeline.RawTarget()))
	p, _ := r.GetPipelineByID("p1")

	binding := &recordingBinding{matches: []*pipeline.Pipeline{p}}
	processor := trigger.NewMessageProcessor(binding, metrics.NewForTesting(), testLogger())

	tr := New(Config{}, processor, nil, testLogger())
	tr.handleMessage(kafkago.Message{Value: []byte("payload")}, "events")

	assert.Equal(t, common.ContentTypeJSON, binding.contentType)
	assert.Contains(t, binding.processed, "p1")
}

func TestPublishResponse_NoopWithoutWriter(t *testing.T) {
	tr := New(Config{}, nil, nil, testLogger())
	ctx := appfunction.NewContext("corr-1", common.ContentTypeJSON, nil)
	ctx.SetResponseData([]byte("reply"))

	r := pipeline.New(testLogger(), nil, nil, nil)
	require.NoError(t, r.AddFunctionPipeline("p1", []string{"#"}, []interfaces.AppFunction{passThrough}, pipeline.RawTarget()))
	p, _ := r.GetPipelineByID("p1")

	tr.publishResponse(ctx, p)
}

func TestPublishResponse_NoopWithEmptyResponseData(t *testing.T) {
	tr := &Trigger{cfg: Config{PublishTopic: "replies/{x}"}, logger: testLogger(), writer: &kafkago.Writer{}}
	ctx := appfunction.NewContext("corr-1", common.ContentTypeJSON, nil)

	r := pipeline.New(testLogger(), nil, nil, nil)
	require.NoError(t, r.AddFunctionPipeline("p1", []string{"#"}, []interfaces.AppFunction{passThrough}, pipeline.RawTarget()))
	p, _ := r.GetPipelineByID("p1")

	tr.publishResponse(ctx, p)
}
