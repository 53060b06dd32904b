// Package messagebus implements the message-bus trigger: a worker per
// subscribed topic, feeding the shared message processor, with an optional
// reply published back to a per-pipeline response topic.
//
// Topic wildcards ("#", "+") are an application-level matching concept;
// Kafka itself has no wildcard subscriptions, so the trigger subscribes to
// the literal topics in Config.Topics (each prefixed with the base topic)
// and lets the pipeline runtime's GetMatchingPipelines decide which
// pipelines a given message actually belongs to.
package messagebus

import (
	"context"
	"log/slog"
	"sync"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/appfunctions-sdk/internal/appfunction"
	"github.com/couchcryptid/appfunctions-sdk/internal/bootstrap/container"
	"github.com/couchcryptid/appfunctions-sdk/internal/common"
	"github.com/couchcryptid/appfunctions-sdk/internal/pipeline"
	"github.com/couchcryptid/appfunctions-sdk/internal/trigger"
)

// Config controls the message-bus trigger.
type Config struct {
	Brokers       []string
	GroupID       string
	BaseTopic     string
	Topics        []string // literal topics to subscribe to, unprefixed
	PublishTopic  string   // response topic template, may contain {key} tokens; empty disables publishing
	RequiredAcks  kafkago.RequiredAcks
}

// Trigger is the Kafka-backed message-bus binding.
type Trigger struct {
	cfg       Config
	processor *trigger.MessageProcessor
	dic       *container.Container
	logger    *slog.Logger

	writer  *kafkago.Writer
	readers []*kafkago.Reader
}

// New creates a message-bus Trigger. It does not connect until Initialize
// is called.
func New(cfg Config, processor *trigger.MessageProcessor, dic *container.Container, logger *slog.Logger) *Trigger {
	return &Trigger{cfg: cfg, processor: processor, dic: dic, logger: logger}
}

// Initialize starts one reader goroutine per configured topic and, if a
// publish topic is configured, a shared writer for replies. It returns a
// teardown closing every reader and the writer.
func (t *Trigger) Initialize(ctxDone <-chan struct{}, wg *sync.WaitGroup) (func(), error) {
	if t.cfg.PublishTopic != "" {
		t.writer = &kafkago.Writer{
			Addr:         kafkago.TCP(t.cfg.Brokers...),
			Balancer:     &kafkago.LeastBytes{},
			RequiredAcks: t.cfg.RequiredAcks,
		}
	}

	for _, topic := range t.cfg.Topics {
		fullTopic := common.JoinBaseTopic(t.cfg.BaseTopic, topic)
		reader := kafkago.NewReader(kafkago.ReaderConfig{
			Brokers: t.cfg.Brokers,
			GroupID: t.cfg.GroupID,
			Topic:   fullTopic,
		})
		t.readers = append(t.readers, reader)

		wg.Add(1)
		go t.runReader(ctxDone, wg, reader, fullTopic)
	}

	return func() {
		for _, r := range t.readers {
			if err := r.Close(); err != nil {
				t.logger.Error("message-bus trigger: failed to close reader", "error", err)
			}
		}
		if t.writer != nil {
			if err := t.writer.Close(); err != nil {
				t.logger.Error("message-bus trigger: failed to close writer", "error", err)
			}
		}
	}, nil
}

func (t *Trigger) runReader(ctxDone <-chan struct{}, wg *sync.WaitGroup, reader *kafkago.Reader, topic string) {
	defer wg.Done()

	readCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-ctxDone
		cancel()
	}()

	for {
		msg, err := reader.ReadMessage(readCtx)
		if err != nil {
			if readCtx.Err() != nil {
				return
			}
			t.logger.Error("message-bus trigger: read error", "topic", topic, "error", err)
			continue
		}
		t.handleMessage(msg, topic)
	}
}

func (t *Trigger) handleMessage(msg kafkago.Message, topic string) {
	correlationID := headerValue(msg.Headers, "correlationid")
	contentType := headerValue(msg.Headers, "content-type")
	if contentType == "" {
		contentType = common.ContentTypeJSON
	}

	ctx := appfunction.NewContext(correlationID, contentType, t.dic)
	envelope := common.MessageEnvelope{
		CorrelationID: correlationID,
		ContentType:   contentType,
		Payload:       msg.Value,
		ReceivedTopic: topic,
	}

	t.processor.MessageReceived(ctx, envelope, t.publishResponse)
}

func (t *Trigger) publishResponse(ctx *appfunction.Context, p *pipeline.Pipeline) {
	if t.writer == nil || len(ctx.ResponseData()) == 0 {
		return
	}

	topic, err := ctx.ApplyValues(t.cfg.PublishTopic)
	if err != nil {
		t.logger.Error("message-bus trigger: failed to resolve publish topic", "error", err, "pipeline_id", p.ID())
		return
	}
	topic = common.JoinBaseTopic(t.cfg.BaseTopic, topic)

	err = t.writer.WriteMessages(context.Background(), kafkago.Message{
		Topic: topic,
		Value: ctx.ResponseData(),
		Headers: []kafkago.Header{
			{Key: "correlationid", Value: []byte(ctx.CorrelationID())},
			{Key: "content-type", Value: []byte(ctx.ResponseContentType())},
		},
	})
	if err != nil {
		t.logger.Error("message-bus trigger: failed to publish response", "topic", topic, "error", err)
	}
}

func headerValue(headers []kafkago.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
