//go:build integration

package integration_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/appfunctions-sdk/internal/pipeline"
	"github.com/couchcryptid/appfunctions-sdk/internal/trigger"
	"github.com/couchcryptid/appfunctions-sdk/internal/trigger/messagebus"
	"github.com/couchcryptid/appfunctions-sdk/pkg/interfaces"
)

const (
	testSourceTopic = "test-events"
	testReplyTopic  = "test-replies"
)

// startKafka runs a single-node Kafka broker in a container and returns its
// bootstrap address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	ctr, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("appfunctions-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := ctr.Terminate(context.Background()); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := ctr.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err, "dial broker")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	ctrlConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err, "dial controller")
	defer ctrlConn.Close()

	require.NoError(t, ctrlConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func headerOf(headers []kafkago.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// TestMessageBusTrigger_RoundTrip drives a real broker end to end: a message
// published to the subscribe topic runs through a pipeline that echoes the
// payload as response data, and the trigger publishes the reply, correlation
// id intact, to the configured publish topic.
func TestMessageBusTrigger_RoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testReplyTopic)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	rt := pipeline.New(logger, nil, nil, nil)
	echo := func(c interfaces.AppFunctionContext, data any) (bool, any) {
		c.SetResponseContentType("application/json")
		c.SetResponseData(data.([]byte))
		return true, data
	}
	require.NoError(t, rt.AddFunctionPipeline("echo", []string{"#"}, []interfaces.AppFunction{echo}, pipeline.RawTarget()))

	processor := trigger.NewMessageProcessor(rt, nil, logger)
	tr := messagebus.New(messagebus.Config{
		Brokers:      []string{broker},
		GroupID:      fmt.Sprintf("appfunctions-it-%d", time.Now().UnixNano()),
		Topics:       []string{testSourceTopic},
		PublishTopic: testReplyTopic,
	}, processor, nil, logger)

	ctxDone := make(chan struct{})
	var wg sync.WaitGroup
	teardown, err := tr.Initialize(ctxDone, &wg)
	require.NoError(t, err)

	writer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	defer writer.Close()
	require.NoError(t, writer.WriteMessages(ctx, kafkago.Message{
		Value:   []byte(`{"x":1}`),
		Headers: []kafkago.Header{{Key: "correlationid", Value: []byte("it-corr-1")}},
	}))

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: []string{broker},
		GroupID: fmt.Sprintf("appfunctions-it-sink-%d", time.Now().UnixNano()),
		Topic:   testReplyTopic,
	})
	defer reader.Close()

	readCtx, cancelRead := context.WithTimeout(ctx, 60*time.Second)
	defer cancelRead()
	msg, err := reader.ReadMessage(readCtx)
	require.NoError(t, err, "read reply from publish topic")

	assert.JSONEq(t, `{"x":1}`, string(msg.Value))
	assert.Equal(t, "it-corr-1", headerOf(msg.Headers, "correlationid"))
	assert.Equal(t, "application/json", headerOf(msg.Headers, "content-type"))

	close(ctxDone)
	wg.Wait()
	teardown()
}
