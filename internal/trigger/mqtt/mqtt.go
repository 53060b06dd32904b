// Package mqtt implements the MQTT trigger: one subscription per
// configured topic, a bounded connect retry window, four authentication
// modes, and content-type inference by first payload byte.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/couchcryptid/appfunctions-sdk/internal/appfunction"
	"github.com/couchcryptid/appfunctions-sdk/internal/bootstrap/container"
	"github.com/couchcryptid/appfunctions-sdk/internal/common"
	"github.com/couchcryptid/appfunctions-sdk/internal/pipeline"
	"github.com/couchcryptid/appfunctions-sdk/internal/trigger"
	"github.com/couchcryptid/appfunctions-sdk/pkg/interfaces"
)

// AuthMode names the four supported MQTT authentication modes.
type AuthMode string

const (
	AuthModeNone             AuthMode = "none"
	AuthModeUsernamePassword AuthMode = "usernamepassword"
	AuthModeClientCert       AuthMode = "clientcert"
	AuthModeCACert           AuthMode = "cacert"
)

// Config controls the MQTT trigger.
type Config struct {
	BrokerURL       string
	ClientID        string
	BaseTopic       string
	Topics          []string
	QoS             byte
	Retain          bool
	KeepAlive            time.Duration
	ConnectTimeout       time.Duration
	ConnectRetry         common.RetryConfig
	AutoReconnect        bool
	MaxReconnectInterval time.Duration
	PublishTopic         string // response topic template, empty disables publishing

	AuthMode   AuthMode
	SecretName string // name passed to SecretProvider.GetSecret

	// LastWill is published if the client disconnects uncleanly. Empty
	// Topic disables it.
	LastWillTopic   string
	LastWillPayload string
	LastWillQoS     byte
	LastWillRetain  bool
}

// Trigger is the MQTT transport binding.
type Trigger struct {
	cfg       Config
	processor *trigger.MessageProcessor
	dic       *container.Container
	secrets   interfaces.SecretProvider
	logger    *slog.Logger

	client paho.Client
}

// New creates an MQTT Trigger. It does not connect until Initialize is
// called.
func New(cfg Config, processor *trigger.MessageProcessor, dic *container.Container, secrets interfaces.SecretProvider, logger *slog.Logger) *Trigger {
	return &Trigger{cfg: cfg, processor: processor, dic: dic, secrets: secrets, logger: logger}
}

// Initialize connects to the broker (retrying within the configured
// window), subscribes to every configured topic, and returns a teardown
// that unsubscribes and disconnects.
func (t *Trigger) Initialize(ctxDone <-chan struct{}, wg *sync.WaitGroup) (func(), error) {
	opts, err := t.buildClientOptions()
	if err != nil {
		return nil, fmt.Errorf("mqtt trigger: %w", err)
	}

	t.client = paho.NewClient(opts)

	connectCtx, cancel := context.WithTimeout(context.Background(), t.cfg.ConnectRetry.MaxElapsed+t.cfg.ConnectTimeout)
	defer cancel()

	err = common.Retry(connectCtx, t.cfg.ConnectRetry, func() error {
		token := t.client.Connect()
		if !token.WaitTimeout(t.cfg.ConnectTimeout) {
			return fmt.Errorf("connect to %s timed out", t.cfg.BrokerURL)
		}
		return token.Error()
	})
	if err != nil {
		return nil, fmt.Errorf("mqtt trigger: failed to connect to %s: %w", t.cfg.BrokerURL, err)
	}

	for _, topic := range t.cfg.Topics {
		fullTopic := common.JoinBaseTopic(t.cfg.BaseTopic, topic)
		token := t.client.Subscribe(fullTopic, t.cfg.QoS, t.handleMessage(fullTopic))
		if !token.WaitTimeout(t.cfg.ConnectTimeout) {
			return nil, fmt.Errorf("mqtt trigger: subscribe to %s timed out", fullTopic)
		}
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("mqtt trigger: subscribe to %s: %w", fullTopic, err)
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctxDone
	}()

	return func() {
		for _, topic := range t.cfg.Topics {
			t.client.Unsubscribe(common.JoinBaseTopic(t.cfg.BaseTopic, topic))
		}
		t.client.Disconnect(uint(t.cfg.ConnectTimeout.Milliseconds()))
	}, nil
}

// handleMessage returns the per-topic subscribe callback. The callback
// hands the message off to a background task so the paho client's receive
// loop is never blocked by pipeline execution.
func (t *Trigger) handleMessage(topic string) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		payload := msg.Payload()
		contentType := inferContentType(payload)
		correlationID := uuid.NewString()

		ctx := appfunction.NewContext(correlationID, contentType, t.dic)
		envelope := common.MessageEnvelope{
			CorrelationID: correlationID,
			ContentType:   contentType,
			Payload:       payload,
			ReceivedTopic: topic,
		}

		go t.processor.MessageReceived(ctx, envelope, t.publishResponse)
	}
}

func (t *Trigger) publishResponse(ctx *appfunction.Context, p *pipeline.Pipeline) {
	if t.cfg.PublishTopic == "" || len(ctx.ResponseData()) == 0 {
		return
	}

	topic, err := ctx.ApplyValues(t.cfg.PublishTopic)
	if err != nil {
		t.logger.Error("mqtt trigger: failed to resolve publish topic", "error", err, "pipeline_id", p.ID())
		return
	}
	topic = common.JoinBaseTopic(t.cfg.BaseTopic, topic)

	token := t.client.Publish(topic, t.cfg.QoS, t.cfg.Retain, ctx.ResponseData())
	if !token.WaitTimeout(t.cfg.ConnectTimeout) {
		t.logger.Error("mqtt trigger: publish timed out", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		t.logger.Error("mqtt trigger: publish failed", "topic", topic, "error", err)
	}
}

// inferContentType infers JSON vs CBOR from the first non-whitespace byte
// of payload: "{" or "[" implies JSON, anything else implies CBOR, since
// MQTT messages carry no content-type header.
func inferContentType(payload []byte) string {
	for _, b := range payload {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{', '[':
			return common.ContentTypeJSON
		default:
			return common.ContentTypeCBOR
		}
	}
	return common.ContentTypeJSON
}

func (t *Trigger) buildClientOptions() (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().
		AddBroker(t.cfg.BrokerURL).
		SetClientID(t.cfg.ClientID).
		SetKeepAlive(t.cfg.KeepAlive).
		SetAutoReconnect(t.cfg.AutoReconnect).
		SetConnectTimeout(t.cfg.ConnectTimeout)

	if t.cfg.MaxReconnectInterval > 0 {
		opts.SetMaxReconnectInterval(t.cfg.MaxReconnectInterval)
	}

	if t.cfg.LastWillTopic != "" {
		opts.SetWill(t.cfg.LastWillTopic, t.cfg.LastWillPayload, t.cfg.LastWillQoS, t.cfg.LastWillRetain)
	}

	switch t.cfg.AuthMode {
	case AuthModeNone, "":
		// No credentials, no TLS client verification beyond the system pool.

	case AuthModeUsernamePassword:
		secret, err := t.secrets.GetSecret(t.cfg.SecretName, "username", "password")
		if err != nil {
			return nil, fmt.Errorf("fetch username/password secret %q: %w", t.cfg.SecretName, err)
		}
		username, ok := secret["username"]
		if !ok || username == "" {
			return nil, fmt.Errorf("secret %q missing username", t.cfg.SecretName)
		}
		password, ok := secret["password"]
		if !ok || password == "" {
			return nil, fmt.Errorf("secret %q missing password", t.cfg.SecretName)
		}
		opts.SetUsername(username)
		opts.SetPassword(password)

	case AuthModeClientCert:
		secret, err := t.secrets.GetSecret(t.cfg.SecretName, "clientcert", "clientkey", "cacert")
		if err != nil {
			return nil, fmt.Errorf("fetch client-cert secret %q: %w", t.cfg.SecretName, err)
		}
		cert, err := tls.X509KeyPair([]byte(secret["clientcert"]), []byte(secret["clientkey"]))
		if err != nil {
			return nil, fmt.Errorf("parse client certificate/key from secret %q: %w", t.cfg.SecretName, err)
		}
		tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}}
		if ca, ok := secret["cacert"]; ok && ca != "" {
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM([]byte(ca)) {
				return nil, fmt.Errorf("secret %q: failed to parse CA certificate", t.cfg.SecretName)
			}
			tlsCfg.RootCAs = pool
		}
		opts.SetTLSConfig(tlsCfg)

	case AuthModeCACert:
		secret, err := t.secrets.GetSecret(t.cfg.SecretName, "cacert")
		if err != nil {
			return nil, fmt.Errorf("fetch ca-cert secret %q: %w", t.cfg.SecretName, err)
		}
		ca, ok := secret["cacert"]
		if !ok || ca == "" {
			return nil, fmt.Errorf("secret %q missing cacert", t.cfg.SecretName)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(ca)) {
			return nil, fmt.Errorf("secret %q: failed to parse CA certificate", t.cfg.SecretName)
		}
		opts.SetTLSConfig(&tls.Config{RootCAs: pool})

	default:
		return nil, fmt.Errorf("unsupported mqtt auth mode %q", t.cfg.AuthMode)
	}

	opts.SetDefaultPublishHandler(func(_ paho.Client, msg paho.Message) {
		t.logger.Warn("mqtt trigger: received message on unexpected topic", "topic", msg.Topic())
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		t.logger.Error("mqtt trigger: connection lost", "error", err)
	})

	return opts, nil
}
