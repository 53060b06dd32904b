// Package service assembles the pieces every other internal package only
// half-owns into a runnable process: trigger + runtime + store-and-forward +
// metrics + web server, plus the two-stage cancellation and wait-group
// signaling that drives graceful shutdown.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/appfunctions-sdk/internal/bootstrap/config"
	"github.com/couchcryptid/appfunctions-sdk/internal/bootstrap/container"
	"github.com/couchcryptid/appfunctions-sdk/internal/bootstrap/logging"
	"github.com/couchcryptid/appfunctions-sdk/internal/bootstrap/metrics"
	"github.com/couchcryptid/appfunctions-sdk/internal/bootstrap/secret"
	"github.com/couchcryptid/appfunctions-sdk/internal/common"
	"github.com/couchcryptid/appfunctions-sdk/internal/pipeline"
	"github.com/couchcryptid/appfunctions-sdk/internal/store"
	"github.com/couchcryptid/appfunctions-sdk/internal/trigger"
	httptrigger "github.com/couchcryptid/appfunctions-sdk/internal/trigger/http"
	messagebustrigger "github.com/couchcryptid/appfunctions-sdk/internal/trigger/messagebus"
	mqtttrigger "github.com/couchcryptid/appfunctions-sdk/internal/trigger/mqtt"
	"github.com/couchcryptid/appfunctions-sdk/internal/webserver"
	"github.com/couchcryptid/appfunctions-sdk/pkg/interfaces"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

// TriggerFactory builds a custom trigger, for callers of RegisterTrigger.
type TriggerFactory func(s *Service) (interfaces.Trigger, error)

// Service wires the runtime, the store-and-forward engine, the selected
// trigger, and the web server together, and owns the two cancellation
// events and two wait groups shutdown cascades through.
type Service struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Manager
	DIC     *container.Container
	Secrets *secret.InsecureProvider

	Runtime *pipeline.Runtime
	Store   *store.Engine

	webserver *webserver.Server

	trigger         interfaces.Trigger
	triggerTeardown func()
	customTriggers  map[string]TriggerFactory

	appWG    sync.WaitGroup
	appDone  chan struct{}
	appOnce  sync.Once

	sfWG    sync.WaitGroup
	sfDone  chan struct{}
	sfOnce  sync.Once

	sqliteStore *store.SQLiteStore
}

// New performs the initialize sequence: config, logger, secret provider,
// metrics, the store-and-forward database (if enabled), the pipeline
// runtime, the store-and-forward engine, and the web server. The
// trigger and, if enabled, the store-and-forward engine are brought up in
// Run, since trigger selection depends on configuration already loaded
// here.
func New() (*Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	config.LogOverrides(logger)

	secrets := secret.NewInsecureProvider()
	secrets.LoadFromEnviron()

	mgr := metrics.New()

	dic := container.New()
	dic.Register(container.LoggerKey, logger)
	dic.Register(container.SecretProviderKey, secrets)
	dic.Register(container.MetricsManagerKey, mgr)

	s := &Service{
		Config:         cfg,
		Logger:         logger,
		Metrics:        mgr,
		DIC:            dic,
		Secrets:        secrets,
		appDone:        make(chan struct{}),
		sfDone:         make(chan struct{}),
		customTriggers: make(map[string]TriggerFactory),
	}

	if cfg.StoreForwardEnabled {
		sqliteStore, err := store.NewSQLiteStore(cfg.StoreForwardDBPath)
		if err != nil {
			return nil, fmt.Errorf("open store-and-forward database: %w", err)
		}
		s.sqliteStore = sqliteStore
	}

	s.Runtime = pipeline.New(logger, mgr, nil, clockwork.NewRealClock())
	if strings.EqualFold(cfg.TargetType, "raw") {
		s.Runtime.SetDefaultTarget(pipeline.RawTarget())
	} else {
		s.Runtime.SetDefaultTarget(pipeline.EventTarget())
	}

	engineCfg := store.EngineConfig{
		Enabled:       cfg.StoreForwardEnabled,
		AppServiceKey: serviceKey(),
		Interval:      cfg.StoreForwardInterval,
		MaxRetryCount: cfg.StoreForwardMaxRetryCount,
	}
	var persistence store.Persistence
	if s.sqliteStore != nil {
		persistence = s.sqliteStore
	}
	s.Store = store.NewEngine(engineCfg, persistence, s.Runtime, mgr, logger, clockwork.NewRealClock())
	s.Runtime.SetForwardStore(s.Store)

	s.webserver = webserver.New(Version, cfg)

	return s, nil
}

// RegisterTrigger adds a user-defined trigger factory under name, selected
// when TRIGGER_TYPE matches name case-insensitively.
func (s *Service) RegisterTrigger(name string, factory TriggerFactory) {
	s.customTriggers[strings.ToLower(name)] = factory
}

// AddFunctionPipeline registers a new pipeline.
func (s *Service) AddFunctionPipeline(id string, topics []string, target pipeline.Target, transforms ...interfaces.AppFunction) error {
	return s.Runtime.AddFunctionPipeline(id, topics, transforms, target)
}

// SetDefaultFunctionsPipeline replaces the default pipeline's transforms.
func (s *Service) SetDefaultFunctionsPipeline(transforms ...interfaces.AppFunction) {
	s.Runtime.SetDefaultFunctionsPipeline(transforms)
}

// SetDefaultTarget replaces the default pipeline's decode target.
// TARGET_TYPE covers the raw and event targets; applications decoding into
// their own type call this with pipeline.CustomTarget.
func (s *Service) SetDefaultTarget(target pipeline.Target) {
	s.Runtime.SetDefaultTarget(target)
}

// AddCustomRoute registers an ordinary HTTP handler on the shared web
// server, rejecting the reserved admin/trigger paths.
func (s *Service) AddCustomRoute(pattern string, handler http.Handler) error {
	return s.webserver.AddCustomRoute(pattern, handler)
}

// selectTrigger picks the trigger named by TRIGGER_TYPE,
// case-insensitively: the three built-in types, or a user-registered
// factory.
func (s *Service) selectTrigger() (interfaces.Trigger, error) {
	kind := strings.ToLower(s.Config.TriggerType)

	switch kind {
	case "http":
		return httptrigger.New(s.Config.HTTPAddr, s.webserver.Mux(), s.Runtime, s.DIC, s.Metrics, s.Logger), nil

	case "messagebus":
		processor := trigger.NewMessageProcessor(s.Runtime, s.Metrics, s.Logger)
		cfg := messagebustrigger.Config{
			Brokers:      s.Config.MessageBusBrokers,
			GroupID:      s.Config.MessageBusGroupID,
			BaseTopic:    s.Config.MessageBusBaseTopic,
			Topics:       s.Config.MessageBusTopics,
			PublishTopic: s.Config.MessageBusPublishTopic,
		}
		return messagebustrigger.New(cfg, processor, s.DIC, s.Logger), nil

	case "mqtt":
		processor := trigger.NewMessageProcessor(s.Runtime, s.Metrics, s.Logger)
		cfg := mqtttrigger.Config{
			BrokerURL:      s.Config.MQTTBrokerURL,
			ClientID:       s.Config.MQTTClientID,
			BaseTopic:      s.Config.MQTTBaseTopic,
			Topics:         s.Config.MQTTTopics,
			QoS:            s.Config.MQTTQoS,
			Retain:         s.Config.MQTTRetain,
			KeepAlive:      s.Config.MQTTKeepAlive,
			ConnectTimeout: s.Config.MQTTConnectTimeout,
			ConnectRetry: common.RetryConfig{
				Interval:   s.Config.MQTTConnectRetryInterval,
				MaxElapsed: s.Config.MQTTConnectRetryMaxElapsed,
			},
			AutoReconnect:        s.Config.MQTTAutoReconnect,
			MaxReconnectInterval: s.Config.MQTTMaxReconnectInterval,
			PublishTopic:         s.Config.MQTTPublishTopic,
			AuthMode:             mqtttrigger.AuthMode(s.Config.MQTTAuthMode),
			SecretName:           s.Config.MQTTSecretName,
		}
		return mqtttrigger.New(cfg, processor, s.DIC, s.Secrets, s.Logger), nil

	default:
		factory, ok := s.customTriggers[kind]
		if !ok {
			return nil, fmt.Errorf("unknown trigger type %q and no custom trigger registered under that name", s.Config.TriggerType)
		}
		return factory(s)
	}
}

// Run selects and initializes the trigger, starts store-and-forward if
// enabled, starts the web server, and blocks until a termination signal
// arrives, then runs the ordered shutdown sequence.
func (s *Service) Run() error {
	t, err := s.selectTrigger()
	if err != nil {
		return err
	}
	s.trigger = t

	teardown, err := s.trigger.Initialize(s.appDone, &s.appWG)
	if err != nil {
		return fmt.Errorf("initialize trigger: %w", err)
	}
	s.triggerTeardown = teardown

	s.Store.Run(s.sfDone, &s.sfWG)

	httpTeardown, err := s.webServerTeardown()
	if err != nil {
		return fmt.Errorf("start web server: %w", err)
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	s.Logger.Info("shutdown signal received")
	return s.shutdown(httpTeardown)
}

// webServerTeardown starts the shared admin web server unless the HTTP
// trigger already owns it (in which case the HTTP trigger's Initialize
// already started listening on the same mux).
func (s *Service) webServerTeardown() (func(), error) {
	if strings.EqualFold(s.Config.TriggerType, "http") {
		return func() {}, nil
	}

	srv := &http.Server{
		Addr:         s.Config.HTTPAddr,
		Handler:      s.webserver.Mux(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.appWG.Add(1)
	go func() {
		defer s.appWG.Done()
		s.Logger.Info("admin web server listening", "addr", s.Config.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.Logger.Error("admin web server error", "error", err)
		}
	}()

	go func() {
		<-s.appDone
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.Logger.Error("admin web server shutdown error", "error", err)
		}
	}()

	return func() {}, nil
}

// shutdown runs the cancellation cascade: store-and-forward cancel first
// (so the retry loop stops scheduling new work), wait for its wait group,
// then the application-wide cancel, wait for the remaining trigger
// workers, then run deferred teardowns in LIFO order.
func (s *Service) shutdown(httpTeardown func()) error {
	s.sfOnce.Do(func() { close(s.sfDone) })
	s.sfWG.Wait()

	s.appOnce.Do(func() { close(s.appDone) })
	s.appWG.Wait()

	var teardowns []func()
	if s.triggerTeardown != nil {
		teardowns = append(teardowns, s.triggerTeardown)
	}
	if httpTeardown != nil {
		teardowns = append(teardowns, httpTeardown)
	}
	if s.sqliteStore != nil {
		teardowns = append(teardowns, func() {
			if err := s.sqliteStore.Close(); err != nil {
				s.Logger.Error("failed to close store-and-forward database", "error", err)
			}
		})
	}
	s.DIC.RegisterTeardown(func() {
		for i := len(teardowns) - 1; i >= 0; i-- {
			teardowns[i]()
		}
	})
	s.DIC.RunTeardowns()

	s.Logger.Info("shutdown complete")
	return nil
}

func serviceKey() string {
	if v := os.Getenv("SERVICE_KEY"); v != "" {
		return v
	}
	return "appfunctions-sdk"
}
