package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cowaramupagencies/gas/config"
	"github.com/cowaramupagencies/gas/dispatch"
	"github.com/cowaramupagencies/gas/messaging"
	"github.com/cowaramupagencies/gas/protocol"
	"github.com/cowaramupagencies/gas/runstate"
	"github.com/cowaramupagencies/gas/store"
)

type LogFunc func(format string, args ...any)

// Messenger is the broker connection the engine listens on.
type Messenger interface {
	IsConnected() bool
	Subscribe(topic string, handler messaging.MessageHandler) error
	Reconfigure(cfg *config.MessagingConfig) error
}

type Config struct {
	AppConfig  *config.Config
	ConfigPath string
	DB         *store.DB
	RunCache   runstate.Cache // nil runs without a cache
	MsgClient  Messenger      // nil runs without messaging
	LogFunc    LogFunc
}

type Engine struct {
	cfg          *config.Config
	configPath   string
	db           *store.DB
	runCache     runstate.Cache
	runState     *runstate.Manager
	msgClient    Messenger
	dispatcher   *dispatch.Dispatcher
	Events       *EventBus
	logFn        LogFunc
	stopChan     chan struct{}
	stopOnce     sync.Once
	mu           sync.Mutex
	msgConnected bool
}

func New(c Config) *Engine {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = log.Printf
	}
	return &Engine{
		cfg:        c.AppConfig,
		configPath: c.ConfigPath,
		db:         c.DB,
		runCache:   c.RunCache,
		msgClient:  c.MsgClient,
		Events:     NewEventBus(),
		logFn:      logFn,
		stopChan:   make(chan struct{}),
	}
}

func (e *Engine) Start() {
	e.dispatcher = dispatch.NewDispatcher(e.db, &dispatchEmitter{bus: e.Events}, e.cfg.Capacity)
	e.runState = runstate.NewManager(e.dispatcher, e.runCache)

	e.wireEventHandlers()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := e.runState.SyncRedisFromStore(ctx); err != nil {
		e.logFn("engine: run state sync: %v", err)
	}
	cancel()

	e.subscribeInbound()

	e.checkConnectionStatus()
	go e.connectionHealthLoop()

	e.logFn("engine: started (capacity %d x %s per run)", e.cfg.Capacity.Limit, e.cfg.Capacity.CountedType)
}

func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopChan) })
	e.logFn("engine: stopped")
}

// Accessors
func (e *Engine) DB() *store.DB                    { return e.db }
func (e *Engine) AppConfig() *config.Config        { return e.cfg }
func (e *Engine) ConfigPath() string               { return e.configPath }
func (e *Engine) Dispatcher() *dispatch.Dispatcher { return e.dispatcher }
func (e *Engine) RunState() *runstate.Manager      { return e.runState }

// MessagingConnected reports the last observed broker state.
func (e *Engine) MessagingConnected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.msgConnected
}

func (e *Engine) subscribeInbound() {
	if e.msgClient == nil {
		return
	}
	mc := e.cfg.Messaging
	handler := messaging.NewDepotHandler(e.dispatcher, e.db, mc.DepotID, mc.OutboundTopic)
	ingestor := protocol.NewIngestor(handler, protocol.DepotFilter(mc.DepotID))
	if err := e.msgClient.Subscribe(mc.InboundTopic, func(_ string, data []byte) {
		ingestor.HandleRaw(data)
	}); err != nil {
		e.logFn("engine: inbound subscribe failed: %v", err)
		return
	}
	e.logFn("engine: listening for depot messages on %s", mc.InboundTopic)
}

func (e *Engine) checkConnectionStatus() {
	if e.msgClient == nil {
		return
	}
	connected := e.msgClient.IsConnected()
	e.mu.Lock()
	changed := connected != e.msgConnected
	e.msgConnected = connected
	e.mu.Unlock()
	if !changed {
		return
	}
	if connected {
		e.Events.Emit(Event{Type: EventMessagingConnected, Payload: ConnectionEvent{Detail: "messaging connected"}})
	} else {
		e.Events.Emit(Event{Type: EventMessagingDisconnected, Payload: ConnectionEvent{Detail: "messaging disconnected"}})
	}
}

func (e *Engine) connectionHealthLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.checkConnectionStatus()
		}
	}
}

// ReconfigureMessaging reconnects messaging with current config.
func (e *Engine) ReconfigureMessaging() {
	if e.msgClient == nil {
		return
	}
	if err := e.msgClient.Reconfigure(&e.cfg.Messaging); err != nil {
		e.logFn("engine: messaging reconfigure error: %v", err)
	} else {
		e.logFn("engine: messaging reconfigured")
	}
	e.checkConnectionStatus()
}
