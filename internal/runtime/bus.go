package runtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	configpkg "github.com/drblury/flowbus/internal/runtime/config"
	errspkg "github.com/drblury/flowbus/internal/runtime/errors"
	executorpkg "github.com/drblury/flowbus/internal/runtime/executor"
	idspkg "github.com/drblury/flowbus/internal/runtime/ids"
	loggingpkg "github.com/drblury/flowbus/internal/runtime/logging"
	"github.com/drblury/flowbus/transport"
)

const tracerName = "github.com/drblury/flowbus"

// BusDependencies holds the optional collaborators a Bus can use.
// Leave fields nil to get the defaults.
type BusDependencies struct {
	// Executor runs async deliveries, delayed publishes and the staged drain
	// loop. When nil the bus starts and owns a Pool of Conf.ExecutorWorkers.
	Executor executorpkg.Executor
	// Registerer receives the bus collectors when metrics are enabled.
	// Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	Hooks      DeliveryHooks
	// Tracer defaults to the global OpenTelemetry tracer provider.
	Tracer trace.Tracer
}

// Bus is an in-process publish/subscribe message bus. Messages are routed by
// Go type and dot-delimited topic. A Bus is safe for concurrent use and must
// not be copied.
type Bus struct {
	Conf   *configpkg.Config
	Logger loggingpkg.BusLogger

	id string

	// mu guards subscriptions, namespaces and history.
	mu            sync.RWMutex
	subscriptions subscriptionTable
	namespaces    namespaceSet
	history       historyStore

	executor   executorpkg.Executor
	ownedPool  *executorpkg.Pool
	dispatcher dispatcher
	hooks      DeliveryHooks
	metrics    *BusMetrics
	registerer prometheus.Registerer
	tracer     trace.Tracer

	done      chan struct{}
	closeOnce sync.Once

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex
	running       []*http.Server

	bridgesMu sync.Mutex
	bridges   []transport.Transport
}

// NewBus constructs a Bus and panics when the configuration is invalid.
func NewBus(conf *configpkg.Config, log loggingpkg.BusLogger, deps BusDependencies) *Bus {
	b, err := TryNewBus(conf, log, deps)
	if err != nil {
		panic(err)
	}
	return b
}

// TryNewBus constructs a Bus, returning configuration and metrics
// registration errors instead of panicking.
func TryNewBus(conf *configpkg.Config, log loggingpkg.BusLogger, deps BusDependencies) (*Bus, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}

	resolved := conf.WithDefaults()
	id := idspkg.CreateULID()
	b := &Bus{
		Conf:          &resolved,
		Logger:        log.With(loggingpkg.LogFields{"bus_id": id}),
		id:            id,
		subscriptions: newSubscriptionTable(),
		namespaces:    make(namespaceSet),
		history:       newHistoryStore(resolved.MaxHistorySize),
		hooks:         deps.Hooks,
		registerer:    deps.Registerer,
		tracer:        deps.Tracer,
		done:          make(chan struct{}),
	}
	if b.tracer == nil {
		b.tracer = otel.Tracer(tracerName)
	}

	if resolved.MetricsEnabled {
		b.metrics = NewBusMetrics(deps.Registerer)
		if err := b.metrics.Register(); err != nil {
			return nil, fmt.Errorf("register bus metrics: %w", err)
		}
		b.registerMetricsHandler()
	}
	b.registerWebUIHandlers()

	b.executor = deps.Executor
	if b.executor == nil {
		b.ownedPool = executorpkg.NewPool(resolved.ExecutorWorkers, executorpkg.WithPanicHandler(b.logTaskPanic))
		b.executor = b.ownedPool
	}

	switch resolved.DispatchMode {
	case configpkg.DispatchStaged:
		b.dispatcher = newStagedDispatcher(b)
	default:
		b.dispatcher = directDispatcher{bus: b}
	}

	b.Logger.Info("Creating message bus", loggingpkg.LogFields{
		"dispatch_mode": string(resolved.DispatchMode),
		"config":        resolved,
	})
	return b, nil
}

// ID returns the ULID assigned to this bus instance.
func (b *Bus) ID() string { return b.id }

// Metrics returns the bus collectors, or nil when metrics are disabled.
func (b *Bus) Metrics() *BusMetrics { return b.metrics }

// Start exposes the configured HTTP endpoints (introspection API and
// Prometheus metrics). The servers stop when ctx is done or the bus closes.
func (b *Bus) Start(ctx context.Context) error {
	if b.isClosed() {
		return errspkg.ErrBusClosed
	}
	b.startHTTPServers()
	context.AfterFunc(ctx, b.shutdownHTTPServers)
	return nil
}

// Close stops accepting publishes and subscriptions, signals the staged
// drain loop to stop, wakes every pending ReceiveOnce and closes the
// transports opened with OpenBridge. When the bus owns its executor, Close
// waits for queued deliveries until ctx is done.
func (b *Bus) Close(ctx context.Context) error {
	var err error
	b.closeOnce.Do(func() {
		b.Logger.Info("Closing message bus", loggingpkg.LogFields{"pending": b.dispatcher.pending()})
		close(b.done)
		b.dispatcher.close()
		b.shutdownHTTPServers()
		b.closeBridges()
		if b.ownedPool != nil {
			err = b.ownedPool.Stop(ctx)
		}
	})
	return err
}

func (b *Bus) isClosed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// IsActive reports whether the staged drain loop is running. A direct bus is
// always active.
func (b *Bus) IsActive() bool {
	return b.dispatcher.active()
}

// ActiveNamespaces returns every namespace subscribed to since construction or
// the last ClearAllSubscribers, sorted.
func (b *Bus) ActiveNamespaces() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.namespaces.sorted()
}

// ClearAllSubscribers removes every subscription, namespace and history entry.
// Tokens issued before the call stay invalid afterwards.
func (b *Bus) ClearAllSubscribers() {
	b.mu.Lock()
	removed := b.subscriptions.total
	b.subscriptions.reset()
	b.namespaces.reset()
	b.history.reset()
	b.mu.Unlock()

	b.metrics.setSubscribers(0)
	b.Logger.Info("Cleared all subscribers", loggingpkg.LogFields{"removed": removed})
}

// Statistics is a point-in-time summary of the bus.
type Statistics struct {
	BusID           string    `json:"bus_id"`
	DispatchMode    string    `json:"dispatch_mode"`
	SubscriberCount int       `json:"subscriber_count"`
	TypeCount       int       `json:"type_count"`
	NamespaceCount  int       `json:"namespace_count"`
	HistorySize     int       `json:"history_size"`
	PendingMessages int       `json:"pending_messages"`
	Active          bool      `json:"active"`
	CollectedAt     time.Time `json:"collected_at"`
}

// Statistics returns subscriber, type, namespace and history counts together
// with the staging queue depth.
func (b *Bus) Statistics() Statistics {
	b.mu.RLock()
	stats := Statistics{
		BusID:           b.id,
		DispatchMode:    string(b.Conf.DispatchMode),
		SubscriberCount: b.subscriptions.total,
		TypeCount:       len(b.subscriptions.buckets),
		NamespaceCount:  len(b.namespaces),
		HistorySize:     b.history.size(),
	}
	b.mu.RUnlock()

	stats.PendingMessages = b.dispatcher.pending()
	stats.Active = b.dispatcher.active()
	stats.CollectedAt = time.Now()
	return stats
}

// SubscriptionInfo describes one registered subscriber.
type SubscriptionInfo struct {
	Token        Token     `json:"token"`
	Topic        string    `json:"topic"`
	MessageType  string    `json:"message_type"`
	Async        bool      `json:"async"`
	Once         bool      `json:"once"`
	Filtered     bool      `json:"filtered"`
	SubscribedAt time.Time `json:"subscribed_at"`
}

// Subscriptions lists every registered subscriber in token order.
func (b *Bus) Subscriptions() []SubscriptionInfo {
	b.mu.RLock()
	subs := b.subscriptions.all()
	b.mu.RUnlock()

	out := make([]SubscriptionInfo, 0, len(subs))
	for _, sub := range subs {
		out = append(out, SubscriptionInfo{
			Token:        sub.token,
			Topic:        sub.topic,
			MessageType:  sub.messageType.String(),
			Async:        sub.async,
			Once:         sub.once,
			Filtered:     sub.filter != nil,
			SubscribedAt: sub.subscribedAt,
		})
	}
	return out
}

func (b *Bus) logTaskPanic(recovered any, stack []byte) {
	b.Logger.Error("Executor task panicked", &errspkg.PanicError{Value: recovered, Stack: stack}, nil)
}
