package flowbus

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	runtimepkg "github.com/drblury/flowbus/internal/runtime"
	configpkg "github.com/drblury/flowbus/internal/runtime/config"
	errspkg "github.com/drblury/flowbus/internal/runtime/errors"
	executorpkg "github.com/drblury/flowbus/internal/runtime/executor"
	idspkg "github.com/drblury/flowbus/internal/runtime/ids"
	jsoncodec "github.com/drblury/flowbus/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/flowbus/internal/runtime/logging"
	metadatapkg "github.com/drblury/flowbus/internal/runtime/metadata"
	"github.com/drblury/flowbus/transport"
)

type (
	Config          = configpkg.Config
	DispatchMode    = configpkg.DispatchMode
	Bus             = runtimepkg.Bus
	BusDependencies = runtimepkg.BusDependencies
	Token           = runtimepkg.Token

	SubscriberRegistration[T any] = runtimepkg.SubscriberRegistration[T]
	Handler[T any]                = runtimepkg.Handler[T]
	Filter[T any]                 = runtimepkg.Filter[T]
	PublishOption                 = runtimepkg.PublishOption

	Statistics       = runtimepkg.Statistics
	SubscriptionInfo = runtimepkg.SubscriptionInfo

	Executor     = executorpkg.Executor
	Timer        = executorpkg.Timer
	Pool         = executorpkg.Pool
	PoolOption   = executorpkg.PoolOption
	Manual       = executorpkg.Manual
	PanicHandler = executorpkg.PanicHandler

	Metadata = metadatapkg.Metadata

	LogFields                 = loggingpkg.LogFields
	BusLogger                 = loggingpkg.BusLogger
	EntryLogger               = loggingpkg.EntryLogger
	EntryLoggerAdapter[T any] = loggingpkg.EntryLoggerAdapter[T]

	ConfigValidationError = errspkg.ConfigValidationError
	PanicError            = errspkg.PanicError

	// Delivery lifecycle hooks
	DeliveryContext = runtimepkg.DeliveryContext
	DeliveryHooks   = runtimepkg.DeliveryHooks

	// Prometheus metrics
	BusMetrics         = runtimepkg.BusMetrics
	TopicMetrics       = runtimepkg.TopicMetrics
	BusMetricsSnapshot = runtimepkg.BusMetricsSnapshot

	// Bridge transports
	Transport             = transport.Transport
	TransportBuilder      = transport.Builder
	TransportConfig       = transport.Config
	TransportRegistry     = transport.Registry
	TransportCapabilities = transport.Capabilities
)

var (
	NewBus         = runtimepkg.NewBus
	TryNewBus      = runtimepkg.TryNewBus
	ValidateConfig = configpkg.ValidateConfig

	WithDelay      = runtimepkg.WithDelay
	DeliveredTopic = runtimepkg.DeliveredTopic

	NewPool          = executorpkg.NewPool
	NewManual        = executorpkg.NewManual
	WithPanicHandler = executorpkg.WithPanicHandler

	// Delivery lifecycle hooks
	LoggingHooks  = runtimepkg.LoggingHooks
	AlertingHooks = runtimepkg.AlertingHooks

	NewBusMetrics = runtimepkg.NewBusMetrics

	// Bridge transport registry. Backends register on import, e.g.
	// _ "github.com/drblury/flowbus/transport/kafka", or all of them via
	// _ "github.com/drblury/flowbus/transport/all".
	DefaultTransportRegistry = transport.DefaultRegistry
	RegisterTransport        = transport.Register
	BuildTransport           = transport.Build
	GetCapabilities          = transport.GetCapabilities

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrInvalidArgument    = errspkg.ErrInvalidArgument
	ErrTopicRequired      = errspkg.ErrTopicRequired
	ErrHandlerRequired    = errspkg.ErrHandlerRequired
	ErrLimitExceeded      = errspkg.ErrLimitExceeded
	ErrNoMessageReceived  = errspkg.ErrNoMessageReceived
	ErrBusClosed          = errspkg.ErrBusClosed
	ErrBusRequired        = errspkg.ErrBusRequired
	ErrStagingQueueFull   = errspkg.ErrStagingQueueFull
	ErrPublisherRequired  = errspkg.ErrPublisherRequired
	ErrSubscriberRequired = errspkg.ErrSubscriberRequired
	ErrConfigRequired     = errspkg.ErrConfigRequired
	ErrLoggerRequired     = errspkg.ErrLoggerRequired
	ErrExecutorStopped    = executorpkg.ErrStopped

	NewSlogBusLogger      = loggingpkg.NewSlogBusLogger
	NewWatermillBusLogger = loggingpkg.NewWatermillBusLogger
	NewNopBusLogger       = loggingpkg.NewNopBusLogger

	NewMetadata = metadatapkg.New

	CreateULID = idspkg.CreateULID
)

const (
	DispatchDirect = configpkg.DispatchDirect
	DispatchStaged = configpkg.DispatchStaged

	DefaultMaxSubscribersPerTopic = configpkg.DefaultMaxSubscribersPerTopic
	DefaultMaxHistorySize         = configpkg.DefaultMaxHistorySize
	DefaultStagingQueueCapacity   = configpkg.DefaultStagingQueueCapacity
	DefaultStagingBatchSize       = configpkg.DefaultStagingBatchSize
	DefaultStagingPushRetries     = configpkg.DefaultStagingPushRetries
	NoStagingPushRetries          = configpkg.NoStagingPushRetries
	DefaultStagingIdleInterval    = configpkg.DefaultStagingIdleInterval
	DefaultExecutorWorkers        = configpkg.DefaultExecutorWorkers
	DefaultWebUIPort              = configpkg.DefaultWebUIPort
)

// Metadata keys set on bridged Watermill messages.
const (
	MetadataKeyTopic       = metadatapkg.TopicKey
	MetadataKeyType        = metadatapkg.TypeKey
	MetadataKeyContentType = metadatapkg.ContentTypeKey
	MetadataKeyBusID       = metadatapkg.BusIDKey
)

func Subscribe[T any](b *Bus, reg SubscriberRegistration[T]) (Token, error) {
	return runtimepkg.Subscribe(b, reg)
}

func SubscribeFunc[T any](b *Bus, topic string, handler Handler[T]) (Token, error) {
	return runtimepkg.SubscribeFunc(b, topic, handler)
}

func Unsubscribe[T any](b *Bus, token Token) {
	runtimepkg.Unsubscribe[T](b, token)
}

func UnsubscribeAll[T any](b *Bus, topic string) {
	runtimepkg.UnsubscribeAll[T](b, topic)
}

func Publish[T any](ctx context.Context, b *Bus, topic string, msg T, opts ...PublishOption) error {
	return runtimepkg.Publish(ctx, b, topic, msg, opts...)
}

func PublishGlobal[T any](ctx context.Context, b *Bus, msg T) {
	runtimepkg.PublishGlobal(ctx, b, msg)
}

func SubscriberCount[T any](b *Bus, topic string) int {
	return runtimepkg.SubscriberCount[T](b, topic)
}

func HasSubscriber[T any](b *Bus, topic string) bool {
	return runtimepkg.HasSubscriber[T](b, topic)
}

func MessageHistory[T any](b *Bus, topic string, count int) []T {
	return runtimepkg.MessageHistory[T](b, topic, count)
}

func ReceiveOnce[T any](ctx context.Context, b *Bus, topic string) (T, error) {
	return runtimepkg.ReceiveOnce[T](ctx, b, topic)
}

func Forward[T any](b *Bus, topic string, publisher message.Publisher, target string) (Token, error) {
	return runtimepkg.Forward[T](b, topic, publisher, target)
}

func Ingest[T any](ctx context.Context, b *Bus, subscriber message.Subscriber, source, topic string) error {
	return runtimepkg.Ingest[T](ctx, b, subscriber, source, topic)
}

// OpenBridge builds the registered transport named by cfg.Name. The bus
// closes it on Close.
func OpenBridge(ctx context.Context, b *Bus, cfg TransportConfig) (Transport, error) {
	return runtimepkg.OpenBridge(ctx, b, cfg)
}

func NewEntryBusLogger[T EntryLoggerAdapter[T]](entry T) BusLogger {
	return loggingpkg.NewEntryBusLogger(entry)
}
