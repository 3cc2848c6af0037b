// Package flowbus is an in-process, type-safe publish/subscribe bus. Messages
// are routed by their Go type and a dot-delimited topic; a subscriber on a
// topic prefix (a namespace) also receives every message published below it,
// so "sys" sees "sys.alert" while "system" does not.
//
// Subscribe and Publish are generic functions because Go methods cannot take
// type parameters. A minimal setup fills Config, creates a Bus with NewBus,
// registers handlers with Subscribe or SubscribeFunc, and publishes with
// Publish. Handlers run synchronously on the publisher's goroutine or
// asynchronously on the bus Executor; one-shot and filtered subscriptions are
// set on SubscriberRegistration.
//
// # Dispatch modes
//
// The direct mode delivers while publishing. The staged mode pushes messages
// onto a bounded queue that a drain loop consumes in batches on the executor,
// falling back to inline delivery when the queue stays full.
//
// # Executors
//
// Async deliveries, delayed publishes (WithDelay) and the staged drain loop
// run on an Executor. Pool is a fixed set of worker goroutines; Manual runs
// tasks only when told to and keeps a virtual clock for deterministic tests.
//
// # Observability
//
// DeliveryHooks observe every delivery. With MetricsEnabled the bus registers
// Prometheus collectors, each publish opens an OpenTelemetry producer span,
// and Bus.Start serves a JSON introspection API when WebUIEnabled is set.
//
// # Bridges
//
// Forward mirrors bus messages onto a Watermill publisher and Ingest feeds a
// Watermill subscriber back into the bus. OpenBridge builds the publisher and
// subscriber pair from a registered transport backend:
//   - channel: in-memory Go channels
//   - kafka: Kafka consumer groups
//   - rabbitmq: AMQP durable queues
//   - nats: NATS core subjects
//   - aws: SNS topics fanned out to SQS queues, with LocalStack support
//   - http: POST per message, one route per topic
//   - io: newline-delimited JSON file
//
// Backends register on import; import transport/all to get all of them.
package flowbus
