/*
Package runtime implements the flowbus message bus.

# Architecture Overview

A Bus routes messages by their Go type and a dot-delimited topic. Subscribers
registered on a prefix of a published topic, the namespace, receive the message
too: a subscriber on "sys" sees "sys.alert" but not "system". Each
subscription is keyed by a Token that is never reused for the lifetime of the
bus.

# Package Structure

## Bus (bus.go)

Construction, lifecycle, statistics and introspection. The bus owns the
subscription table, the set of active namespaces and the per-topic history.

## Subscriptions (subscribe.go, registry.go)

Typed registration on top of a table bucketed by (message type, topic).
Subscribers may be sync or async, one-shot, and filtered.

## Dispatch (dispatch.go, staged.go, router.go)

Publishing resolves the exact topic and every namespace prefix to buckets
and delivers to each subscriber once. Two backends share one interface:

  - direct: delivers on the publishing goroutine under the bus lock
  - staged: pushes onto a bounded queue drained in batches on the executor,
    falling back to inline dispatch when the queue stays full

## Publishing and receiving (publish.go, receive.go)

Publish, delayed publish through the executor, PublishGlobal over every
namespace, and ReceiveOnce for a single message with a context deadline.

## Bridge (bridge.go)

Forward and Ingest connect the bus to Watermill publishers and subscribers.
OpenBridge builds a transport from the transport registry and closes it with
the bus.

## Observability (hooks.go, metrics.go, webui.go, server.go)

Delivery hooks, Prometheus collectors, OpenTelemetry producer spans, and a
JSON introspection API served by Bus.Start.

# Sub-packages

  - config/: bus configuration with defaults and validation
  - errors/: sentinel errors and error types
  - executor/: task executors (worker Pool and deterministic Manual)
  - ids/: ULID generation
  - jsoncodec/: JSON marshaling backed by sonic
  - logging/: BusLogger interface and adapters
  - metadata/: bridge message metadata
  - queue/: bounded concurrent queue used by the staged backend
*/
package runtime
