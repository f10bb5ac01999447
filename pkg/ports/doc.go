// Package ports defines the collaborator interfaces the engine depends on.
//
// Adapters under pkg/adapters implement them:
//   - SchemaStore / SchemaRepository: memory, redis, postgres
//   - ExecutionStore: memory
//   - EventBus: memory (optionally mirrored to Redis Streams)
//   - TransformExecutor: llm
//   - MetricsCollector: prometheus
package ports
