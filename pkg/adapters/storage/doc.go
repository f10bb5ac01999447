// Package storage provides schema and execution storage implementations.
//
// Implementations:
//   - memory: execution store and schema repository held in process memory
//   - redis: schema repository with JSON documents
//   - postgres: schema repository backed by pgx
//   - file: YAML/JSON schema loader
package storage
