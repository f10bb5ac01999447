// Package grpc exposes the engine's gRPC endpoint: the standard
// grpc.health.v1 service plus server reflection.
package grpc
