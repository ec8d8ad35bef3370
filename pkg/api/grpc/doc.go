// Package grpc provides the gRPC server. It exposes the standard
// grpc.health.v1 service, driven by worker pool health.
package grpc
