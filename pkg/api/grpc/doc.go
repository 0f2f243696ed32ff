// Package grpc serves the gRPC health service. The service reports SERVING
// once the agent registry holds at least one agent.
package grpc
