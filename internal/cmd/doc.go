// Package cmd implements the dagent command line: run executes a single
// plan file, serve runs the HTTP and gRPC service and agents checks the
// agent declarations.
package cmd
