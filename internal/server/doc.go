// Package server hosts the picture-sharing API behind a single HTTP server.
//
// The server builds a consistent middleware chain of request IDs, logging,
// security headers, CORS, audit, and rate limiting so the resource handler
// runs behind common protections. The handler itself is mounted catch-all
// because the first path segment is a deployment-chosen mount point.
package server
