// Package connectors groups sources and sinks talking to external systems.
//
// Each connector lives in its own package so that a pipeline only links the
// clients it uses: kafka (franz-go), s3 (minio-go), nats (JetStream) and redis
// (go-redis).
package connectors
