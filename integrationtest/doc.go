// Package integrationtest runs pipelines against real brokers and object
// stores started with testcontainers. The tests need Docker and are skipped
// with -short.
package integrationtest
