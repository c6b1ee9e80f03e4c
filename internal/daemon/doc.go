// Package daemon runs the opuspress service: a single-instance
// process (enforced with a flock lock file) exposing the encode
// pipeline over a local HTTP API, plus health, status, and Prometheus
// metrics endpoints.
package daemon
