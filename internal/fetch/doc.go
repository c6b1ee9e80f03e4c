// Package fetch materializes encode sources into a job's working
// directory. The pipeline is agnostic to where bytes come from; the
// three Source implementations cover a local file handed to the CLI,
// an uploaded stream, and a remote URL.
//
// Sources enforce the configured size cap while streaming so an
// oversized source is rejected before any subprocess is spawned.
// Network failures are never retried here; resubmission is a caller
// decision.
package fetch
