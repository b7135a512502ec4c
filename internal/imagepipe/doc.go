// Package imagepipe defines the domain model shared by every stage of the
// image-retrieval pipeline: the Request a caller submits, the Processors it
// may carry, the keys used to test two requests for equivalence, the
// decoded Image type, the collaborator interfaces the pipeline core treats
// as pluggable (data loading, decoding, on-disk and in-memory caching), and
// the stable error taxonomy surfaced to callers.
//
// Nothing in this package does I/O or scheduling; those concerns live in
// stageexec, pipeline, dedup, manager and prefetch.
package imagepipe
