// Package main hosts the newsdigest CLI entrypoint and command graph.
//
// The Cobra command tree runs the digest pipeline, inspects persisted digests
// and items, rebuilds the similarity index, serves the read-only API and
// scaffolds configuration. Configuration loading, logger construction and
// collaborator wiring live here so the internal packages stay free of CLI
// concerns.
package main
