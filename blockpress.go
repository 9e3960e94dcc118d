// Package blockpress provides the shared vocabulary of the document authoring
// service: error codes and the typed error carried across the tree, compiler,
// lifecycle and server packages.
//
// The document model itself lives in internal/tree, section resolution in
// internal/registry, internal/compiler and internal/render, and the
// draft/publish lifecycle in internal/lifecycle.
package blockpress

// Version is the release version reported by the CLI and the server.
const Version = "0.1.0-dev"
