// Package internal contains the core implementation packages for boxrender.
//
// This package follows Go's internal package convention, making these
// packages unavailable for import by external modules while providing
// all the core functionality for the boxrender CLI and server.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - document: Ordered sing-box documents and their outbound/endpoint entries
//   - manifest: Manifest parsing and validation
//   - semver: Version parsing and comparison for template rules
//   - useragent: sing-box version detection from client user agents
//   - filter: Tag and type pattern compilation
//   - cache: Last-good document bodies in memory or SQLite
//   - fetch: Remote downloads with cache write-through and fallback
//   - store: Gist and local directory manifest stores
//   - watcher: File system monitoring with debouncing
//   - renderer: Template selection, resource loading and appending
//   - server: HTTP render endpoint, status page and event feed
//   - config, logging, metrics, errors, version, output: Ambient support
//
// # Data Flow
//
// A request names a store entry. The server lists its files, parses the
// manifest, and hands it to the renderer with the client's version. The
// renderer selects a template, loads it and the referenced resources
// through the fetch gateway concurrently, and appends filtered entries to
// the template before the server encodes the result.
package internal
