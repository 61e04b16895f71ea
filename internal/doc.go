// Package internal contains the implementation packages of rescomp.
//
// # Package Organization
//
// The core resource compilation subsystem:
//
//   - compiler: ResourceCompiler, which runs a resource through a nested build
//     of the attached host, extracts its primary output and caches the result
//   - sandbox: isolated JavaScript evaluation of module outputs
//   - artifact: artifacts, concurrency-safe artifact sets and the asset merger
//   - cache: generation-windowed bounded stores backing the result caches
//   - registry: per-resource dependency records
//   - interfaces: the host and nested build contracts the compiler depends on
//
// The host side and glue:
//
//   - build: concrete host build, nested builds and the file hash provider
//   - loader: css, html, raw and external command loaders
//   - watcher: debounced file system monitoring
//   - livereload: WebSocket notifications for recompiled resources
//   - config, logging, errors, validation, version: ambient concerns
//
// # Concurrency
//
// Every shared structure is guarded by a mutex. Concurrent compiles of the
// same resource and host generation share one nested build.
package internal
