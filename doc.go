// Package filed exposes the Go APIs behind the single-binary sandboxed
// file server. filed fronts one local directory with a JSON-RPC 2.0 tool
// surface (the MCP tools/call convention) so language-model agents and
// other automations can read, edit, and organize files without ever
// touching paths outside the sandbox. The server runs standalone over
// HTTP or speaks Content-Length framed JSON-RPC on stdin/stdout for
// spawned-subprocess integrations.
//
// Copyright (C) 2025 Michel Blomgren <https://pkt.systems>
//
// # Running a server
//
// The server binds `Config.Listen` (default `127.0.0.1:8082`) and accepts
// JSON-RPC POSTs on `Config.RPCPath` (default `/`). `GET /health` answers
// without authentication.
//
//	cfg := filed.Config{
//	    AllowedDirectory: "/srv/agent-files",
//	    Listen:           "127.0.0.1:8082",
//	    ReadKey:          os.Getenv("FILED_AUTH_READ_KEY"),
//	    WriteKey:         os.Getenv("FILED_AUTH_WRITE_KEY"),
//	    AdminKey:         os.Getenv("FILED_AUTH_ADMIN_KEY"),
//	}
//	srv, err := filed.NewServer(filed.NewServerRequest{Config: cfg})
//	if err != nil { log.Fatal(err) }
//	if err := srv.Run(ctx); err != nil { log.Fatal(err) }
//
// Every tool call names paths relative to `Config.AllowedDirectory`. The
// server canonicalizes each path through the sandbox resolver before any
// filesystem work; traversal sequences, absolute escapes, and symlinks
// pointing outside the base directory are all rejected with the same
// client-facing text and no absolute path ever appears in a response.
//
// # Authentication and scopes
//
// Three credential slots map onto scope bundles: `ReadKey` grants
// read:files, `WriteKey` adds write:files and edit:files, and `AdminKey`
// holds every scope including delete:files. Clients present the key in an
// `X-API-Key` header or as a bearer token. When no key is configured the
// server runs unrestricted and logs a warning at startup. Scope checks
// run per tool after authentication; a missing scope surfaces as error
// code -32001 listing the scopes the caller lacks.
//
// # Stdio transport
//
// `filed stdio` serves the same dispatcher over stdin/stdout using
// Content-Length framing, for clients that spawn the server as a child
// process. Stream callers are trusted: spawning the process implies
// control of the sandbox, so API keys are not consulted on this
// transport.
//
// # Write policy
//
// New files must carry an allow-listed extension (`Config.AllowedExtensions`,
// default ten text-oriented extensions; set an empty list to allow all)
// and written content must fit under `Config.MaxFileBytes` (default
// 10 MiB). Overwrites of existing files skip the extension check but
// never the size cap.
//
// # Observability
//
// Structured logs go to stderr. `Config.MetricsListen` exposes a
// Prometheus scrape endpoint, `Config.PprofListen` a pprof listener, and
// `Config.OTLPEndpoint` enables OTLP trace export (grpc://, grpcs://,
// http://, https:// targets). Request and per-tool counters plus a
// request duration histogram are registered under the `filed.rpc.*`
// instrument names.
//
// Consult README.md for CLI usage, environment variables, and the full
// tool catalogue.
package filed
