// Package service runs one mock service: a listener bound to a port and the
// dispatch pipeline that answers requests from a service definition.
//
// An Instance is the unit of isolation. It owns its listener, its scenario
// slot and its mutable state (bucket, fixtures, runtime data). Shared
// collaborators such as storage, the log sink and metrics are handed in
// through options and are never owned.
//
// Request handling, in order:
//
//  1. the internal logs endpoint {base_path}/__mockfleet/logs
//  2. CORS headers and OPTIONS preflight
//  3. behavior: rate limiting, error injection, latency
//  4. GraphQL, when configured
//  5. endpoint matching (method, path, header_match), first declared wins
//  6. unmatched: proxy, record_unknown or plain 404
//  7. request body validation against models
//  8. scenario resolution and response selection
//  9. side effects, script, rendering
//
// Every answered request yields a requestlog.Entry that goes to the
// instance ring, the log sink and storage.
package service
