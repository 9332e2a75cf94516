// Package admin serves the authenticated control surface of a mockfleet
// process: aggregated request logs, a live log stream, registry status,
// scenario switching and metrics.
//
// Every route below /mockfleet-admin requires "Authorization: Bearer
// <token>". The token is fixed when the Server is created. A server
// created without a token rejects every authenticated route.
package admin
