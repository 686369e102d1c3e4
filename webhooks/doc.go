// Package webhooks contains the inbound HTTP surface for card events.
//
// The processor classifies every request into one of three outcomes:
// rejected (bad parameters, never retried), parked (upstream failure,
// persisted as a retry task) or processed. The server wires the processor
// behind basic auth and a health endpoint.
package webhooks
