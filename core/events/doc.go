// Package events defines the provider-agnostic session event contract.
//
// Inbound wire messages are translated by a provider adapter into exactly
// one of these events; the session engine consumes them in arrival order.
// Event kinds are grouped by namespaces:
//
//   - session.*: connection/configuration lifecycle.
//   - user_speech.*: server-side voice-activity boundaries for the user.
//   - assistant.*: assistant response lifecycle, audio and transcript deltas.
//   - tool_call.*: tool invocations requested by the model and their
//     local execution lifecycle.
//   - provider.*: provider-reported errors and unrecognized messages.
//
// Semantics used across the package:
//
//   - Delta: append-only streamed payload emitted in stream order.
//   - ItemID: the provider's conversation-item id, used to correlate
//     audio deltas with truncation on barge-in. May be empty on the first
//     delta of a response and filled by later deltas.
package events
