// Package events defines the typed session event contract.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - user_input.*
//   - assistant_response.*
//   - assistant_speech.*
//   - turn_state.*
//   - session.*
//
// Semantics used across the package:
//
//   - Frame: binary audio frame/chunk payload.
//   - Segment: append-only text piece emitted in stream order.
//   - Updated: mutable point-in-time snapshot that can change over time.
//   - Final: terminal immutable text/state for the current stream/turn phase.
//
// Events implementing [TurnScoped] carry the id of the turn they belong to;
// the relay drops turn-scoped output events whose id falls below the
// session's watermark so a cancelled turn cannot leak stale text or audio to
// the client.
//
// user_input events
//
//   - UserAudioFrame (user_input.audio_frame): raw user input audio frame
//     with its ingress sequence number.
//   - UserSpeechStarted (user_input.speech_started): speech activity began.
//   - UserSpeechEnded (user_input.speech_ended): speech activity ended.
//   - UserTranscriptInterimUpdated (user_input.transcript_interim_updated):
//     mutable interim full transcript snapshot.
//   - UserTranscriptFinal (user_input.transcript_final): terminal full
//     transcript for the utterance; tagged with the turn it starts.
//
// assistant_response events
//
//   - AssistantResponseSegment (assistant_response.segment): streamed
//     response text segment.
//   - AssistantResponseFinal (assistant_response.final): response text
//     stream is complete.
//
// assistant_speech events
//
//   - AssistantSpeechFrame (assistant_speech.frame): synthesized speech
//     audio frame.
//   - AssistantSpeechFinal (assistant_speech.final): speech generation ended.
//
// turn_state events
//
//   - TurnStarted (turn_state.started): a new turn started.
//   - TurnCompleted (turn_state.completed): the turn ran to natural
//     completion.
//   - TurnInterrupted (turn_state.interrupted): the turn was cancelled by a
//     barge-in or an explicit interrupt request.
//
// session events
//
//   - SessionFault (session.fault): an escalated collaborator failure,
//     carrying the taxonomy code and a client-safe message.
package events
