// Package llamaneuro is a real-time EEG demo server: a simulated or
// externally fed multichannel signal is windowed, reduced to spectral
// features, encoded by a small transformer, and classified into motor
// imagery labels; the resulting classifications steer a text generator
// and stream to clients over websocket and NATS.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│          HTTP Gateway               │  REST /api/v1, /ws stream,
//	│   (lifecycle, CORS, rate limits)    │  /metrics, /healthz
//	└──────────────┬──────────────────────┘
//	               │ orchestrates
//	     ┌─────────┴─────────┐
//	     ↓                   ↓
//	┌──────────┐       ┌──────────┐
//	│  Neuro   │ ────→ │ Guidance │  classification biases
//	│Processor │       │Generator │  sampling + prompt
//	└────┬─────┘       └────┬─────┘
//	     │                  │
//	 NATS subject       LLM backend
//	 (classification    (OpenAI API or
//	  snapshots)         local stub)
//
// # Signal Pipeline
//
// The processor runs a fixed-interval loop. Each tick it:
//
//  1. Pulls one chunk from the simulator or the ingest queue
//  2. Shifts the chunk into a channels x samples ring window
//  3. Extracts band powers, temporal stats, and optional connectivity
//  4. Encodes the per-channel feature sequence with a transformer
//  5. Classifies the embedding and swaps in an immutable snapshot
//
// Readers (websocket hub, REST snapshot endpoint, NATS publisher, the
// generator's guidance input) only ever see whole snapshots, so a
// runtime reconfiguration never exposes a half-updated view.
//
// # Components
//
// Every long-running piece implements component.LifecycleComponent
// (Initialize, Start, Stop) and component.Discoverable (Meta,
// ConfigSchema, Health, DataFlow):
//
//   - neuro.Processor: the signal pipeline and its runtime controls
//   - guidance.Generator: queued text generation with neural guidance
//   - gateway.Server: the HTTP/websocket surface over both
//
// Shared infrastructure lives beside them: config (explicit JSON
// configuration), errors (classified errors with transient/invalid/
// fatal semantics), metric (Prometheus registry), natsclient (NATS
// with a circuit breaker), pkg/buffer, pkg/dsp, and pkg/retry.
//
// # Running
//
//	go run ./cmd/llamaneuro --config configs/default.json
//
// The default configuration runs fully self-contained: the signal is
// simulated, the generation backend is a deterministic stub, and NATS
// is disabled. Point LLAMANEURO_NATS_URL at a broker to publish
// classifications, and set the generator backend to "openai" (with
// OPENAI_API_KEY) for real completions.
package llamaneuro
