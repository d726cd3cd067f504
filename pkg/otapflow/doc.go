// Package otapflow is the public facade of the engine. It constructs and
// runs telemetry pipelines from configuration without requiring callers to
// import internal packages directly.
//
// PRINCIPLES:
//   - One entry point: build an Engine from config.Config, then Run it.
//   - Re-export the payload types callers need; nothing else leaks out.
//   - Prebuilt node types are wired by name so pipelines stay declarative.
package otapflow
