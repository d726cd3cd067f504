// Package prebuilt provides ready-made pipeline nodes for common patterns:
// synthetic load generation, TCP line intake, batching, attribute filtering,
// counting, and snapshot export. Each node exposes a small configuration and
// plugs into a pipeline builder unchanged.
package prebuilt
