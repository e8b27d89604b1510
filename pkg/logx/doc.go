// Package logx provides the zerolog-backed structured logging used across
// tickwheel. Sinks (console, file) and the level can be swapped at runtime
// via Service.Apply, while Logger values handed out earlier keep logging
// through the new sinks.
package logx
