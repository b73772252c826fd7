// Package generation turns source units into structured documentation by
// calling generative text backends. A Chain tries its backends in configured
// order and accepts the first output that conforms to the expected JSON
// schema. Backend implementations live under internal/platform.
package generation
