package imageenhancer

import "github.com/bodrovdev/image-enhancer/core"

// Inner exposes the underlying core.Orchestrator for advanced use (e.g.,
// direct gate inspection in tests).  Prefer the high-level API for normal
// usage.
func (e *Enhancer) Inner() *core.Orchestrator { return e.inner }
