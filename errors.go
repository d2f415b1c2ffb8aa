package rendertree

import "errors"

// ErrInitFailed indicates that render construction could not complete.
// It never escapes the engine: New converts it into StatusFailed, which
// callers observe through [TreeRender.Status].
var ErrInitFailed = errors.New("rendertree: render initialization failed")
