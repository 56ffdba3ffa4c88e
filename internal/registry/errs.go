package registry

import "errors"

// ErrWindowBuild is returned (wrapped) when Build is given colliding
// window names.
var ErrWindowBuild = errors.New("registry: window build failed")
