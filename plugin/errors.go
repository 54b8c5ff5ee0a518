package plugin

import (
	"github.com/go-faster/errors"
	"github.com/oqtopus-team/cosim-plugin/core"
)

var (
	// ErrReentrant is returned when a callback is dispatched to a plugin
	// instance that is already running one.
	ErrReentrant = errors.New("invalid state, recursive callback")
	// ErrOutsideCallback is returned by Context methods after the callback
	// the Context was created for has returned.
	ErrOutsideCallback = errors.New("cannot call plugin operator outside of a callback")
	// ErrAlreadyStarted is returned when a Definition is run a second time.
	ErrAlreadyStarted = errors.New("plugin has been started before")
)

func requiredErr(name string) error {
	return core.DispatchErrorf("plugin doesn't implement handler %s, which is required", name)
}
