package plugin

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/oqtopus-team/cosim-plugin/core"
	"go.uber.org/zap"
)

// Source is where an ArbCmd came from.
type Source int

const (
	Host Source = iota
	Upstream
)

func (s Source) String() string {
	switch s {
	case Host:
		return "host"
	case Upstream:
		return "upstream"
	default:
		return "unknown"
	}
}

func handlerName(src Source, iface, oper string) string {
	return fmt.Sprintf("handle_%s_%s_%s", src, iface, oper)
}

type routeKey struct {
	src   Source
	iface string
	oper  string
}

// router maps ArbCmds to handlers. An interface is known for a source when
// an operation was registered on it or it was declared.
type router struct {
	routes map[routeKey]ArbHandler
	known  map[Source]map[string]bool
}

func newRouter() *router {
	return &router{
		routes: map[routeKey]ArbHandler{},
		known: map[Source]map[string]bool{
			Host:     {},
			Upstream: {},
		},
	}
}

func (r *router) register(src Source, iface, oper string, h ArbHandler) error {
	if err := checkIdentifier("interface ID", iface); err != nil {
		return err
	}
	if err := checkIdentifier("operation ID", oper); err != nil {
		return err
	}
	if h == nil {
		return errors.Wrapf(core.ErrValue, "%s is nil", handlerName(src, iface, oper))
	}
	key := routeKey{src: src, iface: iface, oper: oper}
	if _, ok := r.routes[key]; ok {
		return errors.Wrapf(core.ErrValue, "%s is registered twice", handlerName(src, iface, oper))
	}
	r.routes[key] = h
	r.known[src][iface] = true
	return nil
}

func (r *router) declare(src Source, iface string) error {
	if err := checkIdentifier("interface ID", iface); err != nil {
		return err
	}
	r.known[src][iface] = true
	return nil
}

func (r *router) knows(src Source, iface string) bool {
	return r.known[src][iface]
}

// dispatch calls the handler registered for cmd. Commands for unknown
// interfaces are ignored and answered with empty ArbData; an unknown
// operation on a known interface is an error.
func (r *router) dispatch(c *Context, src Source, cmd *core.ArbCmd) (*core.ArbData, error) {
	h, ok := r.routes[routeKey{src: src, iface: cmd.Iface(), oper: cmd.Oper()}]
	if !ok {
		if !r.knows(src, cmd.Iface()) {
			zap.L().Debug(fmt.Sprintf("ignoring command for unknown interface/source:%s/iface:%s/oper:%s",
				src, cmd.Iface(), cmd.Oper()))
			return core.NewArbData(), nil
		}
		return nil, core.DispatchErrorf("invalid operation ID %s for interface ID %s", cmd.Oper(), cmd.Iface())
	}
	res, err := h(c, cmd)
	if err != nil {
		return nil, errors.Wrap(err, handlerName(src, cmd.Iface(), cmd.Oper()))
	}
	if res == nil {
		return core.NewArbData(), nil
	}
	return res, nil
}
