package handle

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/oqtopus-team/cosim-plugin/native"
	"github.com/tidwall/pretty"
	"go.uber.org/zap"
)

var (
	ErrTaken   = errors.New("using explicitly taken handle")
	ErrInvalid = errors.New("invalid handle")
)

// Registry is the part of the engine a Handle needs to manage its resource.
type Registry interface {
	HandleDelete(h native.ID) error
	HandleType(h native.ID) (native.HandleType, error)
	HandleDump(h native.ID) (string, error)
}

// Handle is a proxy for one engine-side resource. An owned handle deletes
// its resource on Release unless ownership was transferred with Take.
// Borrowed handles never delete anything.
type Handle struct {
	reg   Registry
	id    native.ID
	owned bool
	taken bool
}

// New wraps a resource the caller owns.
func New(reg Registry, id native.ID) *Handle {
	return &Handle{reg: reg, id: id, owned: true}
}

// Borrowed wraps a resource owned by someone else.
func Borrowed(reg Registry, id native.ID) *Handle {
	return &Handle{reg: reg, id: id}
}

func (h *Handle) IsValid() bool {
	return h != nil && !h.taken && h.id > 0
}

func (h *Handle) Owned() bool {
	return h.owned
}

func (h *Handle) check() error {
	if h.taken {
		return ErrTaken
	}
	if h.id == 0 {
		return ErrInvalid
	}
	return nil
}

// Borrow returns the id without transferring ownership.
func (h *Handle) Borrow() (native.ID, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	return h.id, nil
}

// Take transfers ownership of the resource to the caller. Every further
// operation on h fails with ErrTaken.
func (h *Handle) Take() (native.ID, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	id := h.id
	h.taken = true
	h.owned = false
	h.id = 0
	return id, nil
}

func (h *Handle) TypeOf() (native.HandleType, error) {
	if err := h.check(); err != nil {
		return native.HandleTypeInvalid, err
	}
	return h.reg.HandleType(h.id)
}

// Dump returns the engine's debug dump of the resource, indented.
func (h *Handle) Dump() (string, error) {
	if err := h.check(); err != nil {
		return "", err
	}
	s, err := h.reg.HandleDump(h.id)
	if err != nil {
		return "", err
	}
	return string(pretty.Pretty([]byte(s))), nil
}

// Release deletes the resource if h owns a valid one. It is safe to call
// more than once. A failing delete is logged and the resource is leaked.
func (h *Handle) Release() {
	if h == nil || !h.owned || h.taken || h.id == 0 {
		return
	}
	id := h.id
	h.owned = false
	h.id = 0
	if err := h.reg.HandleDelete(id); err != nil {
		zap.L().Warn(fmt.Sprintf("failed to release handle/id:%d/reason:%s", id, err))
	}
}

func (h *Handle) String() string {
	switch {
	case h.taken:
		return "Handle(taken)"
	case h.id == 0:
		return "Handle(invalid)"
	case h.owned:
		return fmt.Sprintf("Handle(%d)", h.id)
	default:
		return fmt.Sprintf("Handle(%d, borrowed)", h.id)
	}
}

// ReleaseAll releases every non-nil handle.
func ReleaseAll(hs ...*Handle) {
	for _, h := range hs {
		h.Release()
	}
}
