package core

import (
	"strings"

	"github.com/oqtopus-team/cosim-plugin/handle"
	"github.com/oqtopus-team/cosim-plugin/native"
)

// ArbCmdQueue is an ordered list of commands. Duplicates are allowed.
type ArbCmdQueue struct {
	cmds []*ArbCmd
}

func ArbCmdQueueFromItems(cmds ...*ArbCmd) (*ArbCmdQueue, error) {
	return ArbCmdQueueFromSlice(cmds)
}

func ArbCmdQueueFromSlice(cmds []*ArbCmd) (*ArbCmdQueue, error) {
	q := &ArbCmdQueue{cmds: make([]*ArbCmd, 0, len(cmds))}
	for i, c := range cmds {
		if c == nil {
			return nil, typeErrorf("command %d is nil", i)
		}
		q.cmds = append(q.cmds, c.Clone())
	}
	return q, nil
}

// Cmds returns copies of the queued commands in order.
func (q *ArbCmdQueue) Cmds() []*ArbCmd {
	cmds := make([]*ArbCmd, len(q.cmds))
	for i, c := range q.cmds {
		cmds[i] = c.Clone()
	}
	return cmds
}

func (q *ArbCmdQueue) Len() int {
	return len(q.cmds)
}

func (q *ArbCmdQueue) Push(c *ArbCmd) error {
	if c == nil {
		return typeErrorf("command is nil")
	}
	q.cmds = append(q.cmds, c.Clone())
	return nil
}

func (q *ArbCmdQueue) Equal(o *ArbCmdQueue) bool {
	if len(q.cmds) != len(o.cmds) {
		return false
	}
	for i := range q.cmds {
		if !q.cmds[i].Equal(o.cmds[i]) {
			return false
		}
	}
	return true
}

func (q *ArbCmdQueue) String() string {
	parts := make([]string, len(q.cmds))
	for i, c := range q.cmds {
		parts[i] = c.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (q *ArbCmdQueue) ToRaw(eng native.Engine) (*handle.Handle, error) {
	id, err := eng.CqNew()
	if err != nil {
		return nil, err
	}
	h := handle.New(eng, id)
	for _, c := range q.cmds {
		if err := pushCmd(eng, id, c); err != nil {
			h.Release()
			return nil, err
		}
	}
	return h, nil
}

func pushCmd(eng native.Engine, queue native.ID, c *ArbCmd) error {
	ch, err := c.Encode(eng)
	if err != nil {
		return err
	}
	defer ch.Release()
	cid, err := ch.Borrow()
	if err != nil {
		return err
	}
	if err := eng.CqPush(queue, cid); err != nil {
		return err
	}
	_, err = ch.Take()
	return err
}

// ArbCmdQueueFromRaw drains the engine-side queue in order.
func ArbCmdQueueFromRaw(eng native.Engine, h *handle.Handle) (*ArbCmdQueue, error) {
	id, err := h.Borrow()
	if err != nil {
		return nil, err
	}
	return cmdQueueFromID(eng, id)
}

func cmdQueueFromID(eng native.Engine, id native.ID) (*ArbCmdQueue, error) {
	q := &ArbCmdQueue{}
	for {
		n, err := eng.CqLen(id)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return q, nil
		}
		cid, err := eng.CqPop(id)
		if err != nil {
			return nil, err
		}
		ch := handle.New(eng, cid)
		c, err := DecodeArbCmd(eng, ch)
		ch.Release()
		if err != nil {
			return nil, err
		}
		q.cmds = append(q.cmds, c)
	}
}
