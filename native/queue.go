package native

import (
	"fmt"

	conq "github.com/enriquebris/goconcurrentqueue"
	"go.uber.org/zap"
)

type fifo interface {
	Enqueue(*arbObj) error
	Dequeue() (*arbObj, error)
	GetLen() int
}

type conqFIFO struct {
	conq.FIFO
}

func newConqFIFO() *conqFIFO {
	return &conqFIFO{
		FIFO: *conq.NewFIFO(),
	}
}

func (c *conqFIFO) Enqueue(a *arbObj) error {
	return c.FIFO.Enqueue(a)
}

func (c *conqFIFO) Dequeue() (*arbObj, error) {
	tmp, err := c.FIFO.Dequeue()
	if err != nil {
		return nil, err
	}
	return tmp.(*arbObj), nil
}

func (c *conqFIFO) GetLen() int {
	return c.FIFO.GetLen()
}

// messageQueue carries ArbData between the host and a frontend.
type messageQueue struct {
	name string
	fifo fifo
}

func newMessageQueue(name string) *messageQueue {
	return &messageQueue{
		name: name,
		fifo: newConqFIFO(),
	}
}

func (q *messageQueue) push(a *arbObj) error {
	if err := q.fifo.Enqueue(a.clone()); err != nil {
		zap.L().Error(fmt.Sprintf("failed to enqueue to %s/reason:%s", q.name, err))
		return err
	}
	zap.L().Debug(fmt.Sprintf("enqueued to %s/len:%d", q.name, q.fifo.GetLen()))
	return nil
}

func (q *messageQueue) pop() (*arbObj, bool) {
	a, err := q.fifo.Dequeue()
	if err != nil {
		zap.L().Debug(fmt.Sprintf("no message in %s", q.name), zap.Error(err))
		return nil, false
	}
	return a, true
}

func (q *messageQueue) len() int {
	return q.fifo.GetLen()
}
