// Package inproc runs a group of ranks as Goroutines in
// the current process, connected by channels.
package inproc

import (
	"context"
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/unixpickle/distvec/collcomm"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// A World is a fixed-size group of in-process ranks.
type World struct {
	size int
}

// NewWorld creates a world of size ranks.
func NewWorld(size int) *World {
	if size < 1 {
		exceptions.Panicf("inproc: cannot create a world of %d ranks", size)
	}
	return &World{size: size}
}

// Size returns the number of ranks.
func (w *World) Size() int {
	return w.size
}

// Run calls fn once per rank, each in its own Goroutine,
// and waits for all of them.
//
// If a rank fails, by returning an error or by panicking
// with one, collectives blocked in the other ranks are
// aborted and Run returns the first failure. A rank that
// returns early without error leaves its peers blocked in
// their next collective, and Run never returns.
func (w *World) Run(fn func(c collcomm.Communicator) error) error {
	session := uuid.New()
	klog.V(2).Infof("[%s] starting %d in-process ranks", session, w.size)

	g, ctx := errgroup.WithContext(context.Background())
	links := make([][]chan []float64, w.size)
	for src := range links {
		links[src] = make([]chan []float64, w.size)
		for dst := range links[src] {
			links[src][dst] = make(chan []float64, 1)
		}
	}
	for rank := range w.size {
		g.Go(func() error {
			c := &comm{
				ctx:     ctx,
				session: session,
				rank:    rank,
				links:   links,
			}
			var err error
			if exception := exceptions.TryCatch[error](func() { err = fn(c) }); exception != nil {
				return errors.Wrapf(exception, "rank %d panicked", rank)
			}
			return errors.Wrapf(err, "rank %d", rank)
		})
	}
	return g.Wait()
}

// comm is one rank's Communicator.
//
// links[src][dst] carries messages from src to dst in
// order, which is all the matching the collectives need.
type comm struct {
	ctx     context.Context
	session uuid.UUID
	rank    int
	links   [][]chan []float64
	epoch   int64
}

func (c *comm) Rank() int {
	return c.rank
}

func (c *comm) Size() int {
	return len(c.links)
}

// Allreduce gathers every contribution on rank 0, reduces
// them in rank order and sends the result back out.
func (c *comm) Allreduce(data []float64, op collcomm.ReduceOp) []float64 {
	c.begin("allreduce", op.String(), len(data))
	if c.rank != 0 {
		c.send(0, data)
		return c.recv(0)
	}
	res := append([]float64{}, data...)
	for src := 1; src < c.Size(); src++ {
		op.Apply(res, c.recv(src))
	}
	for dst := 1; dst < c.Size(); dst++ {
		c.send(dst, append([]float64{}, res...))
	}
	return res
}

func (c *comm) Scatterv(root int, sendBuf []float64, counts, displs []int) []float64 {
	collcomm.CheckRoot(c.Size(), root)
	if c.rank == root {
		collcomm.CheckScatterv(c.Size(), root, sendBuf, counts, displs)
	}
	c.begin("scatterv", fmt.Sprintf("root=%d", root), len(sendBuf))

	if c.rank != root {
		recv := c.recv(root)
		collcomm.CheckReceived(c.rank, recv, counts)
		return recv
	}
	var own []float64
	for dst := range c.Size() {
		part := append([]float64{}, sendBuf[displs[dst]:displs[dst]+counts[dst]]...)
		if dst == root {
			own = part
		} else {
			c.send(dst, part)
		}
	}
	return own
}

func (c *comm) send(dst int, data []float64) {
	select {
	case c.links[c.rank][dst] <- data:
	case <-c.ctx.Done():
		c.abort()
	}
}

func (c *comm) recv(src int) []float64 {
	select {
	case data := <-c.links[src][c.rank]:
		return data
	case <-c.ctx.Done():
		c.abort()
		return nil
	}
}

func (c *comm) abort() {
	exceptions.Panicf("inproc: rank %d aborted in epoch %d: %v", c.rank, c.epoch,
		context.Cause(c.ctx))
}

func (c *comm) begin(name, detail string, n int) {
	c.epoch++
	klog.V(4).Infof("[%s] rank %d/%d: %s(%s) epoch=%d len=%d", c.session, c.rank,
		c.Size(), name, detail, c.epoch, n)
}
