// Package chaser cycles through scenes in the background.
package chaser

import (
	"context"
	"sync"
	"time"

	"dmxcore/internal/task"
)

// State of a chaser.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Info is a read-only view of a chaser.
type Info struct {
	ID       string
	Name     string
	SceneIDs []string
	Step     time.Duration
	State    State
	Index    int // scene index applied last
}

// Chaser replays SceneIDs in order, one every Step. The list and step are
// fixed at creation.
type Chaser struct {
	id       string
	name     string
	sceneIDs []string
	step     time.Duration

	mu     sync.Mutex
	state  State
	index  int
	handle *task.Handle
}

func newChaser(id, name string, sceneIDs []string, step time.Duration) *Chaser {
	return &Chaser{
		id:       id,
		name:     name,
		sceneIDs: append([]string(nil), sceneIDs...),
		step:     step,
	}
}

// Info returns the current view.
func (c *Chaser) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Info{
		ID:       c.id,
		Name:     c.name,
		SceneIDs: append([]string(nil), c.sceneIDs...),
		Step:     c.step,
		State:    c.state,
		Index:    c.index,
	}
}

// start launches the loop unless it already runs. apply is called with the
// scene id of each step. A loop still winding down from a timed out stop is
// waited for first, so one chaser never has two loops.
func (c *Chaser) start(ctx context.Context, apply func(sceneID string)) bool {
	for {
		c.mu.Lock()
		if c.state == Running {
			c.mu.Unlock()
			return false
		}
		prev := c.handle
		if prev == nil || prev.Finished() {
			c.launch(ctx, apply)
			c.mu.Unlock()
			return true
		}
		c.mu.Unlock()

		select {
		case <-prev.Done():
		case <-ctx.Done():
			return false
		}
	}
}

// launch starts the loop. Callers hold mu.
func (c *Chaser) launch(ctx context.Context, apply func(sceneID string)) {
	c.state = Running
	c.index = 0

	var h *task.Handle
	h = task.Go(ctx, "chaser-"+c.id, func(ctx context.Context) {
		c.run(ctx, apply)
		c.mu.Lock()
		if c.handle == h {
			c.state = Idle
			c.handle = nil
		}
		c.mu.Unlock()
	})
	c.handle = h
}

// run applies scene floor(elapsed/step) mod n at every step boundary. A late
// wakeup skips the steps it missed instead of replaying them.
func (c *Chaser) run(ctx context.Context, apply func(sceneID string)) {
	n := len(c.sceneIDs)
	if n == 0 {
		return
	}

	begin := time.Now()
	for k := 0; ; {
		if ctx.Err() != nil {
			return
		}
		idx := k % n
		c.mu.Lock()
		c.index = idx
		c.mu.Unlock()
		apply(c.sceneIDs[idx])

		next := begin.Add(time.Duration(k+1) * c.step)
		if !task.Sleep(ctx, time.Until(next)) {
			return
		}
		k = int(time.Since(begin) / c.step)
	}
}

// stop cancels the loop and waits up to timeout. The chaser is Idle when
// stop returns, even if the join timed out; the handle is kept until the
// loop has exited.
func (c *Chaser) stop(timeout time.Duration) error {
	c.mu.Lock()
	h := c.handle
	c.state = Idle
	c.mu.Unlock()

	if h == nil {
		return nil
	}
	return h.Stop(timeout)
}
