// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"sync"
	"sync/atomic"

	"github.com/relabs-tech/posture_monitor/internal/accel"
)

// Classifier holds the current posture verdict and updates it from every
// delivered sample. It implements accel.Listener.
//
// There is a single writer path (OnSample) and any number of readers. The
// verdict starts as Bad and is never reset; when samples stop arriving the
// last verdict simply persists.
type Classifier struct {
	verdict atomic.Uint32

	mu   sync.Mutex
	subs map[int]chan Verdict
	next int
}

// NewClassifier returns a classifier whose verdict is Bad.
func NewClassifier() *Classifier {
	return &Classifier{subs: make(map[int]chan Verdict)}
}

// Verdict returns the current verdict.
func (c *Classifier) Verdict() Verdict {
	return Verdict(c.verdict.Load())
}

// OnSample classifies s and stores the result. A nil sample is a no-op.
func (c *Classifier) OnSample(s *accel.Sample) {
	if s == nil {
		return
	}
	v := Classify(*s)
	if prev := Verdict(c.verdict.Swap(uint32(v))); prev != v {
		c.notify(v)
	}
}

// OnAccuracyChanged is accepted and ignored; accuracy has no bearing on the
// verdict.
func (c *Classifier) OnAccuracyChanged(accel.Accuracy) {}

// Subscribe returns a channel that receives the verdict every time it
// changes, plus a cancel func that closes it. The channel holds at most one
// pending value: a slow reader only ever sees the latest verdict.
func (c *Classifier) Subscribe() (<-chan Verdict, func()) {
	ch := make(chan Verdict, 1)

	c.mu.Lock()
	id := c.next
	c.next++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (c *Classifier) notify(v Verdict) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range c.subs {
		// latest value wins
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}
