// Package inproc implements comm.Communicator for ranks
// that live in the same process, one Goroutine per rank.
package inproc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/unixpickle/essentials"

	"github.com/Kitware/VTK-sub105/comm"
)

// ErrDeadlock is returned by receives that can never
// complete because every live rank is waiting.
var ErrDeadlock = errors.New("deadlock: all ranks are waiting to receive")

// A World is a set of ranks that exchange messages through
// shared memory.
//
// Ranks should be driven by Goroutines started with Go.
// The World watches those Goroutines, and if all of them
// are blocked in a receive at once, it fails every pending
// and future receive with ErrDeadlock.
type World struct {
	id   uuid.UUID
	size int

	lock      sync.Mutex
	mailboxes []*mailbox
	contexts  map[contextKey]int
	live      map[int]bool
	failure   error

	running  bool
	notifyCh chan struct{}
}

type contextKey struct {
	parent int
	index  int
}

type message struct {
	context int
	source  int
	tag     int
	typ     comm.DataType
	data    []byte
}

type waiter struct {
	context int
	source  int
	tag     int
	ch      chan *message
}

func (w *waiter) matches(m *message) bool {
	return w.context == m.context && w.tag == m.tag &&
		(w.source == comm.AnySource || w.source == m.source)
}

type mailbox struct {
	pending []*message
	waiter  *waiter
}

// NewWorld creates a World with the given number of ranks.
func NewWorld(size int) *World {
	if size < 1 {
		panic("world must have at least one rank")
	}
	w := &World{
		id:        uuid.New(),
		size:      size,
		mailboxes: make([]*mailbox, size),
		contexts:  map[contextKey]int{},
		live:      map[int]bool{},
		notifyCh:  make(chan struct{}, 1),
	}
	for i := range w.mailboxes {
		w.mailboxes[i] = &mailbox{}
	}
	return w
}

// ID returns a unique identifier for the world, used in
// log messages.
func (w *World) ID() uuid.UUID {
	return w.id
}

// Size returns the number of ranks.
func (w *World) Size() int {
	return w.size
}

// Communicator returns the communicator for a rank in the
// world's base context.
func (w *World) Communicator(rank int) *Communicator {
	if rank < 0 || rank >= w.size {
		panic(fmt.Sprintf("rank %d out of range [0, %d)", rank, w.size))
	}
	return &Communicator{world: w, rank: rank}
}

// Go runs f in a Goroutine on behalf of a rank.
//
// At most one Goroutine may drive a rank at a time.
func (w *World) Go(rank int, f func(c *Communicator)) {
	c := w.Communicator(rank)
	w.lock.Lock()
	if w.live[rank] {
		w.lock.Unlock()
		panic(fmt.Sprintf("rank %d already has a Goroutine", rank))
	}
	w.live[rank] = true
	w.lock.Unlock()
	go func() {
		defer w.modifyLive(func() {
			delete(w.live, rank)
		})
		f(c)
	}()
}

// Run blocks until every Goroutine started with Go has
// returned.
//
// It is not safe to run the world from more than one
// Goroutine at once.
//
// Returns ErrDeadlock if the ranks deadlocked.
func (w *World) Run() error {
	w.lock.Lock()
	if w.running {
		w.lock.Unlock()
		panic("World is already running")
	}
	w.running = true
	w.lock.Unlock()

	defer func() {
		w.lock.Lock()
		w.running = false
		w.lock.Unlock()
	}()

	for {
		if done, err := w.step(); done {
			return err
		}
		<-w.notifyCh
	}
}

// Spawn creates a World of the given size, runs f once per
// rank, and waits for every rank to finish.
func Spawn(size int, f func(c *Communicator)) error {
	w := NewWorld(size)
	for i := 0; i < size; i++ {
		w.Go(i, f)
	}
	return w.Run()
}

// step checks whether the world has finished or
// deadlocked.
func (w *World) step() (bool, error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	if len(w.live) == 0 {
		return true, w.failure
	}
	if w.failure != nil {
		return false, nil
	}
	for rank := range w.live {
		if w.mailboxes[rank].waiter == nil {
			return false, nil
		}
	}

	glog.Errorf("world %s: %d ranks deadlocked", w.id, len(w.live))
	w.failure = ErrDeadlock
	for _, box := range w.mailboxes {
		if box.waiter != nil {
			close(box.waiter.ch)
			box.waiter = nil
		}
	}
	return false, nil
}

// modifyLive calls f with the lock held and wakes up Run
// to re-check the world state.
func (w *World) modifyLive(f func()) {
	w.lock.Lock()
	defer func() {
		w.lock.Unlock()
		select {
		case w.notifyCh <- struct{}{}:
		default:
		}
	}()
	f()
}

// duplicateContext returns the context for the index'th
// duplicate of a parent context.
// Every rank that duplicates the same parent in the same
// order gets the same context.
func (w *World) duplicateContext(parent, index int) int {
	w.lock.Lock()
	defer w.lock.Unlock()
	key := contextKey{parent: parent, index: index}
	if ctx, ok := w.contexts[key]; ok {
		return ctx
	}
	ctx := len(w.contexts) + 1
	w.contexts[key] = ctx
	return ctx
}

func (w *World) deliver(dest int, msg *message) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.failure != nil {
		return w.failure
	}
	box := w.mailboxes[dest]
	if box.waiter != nil && box.waiter.matches(msg) {
		box.waiter.ch <- msg
		box.waiter = nil
		return nil
	}
	box.pending = append(box.pending, msg)
	return nil
}

func (w *World) receive(rank, context, source, tag int) (*message, error) {
	var ch chan *message
	var found *message
	var failure error
	w.modifyLive(func() {
		if w.failure != nil {
			failure = w.failure
			return
		}
		box := w.mailboxes[rank]
		wait := &waiter{context: context, source: source, tag: tag}
		for i, msg := range box.pending {
			if wait.matches(msg) {
				found = msg
				essentials.OrderedDelete(&box.pending, i)
				return
			}
		}
		ch = make(chan *message, 1)
		wait.ch = ch
		box.waiter = wait
	})
	if failure != nil {
		return nil, failure
	} else if found != nil {
		return found, nil
	}
	msg, ok := <-ch
	if !ok {
		return nil, ErrDeadlock
	}
	return msg, nil
}
