package controller

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/glog"

	"github.com/Kitware/VTK-sub105/comm"
)

// Tags used by the controller on the RMI communicator.
const (
	RMITag = 1 + iota
	RMIArgTag
	BreakRMITag
	XMLWriterDataInfo
)

const (
	headerWords = 128

	// Arguments shorter than the free part of the header
	// travel inside it.
	treeInlineBytes      = (headerWords - 4) * 4
	broadcastInlineBytes = (headerWords - 2) * 4
)

// An RMIFunc is a callback for a remote invocation.
//
// The argument is only valid during the call.
type RMIFunc func(arg []byte, remoteProcessID int)

type rmiCallback struct {
	id int
	fn RMIFunc
}

// AddRMI registers fn as the only callback for a tag,
// removing any callbacks that were registered before.
// It returns an id for RemoveRMI.
func (c *Controller) AddRMI(tag int, fn RMIFunc) int {
	c.RemoveAllRMICallbacks(tag)
	return c.AddRMICallback(tag, fn)
}

// AddRMICallback adds a callback for a tag. Callbacks for
// the same tag run in the order they were added.
// It returns an id for RemoveRMICallback.
func (c *Controller) AddRMICallback(tag int, fn RMIFunc) int {
	c.nextRMIID++
	c.rmis[tag] = append(c.rmis[tag], rmiCallback{id: c.nextRMIID, fn: fn})
	return c.nextRMIID
}

// AddRMIStreamCallback adds a callback that receives its
// argument as a Stream.
func (c *Controller) AddRMIStreamCallback(tag int, fn func(s *comm.Stream, remoteProcessID int)) int {
	return c.AddRMICallback(tag, func(arg []byte, remoteProcessID int) {
		fn(comm.NewStream(append([]byte{}, arg...)), remoteProcessID)
	})
}

// RemoveRMI is equivalent to RemoveRMICallback.
func (c *Controller) RemoveRMI(id int) bool {
	return c.RemoveRMICallback(id)
}

// RemoveRMICallback removes the callback with an id.
// It returns false if no callback has the id.
func (c *Controller) RemoveRMICallback(id int) bool {
	for tag, callbacks := range c.rmis {
		for i, cb := range callbacks {
			if cb.id == id {
				c.removeCallback(tag, i)
				return true
			}
		}
	}
	return false
}

// RemoveFirstRMI removes the oldest callback for a tag.
// It returns false if the tag has no callbacks.
func (c *Controller) RemoveFirstRMI(tag int) bool {
	if len(c.rmis[tag]) == 0 {
		return false
	}
	c.removeCallback(tag, 0)
	return true
}

// RemoveAllRMICallbacks removes every callback for a tag.
func (c *Controller) RemoveAllRMICallbacks(tag int) {
	delete(c.rmis, tag)
}

func (c *Controller) removeCallback(tag, idx int) {
	callbacks := append([]rmiCallback{}, c.rmis[tag][:idx]...)
	callbacks = append(callbacks, c.rmis[tag][idx+1:]...)
	if len(callbacks) == 0 {
		delete(c.rmis, tag)
	} else {
		c.rmis[tag] = callbacks
	}
}

// TriggerRMI invokes the callbacks for a tag on a remote
// rank. Triggering the local rank runs the callbacks
// immediately.
//
// In broadcast mode only the local rank can be triggered;
// use TriggerRMIOnAllChildren instead.
func (c *Controller) TriggerRMI(remote int, arg []byte, tag int) error {
	if remote == c.LocalProcessID() {
		return c.ProcessRMI(remote, arg, tag)
	}
	if c.mode != TreeDispatch {
		return fmt.Errorf("trigger RMI: %w: %s", ErrDispatchMode, c.mode)
	}
	return c.triggerRMIInternal(remote, arg, tag, false)
}

// TriggerRMIStream triggers an RMI whose argument is the
// contents of a Stream.
func (c *Controller) TriggerRMIStream(remote int, s *comm.Stream, tag int) error {
	return c.TriggerRMI(remote, s.Bytes(), tag)
}

// TriggerRMIOnAllChildren triggers an RMI on every rank
// below the local rank.
//
// In tree mode the local rank sends to its children in a
// binary tree, and they relay the trigger to their own
// children while they process RMIs.
// In broadcast mode the trigger is broadcast from rank 0,
// which must be the local rank.
func (c *Controller) TriggerRMIOnAllChildren(arg []byte, tag int) error {
	if c.mode == BroadcastDispatch {
		return c.broadcastTriggerRMI(arg, tag)
	}
	n := c.NumberOfProcesses()
	me := c.LocalProcessID()
	for _, child := range []int{2*me + 1, 2*me + 2} {
		if child < n {
			if err := c.triggerRMIInternal(child, arg, tag, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// TriggerBreakRMIs makes every other rank return from
// ProcessRMIs. It may only be called on rank 0.
func (c *Controller) TriggerBreakRMIs() error {
	if c.LocalProcessID() != 0 {
		return fmt.Errorf("trigger break RMIs: %w", ErrNotRoot)
	}
	if c.mode == BroadcastDispatch {
		return c.TriggerRMIOnAllChildren(nil, BreakRMITag)
	}
	for i := 1; i < c.NumberOfProcesses(); i++ {
		if err := c.TriggerRMI(i, nil, BreakRMITag); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) triggerRMIInternal(remote int, arg []byte, tag int, propagate bool) error {
	var flag int32
	if propagate {
		flag = 1
	}
	inline := len(arg) > 0 && len(arg) < treeInlineBytes
	header := encodeHeader([]int32{int32(tag), int32(len(arg)), int32(c.LocalProcessID()), flag},
		arg, inline)
	if glog.V(2) {
		glog.Infof("rank %d: trigger RMI %d on %d (%d bytes, propagate=%v)", c.LocalProcessID(),
			tag, remote, len(arg), propagate)
	}
	if err := comm.Send(c.rmiComm, header, remote, RMITag); err != nil {
		return fmt.Errorf("trigger RMI: %w", err)
	}
	if len(arg) > 0 && !inline {
		if err := comm.Send(c.rmiComm, arg, remote, RMIArgTag); err != nil {
			return fmt.Errorf("trigger RMI argument: %w", err)
		}
	}
	return nil
}

func (c *Controller) broadcastTriggerRMI(arg []byte, tag int) error {
	if c.LocalProcessID() != 0 {
		return fmt.Errorf("broadcast RMI: %w", ErrNotRoot)
	}
	inline := len(arg) > 0 && len(arg) < broadcastInlineBytes
	header := encodeHeader([]int32{int32(tag), int32(len(arg))}, arg, inline)
	if err := comm.Broadcast(c.rmiComm, header, 0); err != nil {
		return fmt.Errorf("broadcast RMI: %w", err)
	}
	if len(arg) > 0 && !inline {
		if err := comm.Broadcast(c.rmiComm, arg, 0); err != nil {
			return fmt.Errorf("broadcast RMI argument: %w", err)
		}
	}
	return nil
}

// ProcessRMIs receives and runs RMIs.
//
// If dontLoop is true, a single RMI is processed.
// Otherwise, RMIs are processed until a break RMI arrives.
// If reportErrors is true, RMIs without callbacks are
// logged. They never stop the loop.
func (c *Controller) ProcessRMIs(reportErrors, dontLoop bool) error {
	for {
		var err error
		if c.mode == BroadcastDispatch {
			err = c.processBroadcastRMI(reportErrors)
		} else {
			err = c.processTreeRMI(reportErrors)
		}
		if err != nil {
			if reportErrors {
				glog.Errorf("rank %d: %v", c.LocalProcessID(), err)
			}
			return err
		}
		if c.breakFlag {
			c.breakFlag = false
			return nil
		}
		if dontLoop {
			return nil
		}
	}
}

func (c *Controller) processTreeRMI(reportErrors bool) error {
	header := make([]byte, headerWords*4)
	if _, err := comm.Receive(c.rmiComm, header, comm.AnySource, RMITag); err != nil {
		return fmt.Errorf("%w: %v", ErrRMITag, err)
	}
	tag := headerWord(header, 0)
	argLen := headerWord(header, 1)
	sender := headerWord(header, 2)
	if c.peerRank != nil {
		sender = c.peerRank(sender)
	}
	propagate := headerWord(header, 3) == 1

	var arg []byte
	if argLen > 0 {
		if argLen < treeInlineBytes {
			arg = header[16 : 16+argLen]
		} else {
			arg = make([]byte, argLen)
			if _, err := comm.Receive(c.rmiComm, arg, sender, RMIArgTag); err != nil {
				return fmt.Errorf("%w: %v", ErrRMIArg, err)
			}
		}
	}
	if propagate && c.NumberOfProcesses() > 3 {
		if err := c.TriggerRMIOnAllChildren(arg, tag); err != nil {
			return err
		}
	}
	c.runRMI(sender, arg, tag, reportErrors)
	return nil
}

func (c *Controller) processBroadcastRMI(reportErrors bool) error {
	header := make([]byte, headerWords*4)
	if err := comm.Broadcast(c.rmiComm, header, 0); err != nil {
		return fmt.Errorf("%w: %v", ErrRMITag, err)
	}
	tag := headerWord(header, 0)
	argLen := headerWord(header, 1)

	var arg []byte
	if argLen > 0 {
		if argLen < broadcastInlineBytes {
			arg = header[8 : 8+argLen]
		} else {
			arg = make([]byte, argLen)
			if err := comm.Broadcast(c.rmiComm, arg, 0); err != nil {
				return fmt.Errorf("%w: %v", ErrRMIArg, err)
			}
		}
	}
	c.runRMI(0, arg, tag, reportErrors)
	return nil
}

func (c *Controller) runRMI(sender int, arg []byte, tag int, reportErrors bool) {
	if err := c.ProcessRMI(sender, arg, tag); err != nil && reportErrors {
		glog.Errorf("rank %d: %v", c.LocalProcessID(), err)
	}
}

// ProcessRMI runs the callbacks for a tag with an
// argument from a remote rank.
//
// Callbacks added or removed by a running callback take
// effect on the next RMI.
func (c *Controller) ProcessRMI(remoteProcessID int, arg []byte, tag int) error {
	callbacks := append([]rmiCallback{}, c.rmis[tag]...)
	if len(callbacks) == 0 {
		return fmt.Errorf("rank %d: %w %d", c.LocalProcessID(), ErrNoRMI, tag)
	}
	for _, cb := range callbacks {
		cb.fn(arg, remoteProcessID)
	}
	return nil
}

// encodeHeader lays out header words, followed by an
// inline argument if requested, in little-endian order.
func encodeHeader(words []int32, arg []byte, inline bool) []byte {
	header := make([]byte, headerWords*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(header[i*4:], uint32(w))
	}
	if inline {
		copy(header[len(words)*4:], arg)
	}
	return header
}

func headerWord(header []byte, idx int) int {
	return int(int32(binary.LittleEndian.Uint32(header[idx*4:])))
}
