package allreduce

import (
	"fmt"

	"github.com/unixpickle/essentials"

	"github.com/Kitware/VTK-sub105/comm"
)

// A StreamAllreducer splits a vector up into smaller
// messages and streams the messages through all the ranks
// at once, in a ring.
//
// The reduction has two phases: Reduce and Broadcast.
// During Reduce, the fully reduced vector arrives at the
// first rank.
// During Broadcast, the reduced vector is streamed from
// the first rank to all the other ranks.
//
// Chunks are combined in rank order from the left, as
// ((v0 op v1) op v2) and so on.
// The ranks synchronize with a barrier before returning,
// so consecutive calls never see each other's packets.
type StreamAllreducer struct {
	// Granularity determines how many chunks the data is
	// split up into.
	// The actual number of chunks is multiplied by the
	// number of ranks.
	//
	// If Granularity is 0, it is treated as 1.
	Granularity int
}

// Allreduce calls op on chunks of data at a time and
// returns a vector resulting from the final reduction.
func (s StreamAllreducer) Allreduce(h *Host, data []byte, op comm.Operation) ([]byte, error) {
	numElems := len(data) / h.Type.Size()
	if numElems == 0 || h.Size() == 1 {
		return append([]byte{}, data...), nil
	}
	r := &streamRun{
		host:      h,
		op:        op,
		chunkSize: s.chunkSize(h, numElems),
	}
	var res []byte
	var err error
	if h.Index() == 0 {
		res, err = r.allreduceRoot(data)
	} else {
		res, err = r.allreduceOther(data)
	}
	if err != nil {
		return nil, essentials.AddCtx("stream allreduce", err)
	}
	if err := comm.Barrier(h.Comm); err != nil {
		return nil, essentials.AddCtx("stream allreduce", err)
	}
	return res, nil
}

// chunkSize returns the number of bytes per chunk.
func (s StreamAllreducer) chunkSize(h *Host, numElems int) int {
	granularity := s.Granularity
	if granularity == 0 {
		granularity = 1
	}
	chunkSize := numElems / (h.Size() * granularity)
	if chunkSize < 1 {
		chunkSize = 1
	}
	return chunkSize * h.Type.Size()
}

type streamRun struct {
	host      *Host
	op        comm.Operation
	chunkSize int
}

func (r *streamRun) chunkify(data []byte) [][]byte {
	var res [][]byte
	for i := 0; i < len(data); i += r.chunkSize {
		if i+r.chunkSize > len(data) {
			res = append(res, data[i:])
		} else {
			res = append(res, data[i:i+r.chunkSize])
		}
	}
	return res
}

func (r *streamRun) send(t streamPacketType, payload []byte) error {
	return (&streamPacket{packetType: t, payload: payload}).Send(r.host)
}

func (r *streamRun) allreduceRoot(data []byte) ([]byte, error) {
	chunksOut := r.chunkify(data)
	reduced := make([]byte, 0, len(data))

	// Kick off the reduction cycle.
	if err := r.send(streamPacketReduce, chunksOut[0]); err != nil {
		return nil, err
	}
	chunksOut = chunksOut[1:]

	// Push the reduction through the ring.
	waitingReduceAck := true
	for len(reduced) < len(data) {
		packet, err := recvStreamPacket(r.host, r.chunkSize)
		if err != nil {
			return nil, err
		}
		switch packet.packetType {
		case streamPacketReduce:
			reduced = append(reduced, packet.payload...)
			if err := r.send(streamPacketReduceAck, nil); err != nil {
				return nil, err
			}
		case streamPacketReduceAck:
			if !waitingReduceAck {
				return nil, errUnexpected(packet)
			}
			if len(chunksOut) > 0 {
				if err := r.send(streamPacketReduce, chunksOut[0]); err != nil {
					return nil, err
				}
				chunksOut = chunksOut[1:]
			} else {
				waitingReduceAck = false
			}
		default:
			return nil, errUnexpected(packet)
		}
	}

	if len(chunksOut) > 0 {
		return nil, fmt.Errorf("reduction finished with %d chunks unsent", len(chunksOut))
	} else if len(reduced) != len(data) {
		return nil, fmt.Errorf("reduced %d bytes but expected %d", len(reduced), len(data))
	}

	// Push the data through the bcast cycle.
	for _, chunk := range r.chunkify(reduced) {
		if err := r.send(streamPacketBcast, chunk); err != nil {
			return nil, err
		}
		for {
			packet, err := recvStreamPacket(r.host, r.chunkSize)
			if err != nil {
				return nil, err
			}
			if packet.packetType == streamPacketReduceAck {
				if !waitingReduceAck {
					return nil, errUnexpected(packet)
				}
				waitingReduceAck = false
			} else if packet.packetType == streamPacketBcastAck {
				break
			} else {
				return nil, errUnexpected(packet)
			}
		}
	}

	return reduced, nil
}

func (r *streamRun) allreduceOther(data []byte) ([]byte, error) {
	var reduced []byte

	isLastNode := r.host.Index()+1 == r.host.Size()

	// Reduce our data into the stream.
	var reduceBlocked bool
	var reduceBuf []*streamPacket
	remainingData := data
	for len(reduced) == 0 {
		packet, err := recvStreamPacket(r.host, r.chunkSize)
		if err != nil {
			return nil, err
		}
		switch packet.packetType {
		case streamPacketReduce:
			if err := r.send(streamPacketReduceAck, nil); err != nil {
				return nil, err
			}
			if len(packet.payload) > len(remainingData) {
				return nil, fmt.Errorf("received %d bytes past the end of the vector",
					len(packet.payload)-len(remainingData))
			}
			chunk := append([]byte{}, remainingData[:len(packet.payload)]...)
			if err := r.op.Apply(packet.payload, chunk, r.host.Type); err != nil {
				return nil, err
			}
			remainingData = remainingData[len(packet.payload):]
			outPacket := &streamPacket{packetType: streamPacketReduce, payload: chunk}
			reduceBuf = append(reduceBuf, outPacket)
		case streamPacketReduceAck:
			if !reduceBlocked {
				return nil, errUnexpected(packet)
			}
			reduceBlocked = false
		case streamPacketBcast:
			if len(reduceBuf) > 0 {
				return nil, fmt.Errorf("got bcast before reduce finished")
			}
			reduced = append(reduced, packet.payload...)
			if err := r.send(streamPacketBcastAck, nil); err != nil {
				return nil, err
			}
			if !isLastNode {
				// Otherwise, the packet will never reach
				// the next rank in the ring.
				if err := packet.Send(r.host); err != nil {
					return nil, err
				}
			}
		default:
			return nil, errUnexpected(packet)
		}
		if !reduceBlocked && len(reduceBuf) > 0 {
			if err := reduceBuf[0].Send(r.host); err != nil {
				return nil, err
			}
			essentials.OrderedDelete(&reduceBuf, 0)
			reduceBlocked = true
		}
	}

	// Read the broadcasted reduction.
	bcastBlocked := !isLastNode
	var bcastBuf []*streamPacket
	for len(reduced) < len(data) || len(bcastBuf) > 0 || bcastBlocked || reduceBlocked {
		packet, err := recvStreamPacket(r.host, r.chunkSize)
		if err != nil {
			return nil, err
		}
		switch packet.packetType {
		case streamPacketReduceAck:
			if !reduceBlocked {
				return nil, errUnexpected(packet)
			}
			reduceBlocked = false
		case streamPacketBcast:
			reduced = append(reduced, packet.payload...)
			if err := r.send(streamPacketBcastAck, nil); err != nil {
				return nil, err
			}
			if !isLastNode {
				outPacket := &streamPacket{packetType: streamPacketBcast, payload: packet.payload}
				bcastBuf = append(bcastBuf, outPacket)
			}
		case streamPacketBcastAck:
			if !bcastBlocked {
				return nil, errUnexpected(packet)
			}
			bcastBlocked = false
		default:
			return nil, errUnexpected(packet)
		}
		if !bcastBlocked && len(bcastBuf) > 0 {
			if err := bcastBuf[0].Send(r.host); err != nil {
				return nil, err
			}
			essentials.OrderedDelete(&bcastBuf, 0)
			bcastBlocked = true
		}
	}

	return reduced, nil
}

type streamPacketType byte

const (
	streamPacketReduce streamPacketType = iota
	streamPacketReduceAck
	streamPacketBcast
	streamPacketBcastAck
)

func (s streamPacketType) String() string {
	switch s {
	case streamPacketReduce:
		return "reduce"
	case streamPacketReduceAck:
		return "reduce ACK"
	case streamPacketBcast:
		return "bcast"
	case streamPacketBcastAck:
		return "bcast ACK"
	}
	return fmt.Sprintf("packet(%d)", byte(s))
}

type streamPacket struct {
	packetType streamPacketType
	payload    []byte
}

func errUnexpected(p *streamPacket) error {
	return fmt.Errorf("unexpected %s packet", p.packetType)
}

// recvStreamPacket receives the next packet from either
// neighbor.
func recvStreamPacket(h *Host, maxPayload int) (*streamPacket, error) {
	buf := make([]byte, 1+maxPayload)
	n, err := h.Comm.ReceiveVoidArray(buf, comm.Uint8, comm.AnySource, h.Tag)
	if err != nil {
		return nil, err
	} else if n < 1 {
		return nil, fmt.Errorf("empty stream packet")
	}
	return &streamPacket{packetType: streamPacketType(buf[0]), payload: buf[1:n]}, nil
}

// Send sends the packet to the appropriate rank.
// For ACKs, this is the previous rank.
// For other messages, this is the next rank.
func (s *streamPacket) Send(h *Host) error {
	idx := h.Index()
	var dstIdx int
	if s.packetType == streamPacketReduceAck || s.packetType == streamPacketBcastAck {
		dstIdx = idx - 1
		if dstIdx < 0 {
			dstIdx = h.Size() - 1
		}
	} else {
		dstIdx = (idx + 1) % h.Size()
	}
	msg := append([]byte{byte(s.packetType)}, s.payload...)
	return h.Comm.SendVoidArray(msg, comm.Uint8, dstIdx, h.Tag)
}
