package ptt

import "time"

// Conn is the minimal surface the handler needs from a client socket. The
// transport adapter's *websocket.Conn satisfies it directly; tests use a
// fake.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Protocol distinguishes a client's wire dialect: legacy plain-text frames
// (RTS/STOP/CTS/...) or the JSON signaling envelope (ready/offer/cts/...).
// A connection starts as ProtocolLegacy and switches to ProtocolJSON the
// first time it sends a JSON signaling frame; it never switches back.
type Protocol int

const (
	ProtocolLegacy Protocol = iota
	ProtocolJSON
)

// WireType tells the write pump which websocket frame type to use. Kept
// independent of gorilla/websocket's own constants so this package doesn't
// need to import the transport library just to queue a frame.
type WireType int

const (
	WireText WireType = iota
	WireBinary
)

// outboundFrame is one queued write, tagged with the frame type the
// transport must use.
type outboundFrame struct {
	wireType WireType
	data     []byte
}

// outboxSize matches the bounded, fire-and-forget channel size the
// reference hub uses for its per-client send buffer.
const outboxSize = 256

// Peer is the per-connection state the room actor owns. Every field is
// touched only from the owning room's actor goroutine; the outbox channel
// is the sole hand-off point to the dedicated write-pump goroutine that
// owns the actual socket write.
type Peer struct {
	ID        string
	conn      Conn
	outbox    chan outboundFrame
	outClosed bool
	Protocol  Protocol

	// Queue/registration identity. Key is empty until RTS or "ready".
	Key         string
	Priority    int
	JoinTime    time.Time
	ManualOrder *int

	Buffer *CaptureBuffer
}

// NewPeer wraps a connection. The caller is responsible for starting the
// write pump over Outbox().
func NewPeer(id string, conn Conn) *Peer {
	return &Peer{
		ID:     id,
		conn:   conn,
		outbox: make(chan outboundFrame, outboxSize),
	}
}

// Outbox exposes the send channel for the transport's write pump.
func (p *Peer) Outbox() <-chan outboundFrame {
	return p.outbox
}

// WritePump drains the outbox until it's closed, handing each frame's wire
// type and bytes to write. Intended to run in its own goroutine for the
// life of the connection; returns when the outbox closes or write
// reports an error.
func (p *Peer) WritePump(write func(wireType WireType, data []byte) error) {
	for f := range p.outbox {
		if err := write(f.wireType, f.data); err != nil {
			return
		}
	}
}

// SendText enqueues a plain-text frame, best-effort.
func (p *Peer) SendText(data []byte) bool {
	return p.send(outboundFrame{wireType: WireText, data: data})
}

// SendBinary enqueues a binary frame, best-effort.
func (p *Peer) SendBinary(data []byte) bool {
	return p.send(outboundFrame{wireType: WireBinary, data: data})
}

// send is best-effort: a full outbox drops the frame rather than blocking
// the room actor.
func (p *Peer) send(f outboundFrame) bool {
	if p.outClosed {
		return false
	}
	select {
	case p.outbox <- f:
		return true
	default:
		return false
	}
}

// CloseOutbox stops the write pump by closing its channel. Calls after the
// first are no-ops, so the room actor's shutdown path and the ordinary
// disconnect-cleanup path can't both close the same channel.
func (p *Peer) CloseOutbox() {
	if p.outClosed {
		return
	}
	p.outClosed = true
	close(p.outbox)
}

// Close tears down the underlying connection.
func (p *Peer) Close() error {
	return p.conn.Close()
}
