// Package ptt implements the per-room message handler: the speaker
// admission state machine, the instructor control operations, and the
// WebRTC signaling/audio relay. One Handler exists per room and owns every
// piece of that room's mutable state; all of it is touched exclusively
// from the goroutine running Handler.Run, so nothing here takes a lock.
package ptt

import (
	"math/rand/v2"
	"time"

	"github.com/n0remac/classroom-ptt/internal/logging"
	"github.com/n0remac/classroom-ptt/internal/queue"
	"github.com/n0remac/classroom-ptt/internal/storage"
)

// SortMode selects how the queue is ordered when a client other than the
// current speaker becomes eligible to move.
type SortMode int

const (
	SortFIFO SortMode = iota
	SortPriority
)

func (m SortMode) String() string {
	if m == SortPriority {
		return "priority"
	}
	return "fifo"
}

type eventKind int

const (
	eventFrame eventKind = iota
	eventClose
	eventShutdown
)

type actorEvent struct {
	kind        eventKind
	peer        *Peer
	isBinary    bool
	data        []byte
	shutdownAck chan struct{}
}

// Handler is the per-room actor. Construct with NewHandler and run it with
// Run in a dedicated goroutine; feed it frames and close notifications
// through Dispatch and NotifyClose from the transport's per-connection
// goroutines.
type Handler struct {
	code string
	log  *logging.Logger
	sink storage.Sink

	queue        *queue.SendQueue[*Peer]
	listener     *Peer
	clientsByKey map[string]*Peer
	instructors  map[*Peer]bool

	currentCtsKey string
	lastSenderKey string
	preferredMime string
	sortMode      SortMode

	events chan actorEvent
	done   chan struct{}
}

// Code returns the room code this handler was constructed with.
func (h *Handler) Code() string { return h.code }

// NewHandler constructs a room's handler. sink receives completed speaking
// turns; log should already be tagged with the room code.
func NewHandler(code string, sink storage.Sink, log *logging.Logger) *Handler {
	return &Handler{
		code:         code,
		log:          log,
		sink:         sink,
		queue:        queue.New[*Peer](),
		clientsByKey: make(map[string]*Peer),
		instructors:  make(map[*Peer]bool),
		events:       make(chan actorEvent, outboxSize),
		done:         make(chan struct{}),
	}
}

// Dispatch hands one inbound frame to the room actor. Best-effort: a full
// event queue drops the frame rather than blocking the caller's read pump.
func (h *Handler) Dispatch(p *Peer, isBinary bool, data []byte) {
	select {
	case h.events <- actorEvent{kind: eventFrame, peer: p, isBinary: isBinary, data: data}:
	case <-h.done:
	default:
		h.log.Warnf("event queue full, dropping frame from %s", p.ID)
	}
}

// NotifyClose tells the room actor that p's connection has gone away.
// Unlike Dispatch this does not drop on a full queue, since skipping
// cleanup would leak the client's queue/map entries; it still respects a
// stopped actor.
func (h *Handler) NotifyClose(p *Peer) {
	select {
	case h.events <- actorEvent{kind: eventClose, peer: p}:
	case <-h.done:
	}
}

// Shutdown stops the room actor and closes every connection it still
// tracks. It blocks until the actor has processed the shutdown.
func (h *Handler) Shutdown() {
	ack := make(chan struct{})
	select {
	case h.events <- actorEvent{kind: eventShutdown, shutdownAck: ack}:
		<-ack
	case <-h.done:
	}
}

// Run processes events until Shutdown is called. Call it in its own
// goroutine per room.
func (h *Handler) Run() {
	for ev := range h.events {
		if h.process(ev) {
			return
		}
	}
}

func (h *Handler) process(ev actorEvent) (stop bool) {
	switch ev.kind {
	case eventFrame:
		h.handleFrame(ev.peer, ev.isBinary, ev.data)
	case eventClose:
		h.cleanup(ev.peer)
	case eventShutdown:
		h.shutdownLocked()
		close(ev.shutdownAck)
		close(h.done)
		return true
	}
	return false
}

func (h *Handler) shutdownLocked() {
	seen := make(map[*Peer]bool)
	mark := func(p *Peer) {
		if p == nil || seen[p] {
			return
		}
		seen[p] = true
		p.Close()
		p.CloseOutbox()
	}
	mark(h.listener)
	for _, p := range h.clientsByKey {
		mark(p)
	}
	for p := range h.instructors {
		mark(p)
	}
}

// handleFrame classifies and dispatches one inbound frame.
func (h *Handler) handleFrame(p *Peer, isBinary bool, data []byte) {
	f := classify(isBinary, data)
	switch f.kind {
	case FrameRTS:
		h.handleRTS(p, f.username)
	case FrameStop:
		h.handleStop(p)
	case FrameListen:
		h.handleListen(p)
	case FrameSkip:
		h.handleSkip(p)
	case FrameQueueStatus:
		h.handleQueueStatus(p)
	case FrameFormat:
		h.preferredMime = f.mime
	case FrameSignal:
		p.Protocol = ProtocolJSON
		h.handleSignal(p, f.signal)
	case FrameAudio:
		h.handleAudio(p, f.payload)
	}
}

// --- key/identity helpers -------------------------------------------------

func randomLower(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rand.IntN(len(letters))]
	}
	return string(b)
}

// displayName strips the 5-letter disambiguation suffix (plus its
// separating hyphen) so it's safe to show to a user.
func displayName(key string) string {
	if len(key) > 6 {
		return key[:len(key)-6]
	}
	return key
}

func (h *Handler) priorityOf(p *Peer) int   { return p.Priority }
func (h *Handler) joinTimeOf(p *Peer) int64 { return p.JoinTime.UnixNano() }
func (h *Handler) manualOrderOf(p *Peer) (int, bool) {
	if p.ManualOrder == nil {
		return 0, false
	}
	return *p.ManualOrder, true
}

func (h *Handler) currentSpeaker() *Peer {
	if h.currentCtsKey == "" {
		return nil
	}
	return h.clientsByKey[h.currentCtsKey]
}

// --- admission: RTS/ready --------------------------------------------------

func (h *Handler) handleRTS(p *Peer, username string) {
	h.registerClient(p, username, 0)
}

func (h *Handler) registerClient(p *Peer, username string, priority int) {
	if p.Key == "" {
		p.Key = username + "-" + randomLower(5)
		p.JoinTime = time.Now()
		p.Buffer = NewCaptureBuffer()
		h.clientsByKey[p.Key] = p
	}
	p.Priority = priority
	h.queue.Register(p)
	if h.sortMode == SortPriority {
		current := h.currentSpeaker()
		h.queue.SortByPriority(h.priorityOf, h.joinTimeOf, h.manualOrderOf, &current)
	}
	h.tryGrant()
	h.broadcastQueueUpdate()
}

// tryGrant grants CTS to the queue head if nobody currently holds it and a
// listener is present.
func (h *Handler) tryGrant() {
	if h.listener == nil || h.currentCtsKey != "" {
		return
	}
	head, ok := h.queue.Peek()
	if !ok {
		return
	}
	h.grantCTS(head)
}

func (h *Handler) grantCTS(p *Peer) {
	if !h.queue.HasPriority(p) {
		h.queue.Prepend(p)
	}
	if p.Buffer == nil {
		p.Buffer = NewCaptureBuffer()
	}
	p.Buffer.Begin(time.Now())
	h.currentCtsKey = p.Key
	h.lastSenderKey = p.Key

	h.sendClear(h.listener)
	h.sendFrom(h.listener, displayName(p.Key))

	if h.preferredMime != "" {
		h.sendText(p, "REC_MIME "+h.preferredMime)
	}
	h.sendCTS(p)

	h.broadcastQueueUpdate()
}

// --- audio forwarding -------------------------------------------------------

func (h *Handler) handleAudio(p *Peer, payload []byte) {
	if p.Key == "" {
		h.sendText(p, "NEED_RTS")
		return
	}

	allowed := p.Key == h.currentCtsKey || h.queue.HasPriority(p) || p.Key == h.lastSenderKey
	if !allowed {
		h.sendText(p, "NEED_RTS")
		return
	}

	if p.Key != h.lastSenderKey {
		h.sendFrom(h.listener, displayName(p.Key))
		h.lastSenderKey = p.Key
	}

	if p.Buffer != nil {
		p.Buffer.Append(payload)
	}

	if h.listener != nil {
		h.listener.SendBinary(payload)
	}
}

// --- STOP / SKIP / LISTEN ---------------------------------------------------

func (h *Handler) handleStop(p *Peer) {
	if p.Key == "" {
		return
	}
	h.endTurn(p)
	h.broadcastQueueUpdate()
}

// endTurn tears down an active or recent speaker: flushes its capture
// buffer, clears the currently-granted state if it belonged to this
// speaker, and grants the next head if possible. Apart from the
// queue-update grantCTS sends when it grants the next head, it does not
// broadcast; callers do that once after any surrounding bookkeeping.
func (h *Handler) endTurn(p *Peer) {
	h.flush(p)
	if p.Key == h.currentCtsKey || p.Key == h.lastSenderKey {
		h.currentCtsKey = ""
		h.lastSenderKey = ""
		h.sendClear(h.listener)
	}
	h.queue.Remove(p)
	h.tryGrant()
}

func (h *Handler) flush(p *Peer) {
	if p.Buffer == nil || h.sink == nil {
		return
	}
	filename, data, ok := p.Buffer.Flush(p.Key)
	if ok {
		h.sink.Store(filename, data)
	}
}

func (h *Handler) handleSkip(p *Peer) {
	if p != h.listener {
		return
	}
	h.sendClear(h.listener)

	speaker := h.currentSpeaker()
	if speaker == nil && h.lastSenderKey != "" {
		speaker = h.clientsByKey[h.lastSenderKey]
	}

	if speaker != nil {
		h.flush(speaker)
		h.sendStop(speaker)
		h.queue.Remove(speaker)
	} else if head, ok := h.queue.Peek(); ok {
		h.sendStop(head)
		h.queue.Remove(head)
	}

	h.currentCtsKey = ""
	h.lastSenderKey = ""
	h.tryGrant()
	h.broadcastQueueUpdate()
}

func (h *Handler) handleListen(p *Peer) {
	if prior := h.listener; prior != nil && prior != p {
		h.evictListener(prior)
	}

	h.listener = p
	h.instructors[p] = true

	h.sendQueueStatus(p)

	head, hasHead := h.queue.Peek()
	if hasHead && h.currentCtsKey == "" {
		h.grantCTS(head)
	} else if h.lastSenderKey != "" {
		h.sendFrom(p, displayName(h.lastSenderKey))
	}

	h.broadcastQueueUpdate()
}

// evictListener replaces a listener being displaced by a new LISTEN
// connection. It restores any speaker it had granted CTS to, since that
// teardown must happen synchronously here: by the time the evicted
// listener's own read pump notices the forced close, h.listener already
// points at its replacement.
func (h *Handler) evictListener(prior *Peer) {
	delete(h.instructors, prior)
	if speaker := h.currentSpeaker(); speaker != nil {
		h.queue.Prepend(speaker)
		h.sendStop(speaker)
	}
	h.currentCtsKey = ""
	h.lastSenderKey = ""
	prior.Close()
	prior.CloseOutbox()
}

// --- JSON signaling ----------------------------------------------------------

func (h *Handler) handleSignal(p *Peer, msg signalMessage) {
	switch msg.Type {
	case "ready":
		priority := 0
		if msg.Priority != nil {
			priority = *msg.Priority
		}
		username := msg.Username
		if username == "" {
			username = msg.Name
		}
		h.registerClient(p, username, priority)
	case "offer":
		if h.listener != nil {
			h.sendJSON(h.listener, signalMessage{
				Type:  "offer",
				Offer: msg.Offer,
				From:  &FromInfo{Username: displayName(p.Key)},
			})
		}
	case "answer":
		if speaker := h.currentSpeaker(); speaker != nil {
			h.sendJSON(speaker, signalMessage{Type: "answer", Answer: msg.Answer})
		}
	case "ice-candidate":
		h.relayICE(p, msg)
	case "stop":
		h.handleStop(p)
	case "kick-user":
		h.handleKickUser(p, msg.Username)
	case "reorder-user":
		h.handleReorderUser(p, msg.Username, msg.Direction)
	case "move-user-to-position":
		h.handleMoveUserToPosition(p, msg.Username, msg.Position)
	case "set-queue-sort-mode":
		h.handleSetQueueSortMode(p, msg.Mode)
	case "update-priority":
		if msg.Priority != nil {
			p.Priority = *msg.Priority
			if h.sortMode == SortPriority {
				current := h.currentSpeaker()
				h.queue.SortByPriority(h.priorityOf, h.joinTimeOf, h.manualOrderOf, &current)
			}
			h.broadcastQueueUpdate()
		}
	}
}

func (h *Handler) relayICE(p *Peer, msg signalMessage) {
	var to *Peer
	if p == h.listener {
		to = h.currentSpeaker()
	} else {
		to = h.listener
	}
	if to == nil {
		return
	}
	h.sendJSON(to, signalMessage{Type: "ice-candidate", Candidate: msg.Candidate})
}

// --- instructor operations ---------------------------------------------------

func (h *Handler) isInstructor(p *Peer) bool {
	return h.instructors[p]
}

func (h *Handler) findByUsername(username string) *Peer {
	for _, p := range h.clientsByKey {
		if displayName(p.Key) == username {
			return p
		}
	}
	return nil
}

func (h *Handler) handleKickUser(p *Peer, username string) {
	if !h.isInstructor(p) {
		return
	}
	target := h.findByUsername(username)
	if target == nil {
		h.sendJSON(p, signalMessage{Type: "kick-error", Message: "no such user"})
		return
	}

	if target.Key == h.currentCtsKey || target.Key == h.lastSenderKey {
		h.endTurn(target)
	} else {
		h.queue.Remove(target)
	}

	h.sendJSON(target, signalMessage{Type: "kicked"})
	h.sendStop(target)
	h.tryGrant()
	h.broadcastQueueUpdate()
}

func (h *Handler) handleReorderUser(p *Peer, username, direction string) {
	if !h.isInstructor(p) {
		return
	}
	target := h.findByUsername(username)
	if target == nil || target.Key == h.currentCtsKey {
		h.sendJSON(p, signalMessage{Type: "reorder-error", Message: "cannot reorder current speaker"})
		return
	}
	dir := queue.Up
	if direction == "down" {
		dir = queue.Down
	}
	if !h.queue.Swap(target, dir, h.currentCtsKey != "") {
		h.sendJSON(p, signalMessage{Type: "reorder-error", Message: "swap refused"})
		return
	}
	h.assignManualOrder()
	h.broadcastQueueUpdate()
}

func (h *Handler) handleMoveUserToPosition(p *Peer, username string, position *int) {
	if !h.isInstructor(p) {
		return
	}
	target := h.findByUsername(username)
	if target == nil || target.Key == h.currentCtsKey {
		h.sendJSON(p, signalMessage{Type: "move-error", Message: "cannot move current speaker"})
		return
	}
	if position == nil || !h.queue.MoveToPosition(target, *position, h.currentCtsKey != "") {
		h.sendJSON(p, signalMessage{Type: "move-error", Message: "move refused"})
		return
	}
	h.assignManualOrder()
	h.broadcastQueueUpdate()
}

// assignManualOrder stamps every queue member's ManualOrder with its
// current index. Called after a reorder/move-to-position, which establish
// a hand-crafted order that should win outright the next time the queue
// is touched by one of those operations.
func (h *Handler) assignManualOrder() {
	for i, p := range h.queue.GetAll() {
		idx := i
		p.ManualOrder = &idx
	}
}

// assignMissingManualOrder stamps ManualOrder only for members that don't
// already have one. Used before a sort-mode toggle so members with an
// existing hand-crafted baseline keep it instead of being re-stamped to
// their current (possibly already-reordered) index, which would make a
// priority->fifo round trip fail to restore the pre-toggle order.
func (h *Handler) assignMissingManualOrder() {
	for i, p := range h.queue.GetAll() {
		if p.ManualOrder == nil {
			idx := i
			p.ManualOrder = &idx
		}
	}
}

func (h *Handler) handleSetQueueSortMode(p *Peer, mode string) {
	if !h.isInstructor(p) {
		return
	}
	h.assignMissingManualOrder()

	current := h.currentSpeaker()
	switch mode {
	case "priority":
		h.sortMode = SortPriority
		h.queue.SortByPriority(h.priorityOf, h.joinTimeOf, h.manualOrderOf, &current)
	default:
		h.sortMode = SortFIFO
		h.queue.SortByFifo(h.joinTimeOf, h.manualOrderOf, &current)
	}
	h.broadcastQueueUpdate()
}

func (h *Handler) handleQueueStatus(p *Peer) {
	h.instructors[p] = true
	h.sendQueueStatus(p)
}

// --- queue snapshots / broadcast ---------------------------------------------

func (h *Handler) queueSnapshot() []QueueEntry {
	members := h.queue.GetAll()
	out := make([]QueueEntry, 0, len(members))
	for _, p := range members {
		out = append(out, QueueEntry{Username: displayName(p.Key), Priority: p.Priority})
	}
	return out
}

func (h *Handler) statusMessage(msgType string) signalMessage {
	snapshot := h.queueSnapshot()
	queueSize := len(snapshot)

	msg := signalMessage{
		Type:      msgType,
		Queue:     snapshot,
		QueueSize: &queueSize,
		SortMode:  h.sortMode.String(),
	}

	if speaker := h.currentSpeaker(); speaker != nil {
		name := displayName(speaker.Key)
		priority := speaker.Priority
		msg.CurrentSpeaker = &name
		msg.CurrentSpeakerPriority = &priority
		*msg.QueueSize = queueSize - 1
	}

	return msg
}

func (h *Handler) sendQueueStatus(p *Peer) {
	h.sendJSON(p, h.statusMessage("queue-status"))
}

func (h *Handler) broadcastQueueUpdate() {
	msg := h.statusMessage("queue-update")
	b := msg.bytes()
	if b == nil {
		return
	}
	for p := range h.instructors {
		if !p.SendText(b) {
			h.log.Warnf("dropping queue-update to %s (outbox full)", p.ID)
		}
	}
}

// --- cleanup on close ---------------------------------------------------------

func (h *Handler) cleanup(p *Peer) {
	wasListener := p == h.listener
	p.CloseOutbox()

	if p.Key != "" {
		h.endTurn(p)
		delete(h.clientsByKey, p.Key)
	}

	if wasListener {
		h.listener = nil
	}
	delete(h.instructors, p)

	if wasListener {
		if speaker := h.currentSpeaker(); speaker != nil {
			h.queue.Prepend(speaker)
			h.sendStop(speaker)
		}
		h.currentCtsKey = ""
		h.lastSenderKey = ""
	}

	h.broadcastQueueUpdate()
}

// --- wire-format send helpers -------------------------------------------------
//
// CLEAR/FROM/CTS/STOP have both a legacy plain-text form and a JSON form;
// which one goes out depends on the recipient's classified Protocol.
// Queue snapshots, kick acks and the *-error acks have no legacy
// equivalent in the wire table and are always sent as JSON.

func (h *Handler) sendText(p *Peer, text string) {
	if p == nil {
		return
	}
	if !p.SendText([]byte(text)) {
		h.log.Warnf("dropping frame to %s (outbox full)", p.ID)
	}
}

func (h *Handler) sendJSON(p *Peer, msg signalMessage) {
	if p == nil {
		return
	}
	b := msg.bytes()
	if b == nil {
		return
	}
	if !p.SendText(b) {
		h.log.Warnf("dropping frame to %s (outbox full)", p.ID)
	}
}

func (h *Handler) sendClear(p *Peer) {
	if p == nil {
		return
	}
	if p.Protocol == ProtocolJSON {
		h.sendJSON(p, signalMessage{Type: "clear"})
	} else {
		h.sendText(p, "CLEAR")
	}
}

func (h *Handler) sendFrom(p *Peer, name string) {
	if p == nil {
		return
	}
	if p.Protocol == ProtocolJSON {
		h.sendJSON(p, signalMessage{Type: "from", Name: name})
	} else {
		h.sendText(p, "FROM"+name)
	}
}

func (h *Handler) sendCTS(p *Peer) {
	if p == nil {
		return
	}
	if p.Protocol == ProtocolJSON {
		h.sendJSON(p, signalMessage{Type: "cts"})
	} else {
		h.sendText(p, "CTS")
	}
}

func (h *Handler) sendStop(p *Peer) {
	if p == nil {
		return
	}
	if p.Protocol == ProtocolJSON {
		h.sendJSON(p, signalMessage{Type: "stop"})
	} else {
		h.sendText(p, "STOP")
	}
}
