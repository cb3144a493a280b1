package ptt

import (
	"encoding/json"
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/tidwall/gjson"
)

// FrameKind is the result of classifying one inbound frame.
type FrameKind int

const (
	FrameRTS FrameKind = iota
	FrameStop
	FrameListen
	FrameSkip
	FrameQueueStatus
	FrameFormat
	FrameSignal
	FrameAudio
)

// FromInfo names the sender of a relayed offer, per the wire table's
// `from: {username}` augmentation.
type FromInfo struct {
	Username string `json:"username,omitempty"`
}

// QueueEntry is one member of a queue snapshot sent to instructors.
type QueueEntry struct {
	Username string `json:"username"`
	Priority int    `json:"priority"`
}

// signalMessage is the single JSON envelope used for every WebRTC
// signaling and control message, in both directions, mirroring the
// reference SFU's kitchen-sink sfuMessage.
type signalMessage struct {
	Type                   string                     `json:"type"`
	Name                   string                     `json:"name,omitempty"`
	Username               string                     `json:"username,omitempty"`
	From                   *FromInfo                  `json:"from,omitempty"`
	Priority               *int                       `json:"priority,omitempty"`
	Direction              string                     `json:"direction,omitempty"`
	Position               *int                       `json:"position,omitempty"`
	Mode                   string                     `json:"mode,omitempty"`
	Message                string                     `json:"message,omitempty"`
	Offer                  *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer                 *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate              *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Queue                  []QueueEntry               `json:"queue,omitempty"`
	CurrentSpeaker         *string                    `json:"currentSpeaker,omitempty"`
	CurrentSpeakerPriority *int                       `json:"currentSpeakerPriority,omitempty"`
	QueueSize              *int                       `json:"queueSize,omitempty"`
	SortMode               string                     `json:"sortMode,omitempty"`
}

func (m signalMessage) bytes() []byte {
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return b
}

// frame is the classified shape of one inbound WebSocket message.
type frame struct {
	kind     FrameKind
	username string
	mime     string
	signal   signalMessage
	payload  []byte
}

// classify dispatches a frame by the wire-format rules in §4.2: binary is
// always audio; text is matched by exact command, RTS/FORMAT prefix, or a
// JSON object carrying a "type" field; anything else is an opaque audio
// payload.
func classify(isBinary bool, data []byte) frame {
	if isBinary {
		return frame{kind: FrameAudio, payload: data}
	}

	text := string(data)
	switch text {
	case "STOP":
		return frame{kind: FrameStop}
	case "LISTEN":
		return frame{kind: FrameListen}
	case "SKIP":
		return frame{kind: FrameSkip}
	case "QUEUE_STATUS":
		return frame{kind: FrameQueueStatus}
	}

	if strings.HasPrefix(text, "RTS") {
		return frame{kind: FrameRTS, username: strings.TrimPrefix(text, "RTS")}
	}
	if strings.HasPrefix(text, "FORMAT ") {
		return frame{kind: FrameFormat, mime: strings.TrimSpace(strings.TrimPrefix(text, "FORMAT "))}
	}

	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") && gjson.GetBytes(data, "type").Exists() {
		var msg signalMessage
		if err := json.Unmarshal(data, &msg); err == nil && msg.Type != "" {
			return frame{kind: FrameSignal, signal: msg}
		}
	}

	return frame{kind: FrameAudio, payload: data}
}
