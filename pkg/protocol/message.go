// Package protocol defines the values exchanged between wsterm and a peer.
package protocol

import (
	"encoding/hex"
	"fmt"
	"strconv"
)

// MessageKind represents the kind of a message
type MessageKind int

const (
	KindText MessageKind = iota
	KindBinary
)

// String returns the string representation of MessageKind
func (k MessageKind) String() string {
	switch k {
	case KindText:
		return "TEXT"
	case KindBinary:
		return "BINARY"
	default:
		return "UNKNOWN"
	}
}

// Message represents one complete data frame received from or sent to the peer
type Message struct {
	Kind MessageKind
	Data []byte
}

// Text creates a text message
func Text(s string) Message {
	return Message{Kind: KindText, Data: []byte(s)}
}

// Binary creates a binary message
func Binary(b []byte) Message {
	return Message{Kind: KindBinary, Data: b}
}

// String renders the payload for display.
// Text is returned verbatim; binary is hex encoded behind a "(binary)" marker.
func (m Message) String() string {
	if m.Kind == KindBinary {
		return "(binary) " + hex.EncodeToString(m.Data)
	}
	return string(m.Data)
}

// Incoming renders the message as an incoming line, e.g. "< hello".
func (m Message) Incoming() string {
	return "< " + m.String()
}

// StatusCode is a close status code as defined by RFC 6455 section 7.4.
type StatusCode int

const (
	StatusNormalClosure           StatusCode = 1000
	StatusGoingAway               StatusCode = 1001
	StatusProtocolError           StatusCode = 1002
	StatusUnsupportedData         StatusCode = 1003
	StatusNoStatusRcvd            StatusCode = 1005
	StatusAbnormalClosure         StatusCode = 1006
	StatusInvalidFramePayloadData StatusCode = 1007
	StatusPolicyViolation         StatusCode = 1008
	StatusMessageTooBig           StatusCode = 1009
	StatusMandatoryExtension      StatusCode = 1010
	StatusInternalError           StatusCode = 1011
	StatusServiceRestart          StatusCode = 1012
	StatusTryAgainLater           StatusCode = 1013
	StatusBadGateway              StatusCode = 1014
	StatusTLSHandshake            StatusCode = 1015
)

var statusExplanations = map[StatusCode]string{
	StatusNormalClosure:           "OK",
	StatusGoingAway:               "going away",
	StatusProtocolError:           "protocol error",
	StatusUnsupportedData:         "unsupported data",
	StatusNoStatusRcvd:            "no status received [internal]",
	StatusAbnormalClosure:         "connection closed abnormally [internal]",
	StatusInvalidFramePayloadData: "invalid frame payload data",
	StatusPolicyViolation:         "policy violation",
	StatusMessageTooBig:           "message too big",
	StatusMandatoryExtension:      "mandatory extension",
	StatusInternalError:           "internal error",
	StatusServiceRestart:          "service restart",
	StatusTryAgainLater:           "try again later",
	StatusBadGateway:              "bad gateway",
	StatusTLSHandshake:            "TLS handshake failure [internal]",
}

// Explanation returns a short human readable description of the code.
func (c StatusCode) Explanation() string {
	switch {
	case c >= 3000 && c < 4000:
		return "registered"
	case c >= 4000 && c < 5000:
		return "private use"
	}
	if s, ok := statusExplanations[c]; ok {
		return s
	}
	return "unknown"
}

// CloseStatus describes why a connection terminated.
type CloseStatus struct {
	Code   StatusCode
	Reason string
}

// String returns "<code> <reason>", or just "<code>" when there is no reason.
func (s CloseStatus) String() string {
	code := strconv.Itoa(int(s.Code))
	if s.Reason == "" {
		return code
	}
	return code + " " + s.Reason
}

// Describe returns the code with its explanation, e.g. "1000 (OK) bye".
func (s CloseStatus) Describe() string {
	d := fmt.Sprintf("%d (%s)", s.Code, s.Code.Explanation())
	if s.Reason != "" {
		d += " " + s.Reason
	}
	return d
}

// ClosedLine renders the final status line shown when a session ends.
func (s CloseStatus) ClosedLine() string {
	return fmt.Sprintf("Connection closed: %s.", s)
}
