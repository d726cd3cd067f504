// Package channel defines the control vocabulary shared by every node
package channel

import "time"

// ControlKind discriminates lifecycle messages.
type ControlKind string

const (
	// ControlTimerTick is a periodic scheduling tick.
	ControlTimerTick ControlKind = "timer_tick"
	// ControlConfig carries a configuration update for the node to validate.
	ControlConfig ControlKind = "config"
	// ControlShutdown asks the node to stop, draining payload for at most
	// Deadline. A zero deadline stops immediately, discarding buffered data.
	ControlShutdown ControlKind = "shutdown"
	// ControlAck acknowledges a previously submitted unit of work.
	ControlAck ControlKind = "ack"
	// ControlNack reports a previously submitted unit of work as failed.
	ControlNack ControlKind = "nack"
)

// ControlMsg is a lifecycle/administrative message delivered ahead of payload
// traffic. Only the fields relevant to Kind are populated.
type ControlMsg struct {
	Kind     ControlKind            `json:"kind"`
	Config   map[string]interface{} `json:"config,omitempty"`
	Deadline time.Duration          `json:"deadline,omitempty"`
	Reason   string                 `json:"reason,omitempty"`
	ID       uint64                 `json:"id,omitempty"`
}

// TimerTick returns a periodic tick message.
func TimerTick() ControlMsg {
	return ControlMsg{Kind: ControlTimerTick}
}

// ConfigUpdate returns a configuration update carrying an opaque structured
// payload; the receiving node is responsible for validating it.
func ConfigUpdate(config map[string]interface{}) ControlMsg {
	return ControlMsg{Kind: ControlConfig, Config: config}
}

// Shutdown returns a shutdown request with a drain deadline and a reason.
func Shutdown(deadline time.Duration, reason string) ControlMsg {
	return ControlMsg{Kind: ControlShutdown, Deadline: deadline, Reason: reason}
}

// Ack returns an acknowledgement for id.
func Ack(id uint64) ControlMsg {
	return ControlMsg{Kind: ControlAck, ID: id}
}

// Nack returns a negative acknowledgement for id.
func Nack(id uint64, reason string) ControlMsg {
	return ControlMsg{Kind: ControlNack, ID: id, Reason: reason}
}

// NewControl creates a bounded channel pair dedicated to control traffic.
func NewControl(capacity int) (*Sender[ControlMsg], *Receiver[ControlMsg]) {
	return NewBounded[ControlMsg](capacity)
}

// MessageKind discriminates the two message classes a node receives.
type MessageKind string

const (
	// MessageControl wraps a lifecycle message.
	MessageControl MessageKind = "control"
	// MessagePData wraps a payload value flowing between nodes.
	MessagePData MessageKind = "pdata"
)

// Message is what MessageChannel.Recv hands to a node: either a control
// message or a payload value, never both.
type Message[T any] struct {
	Kind    MessageKind
	Control ControlMsg
	PData   T
}

// NewControlMessage wraps a control message for delivery to a node.
func NewControlMessage[T any](msg ControlMsg) Message[T] {
	return Message[T]{Kind: MessageControl, Control: msg}
}

// NewPDataMessage wraps a payload value for delivery to a node.
func NewPDataMessage[T any](value T) Message[T] {
	return Message[T]{Kind: MessagePData, PData: value}
}

// IsShutdown reports whether the message is a shutdown control message.
func (m Message[T]) IsShutdown() bool {
	return m.Kind == MessageControl && m.Control.Kind == ControlShutdown
}
