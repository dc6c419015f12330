package uds

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
)

var reqCounter atomic.Uint64

// MsgType identifies the kind of message.
type MsgType string

const (
	MsgTypeReq MsgType = "req"
	MsgTypeRes MsgType = "res"
	MsgTypeEvt MsgType = "evt"
)

// Message is the NDJSON envelope for all communication.
type Message struct {
	Type   MsgType         `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// UnmarshalData decodes the message payload into v.
func (m Message) UnmarshalData(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%s: empty payload", m.Method)
	}
	return json.Unmarshal(m.Data, v)
}

// Text returns a string payload, or "" if the payload is absent or not a string.
func (m Message) Text() string {
	var s string
	if len(m.Data) == 0 || json.Unmarshal(m.Data, &s) != nil {
		return ""
	}
	return s
}

func marshalData(data any) (json.RawMessage, error) {
	if data == nil {
		return nil, nil
	}
	return json.Marshal(data)
}

// NewRequest creates a new request message with a unique ID.
func NewRequest(method string, data any) (Message, error) {
	raw, err := marshalData(data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:   MsgTypeReq,
		ID:     fmt.Sprintf("req-%d", reqCounter.Add(1)),
		Method: method,
		Data:   raw,
	}, nil
}

// NewResponse creates a response to a request.
func NewResponse(reqID, method string, data any) (Message, error) {
	raw, err := marshalData(data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:   MsgTypeRes,
		ID:     reqID,
		Method: method,
		Data:   raw,
	}, nil
}

// NewErrorResponse creates an error response.
func NewErrorResponse(reqID, method, errMsg string) Message {
	return Message{
		Type:   MsgTypeRes,
		ID:     reqID,
		Method: method,
		Error:  errMsg,
	}
}

// NewEvent creates a server-pushed event.
func NewEvent(method string, data any) (Message, error) {
	raw, err := marshalData(data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:   MsgTypeEvt,
		ID:     fmt.Sprintf("evt-%d", reqCounter.Add(1)),
		Method: method,
		Data:   raw,
	}, nil
}

// Commands. Log commands are LOGTXT<CATEGORY>, see core.Category.Command.
const (
	MethodPing   = "Ping"
	MethodStatus = "Status"

	CmdGetTxtIdx     = "GETTXTIDX"
	CmdExit          = "EXIT"
	CmdOpenTxtFile   = "OPENTXTFILE"
	CmdCloseTxtFile  = "CLOSETXTFILE"
	CmdSetPushPeriod = "SETPUSHPERIOD"

	EventStatusPush = "status.push"
	EventLogLine    = "log.line"
)

// Error strings returned in the response error field.
const (
	ErrTextNotReady    = "not ready"
	ErrTextQueueFull   = "queue full"
	ErrTextTooLong     = "payload too long"
	ErrTextShutdown    = "shutting down"
	ErrTextUnknownCmd  = "unknown method"
	ErrTextBadArgument = "bad argument"
)

// PingResponse is the response to a Ping request.
type PingResponse struct {
	Pong bool `json:"pong"`
}
