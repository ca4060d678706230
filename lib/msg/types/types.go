// Package types defines the messages exchanged with the wallet watcher over the broker channels.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Actions of a track command.
const (
	ADD    = "add"
	REMOVE = "remove"
)

// ErrDecode is returned when a channel payload cannot be decoded.
var ErrDecode = errors.New("malformed payload")

// TransactionEvent is published by the watcher when a transaction involves a tracked address. ChatIDs lists the
// chats subscribed to the address, in delivery order.
type TransactionEvent struct {
	Address string  `json:"address" bson:"address"`
	ChatIDs []int64 `json:"chat_ids" bson:"chat_ids"`
}

// TrackCommand asks the watcher to track (or stop tracking) an address on behalf of a chat.
type TrackCommand struct {
	Action  string `json:"action"`
	Address string `json:"address"`
	ChatID  int64  `json:"chat_id"`
}

// DecodeEvent parses a transaction event payload. Both address and chat_ids must be present; other fields sent by
// the watcher are ignored.
func DecodeEvent(b []byte) (TransactionEvent, error) {
	var raw struct {
		Address *string  `json:"address"`
		ChatIDs *[]int64 `json:"chat_ids"`
	}

	if err := json.Unmarshal(b, &raw); err != nil {
		return TransactionEvent{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if raw.Address == nil || raw.ChatIDs == nil {
		return TransactionEvent{}, fmt.Errorf("%w: address and chat_ids are required", ErrDecode)
	}

	return TransactionEvent{Address: *raw.Address, ChatIDs: *raw.ChatIDs}, nil
}

// Encode serializes the command for the command channel.
func (c TrackCommand) Encode() ([]byte, error) {
	return json.Marshal(c)
}
