package model

// EventRecordsUpdated is the push-channel event carrying a full snapshot.
const EventRecordsUpdated = "workItemsUpdated"

// PushMessage is the envelope written on the push channel.
type PushMessage struct {
	Event   string   `json:"event"`
	Version uint64   `json:"version"`
	Data    []Record `json:"data"`
}

// NewPushMessage wraps snap in a workItemsUpdated envelope.
func NewPushMessage(snap Snapshot) PushMessage {
	data := snap.Records
	if data == nil {
		data = []Record{}
	}
	return PushMessage{Event: EventRecordsUpdated, Version: snap.Version, Data: data}
}

// Snapshot unwraps the envelope.
func (m PushMessage) Snapshot() Snapshot {
	return Snapshot{Version: m.Version, Records: m.Data}
}
