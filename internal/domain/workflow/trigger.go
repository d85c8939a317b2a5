package workflow

// Trigger represents an event that moves a request forward
type Trigger string

const (
	// TriggerSend records that the request was handed to the counterparty
	TriggerSend Trigger = "SEND"
	// TriggerReceive records that the supporting document arrived
	TriggerReceive Trigger = "RECEIVE"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
