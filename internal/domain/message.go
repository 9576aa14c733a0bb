package domain

import "time"

// StatusReceived is the delivery status the provider reports for inbound
// messages that have been fully received.
const StatusReceived = "received"

// InboundMessage is a provider-delivered message from the trusted sender.
// Immutable once fetched.
type InboundMessage struct {
	SID      string
	From     string
	Body     string
	NumMedia int
	Status   string
	SentAt   time.Time
}

// AttachmentReference points at a single media object attached to an inbound
// message. It exists only while a selection is in progress.
type AttachmentReference struct {
	MediaSID string
	URL      string
}
