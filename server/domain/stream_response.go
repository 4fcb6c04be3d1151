package domain

type StreamResponse struct {
	Event StreamEvent
	Error error
	// Disconnect asks the transport to drop the participant.
	Disconnect bool
}

func NewStreamResponse(event StreamEvent) StreamResponse {
	return StreamResponse{Event: event}
}

func NewStreamError(err error) StreamResponse {
	return StreamResponse{Error: err}
}

func NewDisconnect(err error) StreamResponse {
	return StreamResponse{Error: err, Disconnect: true}
}

func (r StreamResponse) IsError() bool {
	return r.Error != nil
}

func (r StreamResponse) String() string {
	if r.IsError() {
		return "error: " + r.Error.Error()
	}
	return r.Event.String()
}
