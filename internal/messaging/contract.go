package messaging

import (
	"encoding/json"
	"fmt"
)

type MessageType string

const (
	TypeSaveEmail        MessageType = "SAVE_EMAIL"
	TypeCheckEmailExists MessageType = "CHECK_EMAIL_EXISTS"
	TypeOpenPopup        MessageType = "OPEN_POPUP"
)

// Request is one message from a page context. ID is only used to correlate
// websocket replies.
type Request struct {
	ID     string          `json:"id,omitempty"`
	Type   MessageType     `json:"type"`
	Domain string          `json:"domain,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type SaveEmailData struct {
	Domain   string `json:"domain"`
	Email    string `json:"email"`
	Provider string `json:"provider"`
	Notes    string `json:"notes,omitempty"`
}

// Response carries either success or exists depending on the request type.
type Response struct {
	ID      string `json:"id,omitempty"`
	Success *bool  `json:"success,omitempty"`
	Exists  *bool  `json:"exists,omitempty"`
	Error   string `json:"error,omitempty"`
}

func OK() Response {
	ok := true
	return Response{Success: &ok}
}

func Fail(msg string) Response {
	ok := false
	return Response{Success: &ok, Error: msg}
}

func ExistsResponse(exists bool) Response {
	return Response{Exists: &exists}
}

// Succeeded reports success:true.
func (r Response) Succeeded() bool {
	return r.Success != nil && *r.Success
}

// RecordExists reports exists:true. A missing field counts as false.
func (r Response) RecordExists() bool {
	return r.Exists != nil && *r.Exists
}

func NewSaveEmailRequest(data SaveEmailData) (Request, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Request{}, err
	}
	return Request{Type: TypeSaveEmail, Data: raw}, nil
}

func NewCheckEmailExistsRequest(domain string) Request {
	return Request{Type: TypeCheckEmailExists, Domain: domain}
}

func NewOpenPopupRequest() Request {
	return Request{Type: TypeOpenPopup}
}

func unknownType(t MessageType) string {
	return fmt.Sprintf("unknown message type: %s", t)
}
