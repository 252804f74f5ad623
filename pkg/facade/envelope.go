// Package facade implements the Tool Dispatch Facade (C6): the single
// action-dispatched entry point every manage_* tool call goes through, the
// uniform envelope, idempotency-on-repeat, and the advisory
// workflow_guidance text. It is the thinnest layer in the system — it
// translates tool calls into calls on contextengine/scheduler/agentcoord/
// repository and shapes their results and errors into the wire envelope.
package facade

import (
	"time"

	"github.com/S-Corkum/agentmesh/pkg/apperr"
)

// Envelope is the wire response shape of spec.md §4.6.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
	Meta    Meta        `json:"meta"`
}

// ErrorBody is the envelope's error shape.
type ErrorBody struct {
	Kind    apperr.Kind    `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Meta carries request correlation and the optional advisory guidance text.
type Meta struct {
	RequestID        string    `json:"request_id"`
	Timestamp        time.Time `json:"timestamp"`
	Operation        string    `json:"operation"`
	WorkflowGuidance string    `json:"workflow_guidance,omitempty"`
}

// Ok builds a success envelope.
func Ok(requestID, operation string, data interface{}, guidance string) Envelope {
	return Envelope{
		Success: true,
		Data:    data,
		Meta:    Meta{RequestID: requestID, Timestamp: time.Now(), Operation: operation, WorkflowGuidance: guidance},
	}
}

// Fail builds an error envelope from err, mapping unstructured errors to
// apperr.Internal so a raw error string never reaches a client (spec.md §7).
func Fail(requestID, operation string, err error) Envelope {
	message := err.Error()
	var details map[string]any
	if ae, ok := asAppErr(err); ok {
		message = ae.Message
		details = ae.Details
	}
	return Envelope{
		Success: false,
		Error:   &ErrorBody{Kind: apperr.KindOf(err), Message: message, Details: details},
		Meta:    Meta{RequestID: requestID, Timestamp: time.Now(), Operation: operation},
	}
}

func asAppErr(err error) (*apperr.Error, bool) {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if ae, ok := err.(*apperr.Error); ok {
			return ae, true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
