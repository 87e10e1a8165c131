package model

import (
	"encoding/json"
	"net/http"
)

// ActionRequest is one management call, from HTTP or from chat.
type ActionRequest struct {
	Action   string
	DeviceID string
	Params   Params
	// Source names the entry point ("http", "telegram") for the journal.
	Source string
}

// ActionResult is either a success carrying a payload or a failure carrying
// an error message and status code. Never both.
type ActionResult struct {
	Success bool
	Status  int
	Message string
	Error   string
	Payload map[string]any
}

// Succeed builds a successful result.
func Succeed(msg string, payload map[string]any) ActionResult {
	return ActionResult{
		Success: true,
		Status:  http.StatusOK,
		Message: msg,
		Payload: payload,
	}
}

// Fail builds a failed result with the given status code.
func Fail(status int, msg string) ActionResult {
	if status < http.StatusBadRequest {
		status = http.StatusInternalServerError
	}
	return ActionResult{
		Success: false,
		Status:  status,
		Error:   msg,
	}
}

// MarshalJSON flattens the payload next to the success flag, matching the
// {success: bool, ...} envelope billing clients expect.
func (r ActionResult) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Payload)+2)
	if r.Success {
		for k, v := range r.Payload {
			out[k] = v
		}
		if r.Message != "" {
			out["message"] = r.Message
		}
	} else {
		out["error"] = r.Error
	}
	out["success"] = r.Success
	return json.Marshal(out)
}
