package protocol

import "fmt"

// Response is the body of a correlated reply, along with the purpose it arrived under.
// A zero Response is what fire-and-forget commands resolve to.
type Response struct {
	Purpose Purpose
	Body    Body
}

// NewResponse captures a reply envelope as a Response.
func NewResponse(env *Envelope) *Response {
	return &Response{Purpose: env.Header.Purpose, Body: env.Body}
}

// StatusCode returns body.statusCode, or 0 if the peer omitted it.
func (r *Response) StatusCode() int {
	code, _ := r.Body.Int("statusCode")
	return code
}

// StatusMessage returns body.statusMessage.
func (r *Response) StatusMessage() string {
	return r.Body.String("statusMessage")
}

// Failed reports whether the peer flagged the reply as an error.
func (r *Response) Failed() bool {
	return r.Purpose == PurposeError || r.StatusCode() != 0
}

// Err returns a *RemoteError for failed replies and nil otherwise.
func (r *Response) Err() error {
	if !r.Failed() {
		return nil
	}
	return &RemoteError{Response: r}
}

// RemoteError surfaces a failed reply verbatim.
type RemoteError struct {
	Response *Response
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error (status %d): %s", e.Response.StatusCode(), e.Response.StatusMessage())
}
