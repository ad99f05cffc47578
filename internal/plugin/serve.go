package plugin

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Handler performs one plugin action.
type Handler func(req *Request) error

// Serve is the plugin side of the protocol: it reads one Request from r,
// runs the handler registered for its action and writes the Response to
// w. Only a failure to write the response is returned.
func Serve(r io.Reader, w io.Writer, handlers map[string]Handler) error {
	return json.NewEncoder(w).Encode(handle(r, handlers))
}

func handle(r io.Reader, handlers map[string]Handler) Response {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return Response{Error: fmt.Sprintf("decode request: %v", err)}
	}

	h, ok := handlers[req.Action]
	if !ok {
		return Response{Error: fmt.Sprintf("unknown action: %s", req.Action)}
	}
	if err := h(&req); err != nil {
		return Response{Error: fmt.Sprintf("action %s failed: %v", req.Action, err)}
	}
	return Response{Success: true}
}

// Main runs Serve over stdin and stdout and exits non-zero if the
// response could not be written.
func Main(handlers map[string]Handler) {
	if err := Serve(os.Stdin, os.Stdout, handlers); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
