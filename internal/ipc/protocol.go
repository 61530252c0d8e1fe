package ipc

// Commands understood by a running instance.
const (
	CommandStatus = "status"
	CommandSay    = "say"
	CommandMode   = "mode"
	CommandStop   = "stop"
)

// Request is one JSON line sent by a client. Text carries the command text
// for say and the target mode for mode.
type Request struct {
	Command string `json:"command"`
	Text    string `json:"text,omitempty"`
}

type Response struct {
	OK      bool   `json:"ok"`
	Mode    string `json:"mode,omitempty"`
	State   string `json:"state,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
