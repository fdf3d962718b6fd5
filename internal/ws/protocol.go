package ws

// Message types for the terminal session protocol.
const (
	// Client → host
	TypeInit   = "init"   // bind this channel to a logical session
	TypeResize = "resize" // terminal geometry
	TypeInput  = "input"  // raw keystroke/paste bytes
	TypePing   = "ping"   // liveness probe

	// Host → client
	TypeOutput = "output" // raw bytes to render
	TypeReady  = "ready"  // remote process provisioned
	TypeExit   = "exit"   // remote process terminated
	TypeError  = "error"  // remote-side error, channel stays up
	TypePong   = "pong"   // liveness response

	// TypeRaw marks a payload that did not parse as a structured message.
	TypeRaw = "raw"
)

// Message is any decoded protocol payload.
type Message interface {
	MessageType() string
}

// Envelope wraps every message with a type field for routing.
type Envelope struct {
	Type string `json:"type"`
}

// Init binds a freshly opened channel to a session id.
type Init struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// Resize reports the terminal geometry.
type Resize struct {
	Type string `json:"type"`
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
}

// Input carries keystrokes from the display to the host.
type Input struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// Ping asks the host for a Pong.
type Ping struct {
	Type string `json:"type"`
}

// Output carries terminal bytes from the host.
type Output struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// Ready announces that the host has provisioned a process for the session.
type Ready struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
}

// Exit tells the client the remote process terminated.
type Exit struct {
	Type string `json:"type"`
	Code int    `json:"code"`
}

// ErrorMsg is a remote-side error report. It does not end the channel.
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Pong answers a Ping.
type Pong struct {
	Type string `json:"type"`
}

// RawBytes is a payload that was not a structured message. It is passed
// through to the display verbatim.
type RawBytes []byte

// Unknown is a well-formed message whose type this client does not handle.
type Unknown struct {
	Type    string
	Payload []byte
}

func (Init) MessageType() string     { return TypeInit }
func (Resize) MessageType() string   { return TypeResize }
func (Input) MessageType() string    { return TypeInput }
func (Ping) MessageType() string     { return TypePing }
func (Output) MessageType() string   { return TypeOutput }
func (Ready) MessageType() string    { return TypeReady }
func (Exit) MessageType() string     { return TypeExit }
func (ErrorMsg) MessageType() string { return TypeError }
func (Pong) MessageType() string     { return TypePong }
func (RawBytes) MessageType() string { return TypeRaw }
func (m Unknown) MessageType() string { return m.Type }
