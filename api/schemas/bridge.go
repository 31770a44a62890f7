package schemas

import "encoding/json"

// -- Bridge Wire Schemas --
//
// These types describe the JSON frames exchanged with the bridge extension
// over the loopback websocket. The extension is the only peer that ever
// speaks this protocol.

// Message types carried in the "type" field of an Envelope.
const (
	MessageTypeCommand  = "command"
	MessageTypeWelcome  = "welcome"
	MessageTypeReady    = "ready"
	MessageTypeResponse = "response"
	MessageTypeError    = "error"
)

// Command methods understood by the bridge extension.
const (
	MethodNavigate    = "navigate"
	MethodClick       = "click"
	MethodType        = "type"
	MethodEvaluate    = "evaluate"
	MethodScreenshot  = "screenshot"
	MethodGetDOM      = "get_dom"
	MethodCloseTab    = "close_tab"
	MethodNavigateTab = "navigate_tab"
)

// Envelope is a single frame on the bridge wire. Which fields are populated
// depends on Type: commands carry ID and Command, responses carry ID and
// Result, welcome carries Message, and error carries Error.
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Command *Command        `json:"command,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Command is the method/params pair nested inside a command envelope.
type Command struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

// -- Command Result Schemas --

// ActionResult is the shared result shape for navigate, click, and type.
// Click and type carry an additional sub-flag (Clicked / Typed) that must be
// checked alongside Success: the extension reports success=true with the
// sub-flag false when the command was delivered but the action itself failed.
type ActionResult struct {
	Success bool   `json:"success"`
	Clicked *bool  `json:"clicked,omitempty"`
	Typed   *bool  `json:"typed,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ClickedOK reports whether both the top-level and click sub-flag succeeded.
func (r *ActionResult) ClickedOK() bool {
	return r.Success && r.Clicked != nil && *r.Clicked
}

// TypedOK reports whether both the top-level and type sub-flag succeeded.
func (r *ActionResult) TypedOK() bool {
	return r.Success && r.Typed != nil && *r.Typed
}

// EvaluateResult is the result of an "evaluate" command. Result holds the raw
// JSON value the expression produced in the page.
type EvaluateResult struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ScreenshotResult is the result of a "screenshot" command. Data is a base64
// encoded PNG.
type ScreenshotResult struct {
	Success bool   `json:"success"`
	Data    string `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// DOMResult is the result of a "get_dom" command.
type DOMResult struct {
	Success bool        `json:"success"`
	Result  *DOMPayload `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// DOMPayload is the extension's flat snapshot of the current page: the
// interactive elements it highlighted, the viewport and document metrics,
// and the browser's tab list.
type DOMPayload struct {
	Elements []RawElement `json:"elements"`
	Viewport RawViewport  `json:"viewport"`
	Page     RawPage      `json:"page"`
	Pixels   RawPixels    `json:"pixels"`
	URL      string       `json:"url"`
	Title    string       `json:"title"`
	Tabs     []TabInfo    `json:"tabs"`
}

// RawElement is one element as reported by the extension. Index is the
// highlight index the extension assigned; nil when the extension omitted it.
// IsVisible is a pointer because the extension treats a missing flag as
// visible, not hidden.
type RawElement struct {
	Index               *int              `json:"index"`
	TagName             string            `json:"tagName"`
	XPath               string            `json:"xpath"`
	Attributes          map[string]string `json:"attributes"`
	IsVisible           *bool             `json:"isVisible"`
	IsInteractive       bool              `json:"isInteractive"`
	IsTopElement        bool              `json:"isTopElement"`
	IsInViewport        bool              `json:"isInViewport"`
	ShadowRoot          bool              `json:"shadowRoot"`
	ViewportCoordinates *RawQuad          `json:"viewportCoordinates,omitempty"`
	PageCoordinates     *RawQuad          `json:"pageCoordinates,omitempty"`
}

// RawPoint is a single x/y coordinate pair on the wire.
type RawPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RawQuad is an element box on the wire: four corners, center, and size.
type RawQuad struct {
	TopLeft     RawPoint `json:"top_left"`
	TopRight    RawPoint `json:"top_right"`
	BottomLeft  RawPoint `json:"bottom_left"`
	BottomRight RawPoint `json:"bottom_right"`
	Center      RawPoint `json:"center"`
	Width       float64  `json:"width"`
	Height      float64  `json:"height"`
}

// RawViewport holds the visible viewport metrics. Zero dimensions are treated
// as missing by the reconstructor and replaced with defaults.
type RawViewport struct {
	Width   int `json:"width"`
	Height  int `json:"height"`
	ScrollX int `json:"scrollX"`
	ScrollY int `json:"scrollY"`
}

// RawPage holds the full document dimensions. Zero values fall back to the
// viewport dimensions.
type RawPage struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RawPixels counts content pixels scrolled out of view on each side of the
// viewport.
type RawPixels struct {
	Above int `json:"above"`
	Below int `json:"below"`
	Left  int `json:"left"`
	Right int `json:"right"`
}
