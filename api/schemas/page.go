package schemas

// -- Page Model Schemas --
//
// The reconstructed page model built from a DOMPayload. Every value here is
// rebuilt from scratch on each snapshot; nothing is cached across calls.

// Point is a single coordinate in either viewport or page space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Quad records the four corners, center, and size of an element box.
type Quad struct {
	TopLeft     Point   `json:"topLeft"`
	TopRight    Point   `json:"topRight"`
	BottomLeft  Point   `json:"bottomLeft"`
	BottomRight Point   `json:"bottomRight"`
	Center      Point   `json:"center"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
}

// DOMElement is a coordinate-annotated snapshot of one page element.
//
// The element set is flat: the synthetic root element owns every snapshot as
// a direct child, and children never nest further. The quads are only set
// when the extension reported the corresponding coordinate object.
type DOMElement struct {
	TagName       string            `json:"tagName"`
	XPath         string            `json:"xpath"`
	Attributes    map[string]string `json:"attributes"`
	Children      []*DOMElement     `json:"children,omitempty"`
	Parent        *DOMElement       `json:"-"`
	IsVisible     bool              `json:"isVisible"`
	IsInteractive bool              `json:"isInteractive"`
	IsTopElement  bool              `json:"isTopElement"`
	IsInViewport  bool              `json:"isInViewport"`
	ShadowRoot    bool              `json:"shadowRoot"`
	// HighlightIndex is the integer the extension uses to mark and later
	// address this element. Nil for the synthetic root.
	HighlightIndex *int  `json:"highlightIndex,omitempty"`
	ViewportQuad   *Quad `json:"viewportQuad,omitempty"`
	PageQuad       *Quad `json:"pageQuad,omitempty"`
}

// SelectorMap maps a highlight index to its element snapshot. Indices are
// assigned by the extension and are not guaranteed unique; on collision the
// last element reported wins.
type SelectorMap map[int]*DOMElement

// PageInfo carries the viewport and document metrics for a snapshot.
// Missing fields are filled with defaults during reconstruction.
type PageInfo struct {
	ViewportWidth  int `json:"viewportWidth"`
	ViewportHeight int `json:"viewportHeight"`
	PageWidth      int `json:"pageWidth"`
	PageHeight     int `json:"pageHeight"`
	ScrollX        int `json:"scrollX"`
	ScrollY        int `json:"scrollY"`
	PixelsAbove    int `json:"pixelsAbove"`
	PixelsBelow    int `json:"pixelsBelow"`
	PixelsLeft     int `json:"pixelsLeft"`
	PixelsRight    int `json:"pixelsRight"`
}

// TabInfo is a raw tab descriptor as reported by the extension.
type TabInfo struct {
	ID    int    `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// BrowserState is the full reconstructed page model returned to callers.
//
// On a degraded snapshot (DOM extraction failed) ElementTree is nil, the
// selector map is empty, and Title starts with the bridge error marker; the
// remaining fields still carry best-effort values so control loops can keep
// running.
type BrowserState struct {
	ElementTree *DOMElement `json:"elementTree,omitempty"`
	SelectorMap SelectorMap `json:"selectorMap"`
	URL         string      `json:"url"`
	Title       string      `json:"title"`
	Tabs        []TabInfo   `json:"tabs"`
	PageInfo    PageInfo    `json:"pageInfo"`
	PixelsAbove int         `json:"pixelsAbove"`
	PixelsBelow int         `json:"pixelsBelow"`
}
