// Package state rebuilds a structured page model from the bridge extension's
// flat element snapshot.
package state

import (
	"context"
	"sort"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/vexlio/drover/api/schemas"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrorTitlePrefix marks the title of a degraded state produced when DOM
// extraction failed. Callers key off this prefix to detect the degraded path.
const ErrorTitlePrefix = "Bridge Error: "

// Default metrics used when the extension reports nothing usable.
const (
	DefaultViewportWidth  = 1920
	DefaultViewportHeight = 1080
)

// dimensionProbeScript reads the live viewport and full-document dimensions
// straight from the page's layout engine. Used as a best-effort recovery when
// get_dom fails.
const dimensionProbeScript = `({
	viewport: {
		width: window.visualViewport?.width || window.innerWidth,
		height: window.visualViewport?.height || window.innerHeight
	},
	page: {
		width: Math.max(document.documentElement.scrollWidth, document.body?.scrollWidth || 0),
		height: Math.max(document.documentElement.scrollHeight, document.body?.scrollHeight || 0)
	}
})`

// Commander is the slice of the bridge command surface the reconstructor
// consumes. It contains no I/O of its own; everything is built from command
// results.
type Commander interface {
	Navigate(ctx context.Context, url string) (*schemas.ActionResult, error)
	GetDOM(ctx context.Context) (*schemas.DOMResult, error)
	Evaluate(ctx context.Context, expression string) (*schemas.EvaluateResult, error)
}

// Reconstructor converts get_dom snapshots into BrowserState page models.
// It tracks the current URL across snapshots and keeps the last tab list the
// extension reported; everything else is rebuilt fresh per call.
type Reconstructor struct {
	bridge     Commander
	logger     *zap.Logger
	landingURL string

	mu         sync.Mutex
	currentURL string
	lastTabs   []schemas.TabInfo
}

// NewReconstructor creates a reconstructor over the given command surface.
// landingURL is navigated to when no current URL is known yet.
func NewReconstructor(bridge Commander, landingURL string, logger *zap.Logger) *Reconstructor {
	return &Reconstructor{
		bridge:     bridge,
		logger:     logger.Named("state"),
		landingURL: landingURL,
	}
}

// CurrentURL returns the last URL observed or navigated to.
func (r *Reconstructor) CurrentURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentURL
}

// SetCurrentURL records url as the tracked current URL.
func (r *Reconstructor) SetCurrentURL(url string) {
	r.mu.Lock()
	r.currentURL = url
	r.mu.Unlock()
}

// Tabs returns the tab list from the most recent successful snapshot.
func (r *Reconstructor) Tabs() []schemas.TabInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	tabs := make([]schemas.TabInfo, len(r.lastTabs))
	copy(tabs, r.lastTabs)
	return tabs
}

// BuildState issues get_dom and reconstructs the full page model.
//
// Transport failures (not connected, timeout) are returned as errors. A
// snapshot the extension itself reports as failed never produces an error;
// it degrades into a model with an empty selector map, a nil element tree,
// and an error-marked title, so long-running control loops keep operating.
func (r *Reconstructor) BuildState(ctx context.Context) (*schemas.BrowserState, error) {
	current := r.CurrentURL()
	if current == "" || current == "about:blank" {
		// Establish a sane starting state before querying the DOM.
		r.logger.Info("No current URL, navigating to landing page",
			zap.String("url", r.landingURL))
		nav, err := r.bridge.Navigate(ctx, r.landingURL)
		if err != nil {
			return nil, err
		}
		if nav.Success {
			r.SetCurrentURL(r.landingURL)
		} else {
			r.logger.Error("Landing page navigation failed", zap.String("error", nav.Error))
		}
	}

	dom, err := r.bridge.GetDOM(ctx)
	if err != nil {
		return nil, err
	}
	if !dom.Success {
		r.logger.Error("DOM extraction failed, returning degraded state",
			zap.String("error", dom.Error))
		return r.degradedState(ctx, dom.Error), nil
	}

	payload := dom.Result
	if payload == nil {
		// success=true with no body: proceed with an empty snapshot so the
		// field-level fallbacks fill everything in.
		payload = &schemas.DOMPayload{}
	}
	return r.buildFromPayload(payload), nil
}

func (r *Reconstructor) buildFromPayload(payload *schemas.DOMPayload) *schemas.BrowserState {
	pageInfo := buildPageInfo(payload)

	url := payload.URL
	if url == "" {
		url = r.CurrentURL()
	}
	if url == "" {
		url = "about:blank"
	}
	title := payload.Title

	r.mu.Lock()
	r.currentURL = url
	r.lastTabs = append([]schemas.TabInfo(nil), payload.Tabs...)
	r.mu.Unlock()

	selectorMap := schemas.SelectorMap{}
	for i := range payload.Elements {
		el := buildElement(&payload.Elements[i])
		idx := 0
		if el.HighlightIndex != nil {
			idx = *el.HighlightIndex
		}
		// Indices are extension-assigned and may collide; last write wins.
		selectorMap[idx] = el
	}

	// Two-phase build: construct the root over the finished children, then
	// point the children back at it.
	indices := make([]int, 0, len(selectorMap))
	for idx := range selectorMap {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	children := make([]*schemas.DOMElement, 0, len(indices))
	for _, idx := range indices {
		children = append(children, selectorMap[idx])
	}

	root := &schemas.DOMElement{
		TagName:      "root",
		Attributes:   map[string]string{},
		Children:     children,
		IsVisible:    true,
		IsTopElement: true,
		IsInViewport: true,
	}
	for _, child := range children {
		child.Parent = root
	}

	return &schemas.BrowserState{
		ElementTree: root,
		SelectorMap: selectorMap,
		URL:         url,
		Title:       title,
		Tabs:        []schemas.TabInfo{{ID: 1, URL: url, Title: title}},
		PageInfo:    pageInfo,
		PixelsAbove: payload.Pixels.Above,
		PixelsBelow: payload.Pixels.Below,
	}
}

// degradedState builds the model returned when DOM extraction fails. It
// first probes the page for real dimensions; if that also fails it falls
// back to fixed defaults. It never returns an error.
func (r *Reconstructor) degradedState(ctx context.Context, remoteErr string) *schemas.BrowserState {
	if remoteErr == "" {
		remoteErr = "unknown error"
	}

	pageInfo := r.probeDimensions(ctx)

	url := r.CurrentURL()
	if url == "" {
		url = "about:blank"
	}
	title := ErrorTitlePrefix + remoteErr

	return &schemas.BrowserState{
		ElementTree: nil,
		SelectorMap: schemas.SelectorMap{},
		URL:         url,
		Title:       title,
		Tabs:        []schemas.TabInfo{{ID: 1, URL: url, Title: title}},
		PageInfo:    pageInfo,
	}
}

// probeDimensions asks the page's layout engine for real viewport and
// document dimensions. Any failure yields the fixed defaults.
func (r *Reconstructor) probeDimensions(ctx context.Context) schemas.PageInfo {
	fallback := schemas.PageInfo{
		ViewportWidth:  DefaultViewportWidth,
		ViewportHeight: DefaultViewportHeight,
		PageWidth:      DefaultViewportWidth,
		PageHeight:     DefaultViewportHeight,
	}

	res, err := r.bridge.Evaluate(ctx, dimensionProbeScript)
	if err != nil || !res.Success || len(res.Result) == 0 {
		if err != nil {
			r.logger.Warn("Dimension probe failed, using default metrics", zap.Error(err))
		}
		return fallback
	}

	var dims struct {
		Viewport schemas.RawViewport `json:"viewport"`
		Page     schemas.RawPage     `json:"page"`
	}
	if err := jsonCodec.Unmarshal(res.Result, &dims); err != nil {
		r.logger.Warn("Dimension probe returned unparseable data", zap.Error(err))
		return fallback
	}

	return buildPageInfo(&schemas.DOMPayload{Viewport: dims.Viewport, Page: dims.Page})
}

// buildPageInfo applies the field-level fallbacks: viewport defaults to
// 1920x1080, page dimensions default to the viewport, scroll and pixel
// overflow default to zero.
func buildPageInfo(payload *schemas.DOMPayload) schemas.PageInfo {
	viewportWidth := payload.Viewport.Width
	if viewportWidth == 0 {
		viewportWidth = DefaultViewportWidth
	}
	viewportHeight := payload.Viewport.Height
	if viewportHeight == 0 {
		viewportHeight = DefaultViewportHeight
	}
	pageWidth := payload.Page.Width
	if pageWidth == 0 {
		pageWidth = viewportWidth
	}
	pageHeight := payload.Page.Height
	if pageHeight == 0 {
		pageHeight = viewportHeight
	}

	return schemas.PageInfo{
		ViewportWidth:  viewportWidth,
		ViewportHeight: viewportHeight,
		PageWidth:      pageWidth,
		PageHeight:     pageHeight,
		ScrollX:        payload.Viewport.ScrollX,
		ScrollY:        payload.Viewport.ScrollY,
		PixelsAbove:    payload.Pixels.Above,
		PixelsBelow:    payload.Pixels.Below,
		PixelsLeft:     payload.Pixels.Left,
		PixelsRight:    payload.Pixels.Right,
	}
}

// buildElement converts one raw extension element into a snapshot. Quads are
// only constructed when the extension reported the coordinate object; absent
// coordinates stay absent rather than being synthesized.
func buildElement(raw *schemas.RawElement) *schemas.DOMElement {
	tag := raw.TagName
	if tag == "" {
		tag = "div"
	}
	attrs := raw.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	visible := true
	if raw.IsVisible != nil {
		visible = *raw.IsVisible
	}

	el := &schemas.DOMElement{
		TagName:        tag,
		XPath:          raw.XPath,
		Attributes:     attrs,
		IsVisible:      visible,
		IsInteractive:  raw.IsInteractive,
		IsTopElement:   raw.IsTopElement,
		IsInViewport:   raw.IsInViewport,
		ShadowRoot:     raw.ShadowRoot,
		HighlightIndex: raw.Index,
	}
	if raw.ViewportCoordinates != nil {
		el.ViewportQuad = buildQuad(raw.ViewportCoordinates)
	}
	if raw.PageCoordinates != nil {
		el.PageQuad = buildQuad(raw.PageCoordinates)
	}
	return el
}

func buildQuad(raw *schemas.RawQuad) *schemas.Quad {
	return &schemas.Quad{
		TopLeft:     schemas.Point{X: raw.TopLeft.X, Y: raw.TopLeft.Y},
		TopRight:    schemas.Point{X: raw.TopRight.X, Y: raw.TopRight.Y},
		BottomLeft:  schemas.Point{X: raw.BottomLeft.X, Y: raw.BottomLeft.Y},
		BottomRight: schemas.Point{X: raw.BottomRight.X, Y: raw.BottomRight.Y},
		Center:      schemas.Point{X: raw.Center.X, Y: raw.Center.Y},
		Width:       raw.Width,
		Height:      raw.Height,
	}
}
