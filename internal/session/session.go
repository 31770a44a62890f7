// Package session ties the bridge command surface, the state reconstructor,
// and the tab proxies together into the caller-facing browsing handle.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vexlio/drover/api/schemas"
	"github.com/vexlio/drover/internal/bridge"
	"github.com/vexlio/drover/internal/state"
	"github.com/vexlio/drover/internal/tabs"
)

// Bridge is the full command surface a session drives. *bridge.Server
// satisfies it.
type Bridge interface {
	Connected() bool
	Navigate(ctx context.Context, url string) (*schemas.ActionResult, error)
	Click(ctx context.Context, index int) (*schemas.ActionResult, error)
	ClickAt(ctx context.Context, x, y int) (*schemas.ActionResult, error)
	TypeText(ctx context.Context, text string) (*schemas.ActionResult, error)
	Evaluate(ctx context.Context, expression string) (*schemas.EvaluateResult, error)
	Screenshot(ctx context.Context) (*schemas.ScreenshotResult, error)
	GetDOM(ctx context.Context) (*schemas.DOMResult, error)
	CloseTab(ctx context.Context, tabID int) error
	NavigateTab(ctx context.Context, tabID int, url string) error
}

// Session is a browsing session over a user-owned browser. It never manages
// the browser process; closing a session leaves the browser untouched.
type Session struct {
	id     string
	bridge Bridge
	recon  *state.Reconstructor
	logger *zap.Logger
}

// NewSession creates a session over an extension bridge. landingURL is where
// the first snapshot navigates when no URL is known yet.
func NewSession(b Bridge, landingURL string, logger *zap.Logger) *Session {
	sessionID := uuid.New().String()
	log := logger.Named("session").With(zap.String("session_id", sessionID))
	return &Session{
		id:     sessionID,
		bridge: b,
		recon:  state.NewReconstructor(b, landingURL, log),
		logger: log,
	}
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// CurrentURL returns the URL the session last observed or navigated to.
func (s *Session) CurrentURL() string { return s.recon.CurrentURL() }

// State builds a fresh page model. It fails on transport errors; extraction
// failures degrade into an error-marked model instead (see state package).
func (s *Session) State(ctx context.Context) (*schemas.BrowserState, error) {
	if !s.bridge.Connected() {
		return nil, bridge.ErrNotConnected
	}
	return s.recon.BuildState(ctx)
}

// ElementByIndex returns the element snapshot for a highlight index from a
// fresh page model.
func (s *Session) ElementByIndex(ctx context.Context, index int) (*schemas.DOMElement, error) {
	st, err := s.State(ctx)
	if err != nil {
		return nil, err
	}
	el, ok := st.SelectorMap[index]
	if !ok {
		return nil, fmt.Errorf("no element with highlight index %d", index)
	}
	return el, nil
}

// Navigate drives the active page to url and updates the tracked URL on
// success.
func (s *Session) Navigate(ctx context.Context, url string) error {
	res, err := s.bridge.Navigate(ctx, url)
	if err != nil {
		return err
	}
	if !res.Success {
		return &bridge.RemoteError{Method: schemas.MethodNavigate, Element: -1, Reason: res.Error}
	}
	s.recon.SetCurrentURL(url)
	s.logger.Info("Navigated", zap.String("url", url))
	return nil
}

// ClickElement clicks the element at the given highlight index. Both the
// top-level success flag and the clicked sub-flag must be set; anything less
// is promoted to a RemoteError naming the element and the reported reason.
func (s *Session) ClickElement(ctx context.Context, index int) error {
	res, err := s.bridge.Click(ctx, index)
	if err != nil {
		return err
	}
	if !res.ClickedOK() {
		return &bridge.RemoteError{Method: schemas.MethodClick, Element: index, Reason: res.Error}
	}
	s.logger.Debug("Clicked element", zap.Int("index", index))
	return nil
}

// ClickAt clicks at viewport coordinates, with the same dual-flag contract
// as ClickElement.
func (s *Session) ClickAt(ctx context.Context, x, y int) error {
	res, err := s.bridge.ClickAt(ctx, x, y)
	if err != nil {
		return err
	}
	if !res.ClickedOK() {
		return &bridge.RemoteError{Method: schemas.MethodClick, Element: -1, Reason: res.Error}
	}
	return nil
}

// TypeText types into the currently focused element, checking both the
// success and typed flags.
func (s *Session) TypeText(ctx context.Context, text string) error {
	res, err := s.bridge.TypeText(ctx, text)
	if err != nil {
		return err
	}
	if !res.TypedOK() {
		return &bridge.RemoteError{Method: schemas.MethodType, Element: -1, Reason: res.Error}
	}
	return nil
}

// TypeTextInto focuses the element at index with a click, then types. The
// focusing click only needs the top-level success flag; the type itself uses
// the full dual-flag contract.
func (s *Session) TypeTextInto(ctx context.Context, index int, text string) error {
	focus, err := s.bridge.Click(ctx, index)
	if err != nil {
		return err
	}
	if !focus.Success {
		return &bridge.RemoteError{Method: schemas.MethodClick, Element: index, Reason: focus.Error}
	}
	res, err := s.bridge.TypeText(ctx, text)
	if err != nil {
		return err
	}
	if !res.TypedOK() {
		return &bridge.RemoteError{Method: schemas.MethodType, Element: index, Reason: res.Error}
	}
	s.logger.Debug("Typed into element", zap.Int("index", index))
	return nil
}

// Evaluate runs a JavaScript expression in the page and returns its raw JSON
// value.
func (s *Session) Evaluate(ctx context.Context, expression string) (json.RawMessage, error) {
	res, err := s.bridge.Evaluate(ctx, expression)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, &bridge.RemoteError{Method: schemas.MethodEvaluate, Element: -1, Reason: res.Error}
	}
	return res.Result, nil
}

// Screenshot captures the visible viewport and returns the decoded PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	res, err := s.bridge.Screenshot(ctx)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, &bridge.RemoteError{Method: schemas.MethodScreenshot, Element: -1, Reason: res.Error}
	}
	data, err := base64.StdEncoding.DecodeString(res.Data)
	if err != nil {
		return nil, fmt.Errorf("decode screenshot data: %w", err)
	}
	return data, nil
}

// Tabs returns proxies for the browser's tabs as last reported by the
// extension. When the extension has not supplied a tab list yet, a single
// proxy for the current page is synthesized instead.
func (s *Session) Tabs() []*tabs.Proxy {
	infos := s.recon.Tabs()
	if len(infos) == 0 {
		url := s.recon.CurrentURL()
		if url == "" {
			url = "about:blank"
		}
		return []*tabs.Proxy{tabs.NewCurrentPageProxy(s.bridge, s.logger, url, "")}
	}
	proxies := make([]*tabs.Proxy, 0, len(infos))
	for _, info := range infos {
		proxies = append(proxies, tabs.NewProxy(s.bridge, s.logger, info))
	}
	return proxies
}

// Close ends the session. The user's browser stays running; there is nothing
// to tear down on our side.
func (s *Session) Close(ctx context.Context) error {
	s.logger.Info("Session closed, browser left running")
	return nil
}

// Stop is an alias for Close.
func (s *Session) Stop(ctx context.Context) error {
	return s.Close(ctx)
}
