package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vexlio/drover/api/schemas"
)

// Typed wrappers over SendCommand for the methods the extension understands.
// These decode the loose result objects into their schema types; flag
// checking and error promotion is left to the caller-facing action layer.

func decodeResult[T any](method string, raw json.RawMessage) (*T, error) {
	var res T
	if len(raw) == 0 {
		// An empty result is treated as an unsuccessful zero value rather
		// than a decode failure; the extension omits the body on some
		// internal errors.
		return &res, nil
	}
	if err := jsonCodec.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", method, err)
	}
	return &res, nil
}

// Navigate drives the active tab to url.
func (s *Server) Navigate(ctx context.Context, url string) (*schemas.ActionResult, error) {
	raw, err := s.SendCommand(ctx, schemas.MethodNavigate, map[string]any{"url": url})
	if err != nil {
		return nil, err
	}
	return decodeResult[schemas.ActionResult](schemas.MethodNavigate, raw)
}

// Click clicks the element with the given highlight index.
func (s *Server) Click(ctx context.Context, index int) (*schemas.ActionResult, error) {
	raw, err := s.SendCommand(ctx, schemas.MethodClick, map[string]any{"index": index})
	if err != nil {
		return nil, err
	}
	return decodeResult[schemas.ActionResult](schemas.MethodClick, raw)
}

// ClickAt clicks at viewport coordinates.
func (s *Server) ClickAt(ctx context.Context, x, y int) (*schemas.ActionResult, error) {
	raw, err := s.SendCommand(ctx, schemas.MethodClick, map[string]any{"x": x, "y": y})
	if err != nil {
		return nil, err
	}
	return decodeResult[schemas.ActionResult](schemas.MethodClick, raw)
}

// TypeText types into the currently focused element.
func (s *Server) TypeText(ctx context.Context, text string) (*schemas.ActionResult, error) {
	raw, err := s.SendCommand(ctx, schemas.MethodType, map[string]any{"text": text})
	if err != nil {
		return nil, err
	}
	return decodeResult[schemas.ActionResult](schemas.MethodType, raw)
}

// Evaluate runs a JavaScript expression in the page.
func (s *Server) Evaluate(ctx context.Context, expression string) (*schemas.EvaluateResult, error) {
	raw, err := s.SendCommand(ctx, schemas.MethodEvaluate, map[string]any{"expression": expression})
	if err != nil {
		return nil, err
	}
	return decodeResult[schemas.EvaluateResult](schemas.MethodEvaluate, raw)
}

// Screenshot captures the visible viewport.
func (s *Server) Screenshot(ctx context.Context) (*schemas.ScreenshotResult, error) {
	raw, err := s.SendCommand(ctx, schemas.MethodScreenshot, nil)
	if err != nil {
		return nil, err
	}
	return decodeResult[schemas.ScreenshotResult](schemas.MethodScreenshot, raw)
}

// GetDOM fetches the extension's flat element snapshot for the current page.
func (s *Server) GetDOM(ctx context.Context) (*schemas.DOMResult, error) {
	raw, err := s.SendCommand(ctx, schemas.MethodGetDOM, nil)
	if err != nil {
		return nil, err
	}
	return decodeResult[schemas.DOMResult](schemas.MethodGetDOM, raw)
}

// CloseTab asks the extension to close a tab. The result content is ignored;
// callers treat this as fire-and-forget beyond transport errors.
func (s *Server) CloseTab(ctx context.Context, tabID int) error {
	_, err := s.SendCommand(ctx, schemas.MethodCloseTab, map[string]any{"tabId": tabID})
	return err
}

// NavigateTab drives a specific tab to url. As with CloseTab, the result
// content is not inspected.
func (s *Server) NavigateTab(ctx context.Context, tabID int, url string) error {
	_, err := s.SendCommand(ctx, schemas.MethodNavigateTab, map[string]any{"tabId": tabID, "url": url})
	return err
}
