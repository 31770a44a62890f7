package state

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vexlio/drover/api/schemas"
)

// fakeBridge is a scriptable Commander implementation.
type fakeBridge struct {
	navigateFunc func(ctx context.Context, url string) (*schemas.ActionResult, error)
	getDOMFunc   func(ctx context.Context) (*schemas.DOMResult, error)
	evaluateFunc func(ctx context.Context, expression string) (*schemas.EvaluateResult, error)

	navigatedTo []string
}

func (f *fakeBridge) Navigate(ctx context.Context, url string) (*schemas.ActionResult, error) {
	f.navigatedTo = append(f.navigatedTo, url)
	if f.navigateFunc != nil {
		return f.navigateFunc(ctx, url)
	}
	return &schemas.ActionResult{Success: true}, nil
}

func (f *fakeBridge) GetDOM(ctx context.Context) (*schemas.DOMResult, error) {
	if f.getDOMFunc != nil {
		return f.getDOMFunc(ctx)
	}
	return &schemas.DOMResult{Success: true, Result: &schemas.DOMPayload{}}, nil
}

func (f *fakeBridge) Evaluate(ctx context.Context, expression string) (*schemas.EvaluateResult, error) {
	if f.evaluateFunc != nil {
		return f.evaluateFunc(ctx, expression)
	}
	return &schemas.EvaluateResult{Success: false}, nil
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func newTestReconstructor(bridge Commander) *Reconstructor {
	return NewReconstructor(bridge, "https://www.google.com", zap.NewNop())
}

func TestBuildState_ConcreteSnapshot(t *testing.T) {
	// The canonical snapshot: one anchor at index 3, an 800x600 viewport,
	// empty page and pixel objects.
	payload := &schemas.DOMPayload{
		URL:   "https://example.com",
		Title: "Example",
		Elements: []schemas.RawElement{
			{Index: intPtr(3), TagName: "a", XPath: "/html/body/a", IsVisible: boolPtr(true)},
		},
		Viewport: schemas.RawViewport{Width: 800, Height: 600},
	}
	bridge := &fakeBridge{
		getDOMFunc: func(ctx context.Context) (*schemas.DOMResult, error) {
			return &schemas.DOMResult{Success: true, Result: payload}, nil
		},
	}
	r := newTestReconstructor(bridge)
	r.SetCurrentURL("https://example.com")

	st, err := r.BuildState(context.Background())
	require.NoError(t, err)

	require.Len(t, st.SelectorMap, 1)
	el, ok := st.SelectorMap[3]
	require.True(t, ok)
	assert.Equal(t, "a", el.TagName)
	assert.Equal(t, "/html/body/a", el.XPath)
	assert.True(t, el.IsVisible)
	require.NotNil(t, el.HighlightIndex)
	assert.Equal(t, 3, *el.HighlightIndex)

	// Page metrics fall back to the viewport; pixel overflow defaults to 0.
	assert.Equal(t, 800, st.PageInfo.ViewportWidth)
	assert.Equal(t, 600, st.PageInfo.ViewportHeight)
	assert.Equal(t, 800, st.PageInfo.PageWidth)
	assert.Equal(t, 600, st.PageInfo.PageHeight)
	assert.Zero(t, st.PageInfo.PixelsAbove)
	assert.Zero(t, st.PageInfo.PixelsBelow)
	assert.Zero(t, st.PageInfo.PixelsLeft)
	assert.Zero(t, st.PageInfo.PixelsRight)

	assert.Equal(t, "https://example.com", st.URL)
	assert.Equal(t, "Example", st.Title)
	require.Len(t, st.Tabs, 1)
	assert.Equal(t, 1, st.Tabs[0].ID)
}

func TestBuildState_FallbackMetrics(t *testing.T) {
	// Snapshot omitting viewport and page entirely: both default 1920x1080.
	bridge := &fakeBridge{
		getDOMFunc: func(ctx context.Context) (*schemas.DOMResult, error) {
			return &schemas.DOMResult{Success: true, Result: &schemas.DOMPayload{URL: "https://example.com"}}, nil
		},
	}
	r := newTestReconstructor(bridge)
	r.SetCurrentURL("https://example.com")

	st, err := r.BuildState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultViewportWidth, st.PageInfo.ViewportWidth)
	assert.Equal(t, DefaultViewportHeight, st.PageInfo.ViewportHeight)
	assert.Equal(t, DefaultViewportWidth, st.PageInfo.PageWidth)
	assert.Equal(t, DefaultViewportHeight, st.PageInfo.PageHeight)
}

func TestBuildState_Idempotent(t *testing.T) {
	payload := &schemas.DOMPayload{
		URL:   "https://example.com",
		Title: "Example",
		Elements: []schemas.RawElement{
			{Index: intPtr(1), TagName: "button", XPath: "//button[1]"},
			{Index: intPtr(2), TagName: "input", XPath: "//input[1]"},
			{TagName: "span", XPath: "//span[1]"}, // missing index keys at 0
		},
		Viewport: schemas.RawViewport{Width: 1024, Height: 768},
	}
	bridge := &fakeBridge{
		getDOMFunc: func(ctx context.Context) (*schemas.DOMResult, error) {
			return &schemas.DOMResult{Success: true, Result: payload}, nil
		},
	}
	r := newTestReconstructor(bridge)
	r.SetCurrentURL("https://example.com")

	first, err := r.BuildState(context.Background())
	require.NoError(t, err)
	second, err := r.BuildState(context.Background())
	require.NoError(t, err)

	require.Equal(t, len(first.SelectorMap), len(second.SelectorMap))
	for idx, el := range first.SelectorMap {
		other, ok := second.SelectorMap[idx]
		require.True(t, ok, "index %d missing on second pass", idx)
		assert.Equal(t, el.TagName, other.TagName)
		assert.Equal(t, el.XPath, other.XPath)
	}
}

func TestBuildState_DuplicateIndicesLastWriteWins(t *testing.T) {
	// Two elements with no index both default to 0; the later one silently
	// overwrites the earlier entry.
	payload := &schemas.DOMPayload{
		URL: "https://example.com",
		Elements: []schemas.RawElement{
			{TagName: "a", XPath: "//a[1]"},
			{TagName: "b", XPath: "//b[1]"},
		},
	}
	bridge := &fakeBridge{
		getDOMFunc: func(ctx context.Context) (*schemas.DOMResult, error) {
			return &schemas.DOMResult{Success: true, Result: payload}, nil
		},
	}
	r := newTestReconstructor(bridge)
	r.SetCurrentURL("https://example.com")

	st, err := r.BuildState(context.Background())
	require.NoError(t, err)
	require.Len(t, st.SelectorMap, 1)
	assert.Equal(t, "b", st.SelectorMap[0].TagName)
	assert.Len(t, st.ElementTree.Children, 1)
}

func TestBuildState_TwoPhaseTree(t *testing.T) {
	payload := &schemas.DOMPayload{
		URL: "https://example.com",
		Elements: []schemas.RawElement{
			{Index: intPtr(1), TagName: "button"},
			{Index: intPtr(5), TagName: "input"},
		},
	}
	bridge := &fakeBridge{
		getDOMFunc: func(ctx context.Context) (*schemas.DOMResult, error) {
			return &schemas.DOMResult{Success: true, Result: payload}, nil
		},
	}
	r := newTestReconstructor(bridge)
	r.SetCurrentURL("https://example.com")

	st, err := r.BuildState(context.Background())
	require.NoError(t, err)

	root := st.ElementTree
	require.NotNil(t, root)
	assert.Equal(t, "root", root.TagName)
	assert.Nil(t, root.Parent)
	require.Len(t, root.Children, 2)
	for _, child := range root.Children {
		assert.Same(t, root, child.Parent)
		assert.Empty(t, child.Children, "element set is flat, depth one only")
	}
}

func TestBuildState_QuadsOnlyWhenReported(t *testing.T) {
	payload := &schemas.DOMPayload{
		URL: "https://example.com",
		Elements: []schemas.RawElement{
			{
				Index:   intPtr(1),
				TagName: "button",
				ViewportCoordinates: &schemas.RawQuad{
					TopLeft: schemas.RawPoint{X: 10, Y: 20}, TopRight: schemas.RawPoint{X: 110, Y: 20},
					BottomLeft: schemas.RawPoint{X: 10, Y: 60}, BottomRight: schemas.RawPoint{X: 110, Y: 60},
					Center: schemas.RawPoint{X: 60, Y: 40}, Width: 100, Height: 40,
				},
			},
			{Index: intPtr(2), TagName: "input"},
		},
	}
	bridge := &fakeBridge{
		getDOMFunc: func(ctx context.Context) (*schemas.DOMResult, error) {
			return &schemas.DOMResult{Success: true, Result: payload}, nil
		},
	}
	r := newTestReconstructor(bridge)
	r.SetCurrentURL("https://example.com")

	st, err := r.BuildState(context.Background())
	require.NoError(t, err)

	withQuad := st.SelectorMap[1]
	require.NotNil(t, withQuad.ViewportQuad)
	assert.Equal(t, 100.0, withQuad.ViewportQuad.Width)
	assert.Equal(t, schemas.Point{X: 60, Y: 40}, withQuad.ViewportQuad.Center)
	assert.Nil(t, withQuad.PageQuad, "absent coordinates are not synthesized")

	withoutQuad := st.SelectorMap[2]
	assert.Nil(t, withoutQuad.ViewportQuad)
	assert.Nil(t, withoutQuad.PageQuad)
}

func TestBuildState_DegradedNeverRaises(t *testing.T) {
	bridge := &fakeBridge{
		getDOMFunc: func(ctx context.Context) (*schemas.DOMResult, error) {
			return &schemas.DOMResult{Success: false, Error: "content script not injected"}, nil
		},
		evaluateFunc: func(ctx context.Context, expression string) (*schemas.EvaluateResult, error) {
			return nil, errors.New("evaluate also failed")
		},
	}
	r := newTestReconstructor(bridge)
	r.SetCurrentURL("https://example.com")

	st, err := r.BuildState(context.Background())
	require.NoError(t, err, "degraded snapshots must not surface as errors")

	assert.Nil(t, st.ElementTree)
	assert.Empty(t, st.SelectorMap)
	assert.Equal(t, "https://example.com", st.URL)
	assert.Equal(t, ErrorTitlePrefix+"content script not injected", st.Title)
	assert.Equal(t, DefaultViewportWidth, st.PageInfo.ViewportWidth)
	assert.Equal(t, DefaultViewportHeight, st.PageInfo.ViewportHeight)
	assert.Equal(t, DefaultViewportWidth, st.PageInfo.PageWidth)
	assert.Equal(t, DefaultViewportHeight, st.PageInfo.PageHeight)
}

func TestBuildState_DegradedRecoversDimensions(t *testing.T) {
	dims, err := json.Marshal(map[string]any{
		"viewport": map[string]any{"width": 1280, "height": 720},
		"page":     map[string]any{"height": 4000},
	})
	require.NoError(t, err)

	bridge := &fakeBridge{
		getDOMFunc: func(ctx context.Context) (*schemas.DOMResult, error) {
			return &schemas.DOMResult{Success: false, Error: "snapshot failed"}, nil
		},
		evaluateFunc: func(ctx context.Context, expression string) (*schemas.EvaluateResult, error) {
			return &schemas.EvaluateResult{Success: true, Result: dims}, nil
		},
	}
	r := newTestReconstructor(bridge)
	r.SetCurrentURL("https://example.com")

	st, err := r.BuildState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1280, st.PageInfo.ViewportWidth)
	assert.Equal(t, 720, st.PageInfo.ViewportHeight)
	assert.Equal(t, 1280, st.PageInfo.PageWidth, "missing page width falls back to viewport")
	assert.Equal(t, 4000, st.PageInfo.PageHeight)
}

func TestBuildState_DegradedWithNoURL(t *testing.T) {
	bridge := &fakeBridge{
		navigateFunc: func(ctx context.Context, url string) (*schemas.ActionResult, error) {
			return &schemas.ActionResult{Success: false, Error: "cannot navigate"}, nil
		},
		getDOMFunc: func(ctx context.Context) (*schemas.DOMResult, error) {
			return &schemas.DOMResult{Success: false, Error: "no page"}, nil
		},
	}
	r := newTestReconstructor(bridge)

	st, err := r.BuildState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "about:blank", st.URL)
	assert.Contains(t, st.Title, ErrorTitlePrefix)
}

func TestBuildState_LandingNavigation(t *testing.T) {
	bridge := &fakeBridge{}
	r := newTestReconstructor(bridge)

	_, err := r.BuildState(context.Background())
	require.NoError(t, err)
	require.Len(t, bridge.navigatedTo, 1)
	assert.Equal(t, "https://www.google.com", bridge.navigatedTo[0])
	assert.Equal(t, "https://www.google.com", r.CurrentURL())

	// A second snapshot with a known URL must not navigate again.
	_, err = r.BuildState(context.Background())
	require.NoError(t, err)
	assert.Len(t, bridge.navigatedTo, 1)
}

func TestBuildState_TransportErrorPropagates(t *testing.T) {
	transportErr := errors.New("command timeout")
	bridge := &fakeBridge{
		getDOMFunc: func(ctx context.Context) (*schemas.DOMResult, error) {
			return nil, transportErr
		},
	}
	r := newTestReconstructor(bridge)
	r.SetCurrentURL("https://example.com")

	_, err := r.BuildState(context.Background())
	require.ErrorIs(t, err, transportErr)
}

func TestBuildState_StoresExtensionTabs(t *testing.T) {
	payload := &schemas.DOMPayload{
		URL: "https://example.com",
		Tabs: []schemas.TabInfo{
			{ID: 10, URL: "https://example.com", Title: "Example"},
			{ID: 11, URL: "https://other.test", Title: "Other"},
		},
	}
	bridge := &fakeBridge{
		getDOMFunc: func(ctx context.Context) (*schemas.DOMResult, error) {
			return &schemas.DOMResult{Success: true, Result: payload}, nil
		},
	}
	r := newTestReconstructor(bridge)
	r.SetCurrentURL("https://example.com")

	_, err := r.BuildState(context.Background())
	require.NoError(t, err)

	tabs := r.Tabs()
	require.Len(t, tabs, 2)
	assert.Equal(t, 10, tabs[0].ID)
	assert.Equal(t, "https://other.test", tabs[1].URL)
}
