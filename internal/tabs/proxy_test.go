package tabs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vexlio/drover/api/schemas"
)

type fakeBridge struct {
	navigated   []string
	closedTabs  []int
	tabNavs     map[int]string
	closeErr    error
	navigateErr error
	tabNavErr   error
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{tabNavs: map[int]string{}}
}

func (f *fakeBridge) Navigate(ctx context.Context, url string) (*schemas.ActionResult, error) {
	if f.navigateErr != nil {
		return nil, f.navigateErr
	}
	f.navigated = append(f.navigated, url)
	return &schemas.ActionResult{Success: true}, nil
}

func (f *fakeBridge) CloseTab(ctx context.Context, tabID int) error {
	if f.closeErr != nil {
		return f.closeErr
	}
	f.closedTabs = append(f.closedTabs, tabID)
	return nil
}

func (f *fakeBridge) NavigateTab(ctx context.Context, tabID int, url string) error {
	if f.tabNavErr != nil {
		return f.tabNavErr
	}
	f.tabNavs[tabID] = url
	return nil
}

func TestEqual_URLMatchOverridesIDMismatch(t *testing.T) {
	bridge := newFakeBridge()
	a := NewProxy(bridge, zap.NewNop(), schemas.TabInfo{ID: 1, URL: "http://x"})
	b := NewProxy(bridge, zap.NewNop(), schemas.TabInfo{ID: 2, URL: "http://x"})

	assert.True(t, a.Equal(b))
	assert.True(t, b.Equal(a))
}

func TestEqual_IDMatchDespiteDifferentURLs(t *testing.T) {
	bridge := newFakeBridge()
	a := NewProxy(bridge, zap.NewNop(), schemas.TabInfo{ID: 7, URL: "http://x"})
	b := NewProxy(bridge, zap.NewNop(), schemas.TabInfo{ID: 7, URL: "http://y"})

	assert.True(t, a.Equal(b))
}

func TestEqual_NoMatch(t *testing.T) {
	bridge := newFakeBridge()
	a := NewProxy(bridge, zap.NewNop(), schemas.TabInfo{ID: 1, URL: "http://x"})
	b := NewProxy(bridge, zap.NewNop(), schemas.TabInfo{ID: 2, URL: "http://y"})

	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(nil))
}

func TestClose_MarksClosedWithoutConfirmation(t *testing.T) {
	bridge := newFakeBridge()
	p := NewProxy(bridge, zap.NewNop(), schemas.TabInfo{ID: 9, URL: "http://x"})
	require.False(t, p.IsClosed())

	p.Close(context.Background())
	assert.True(t, p.IsClosed())
	assert.Equal(t, []int{9}, bridge.closedTabs)
}

func TestClose_TransportErrorLeavesHandleOpen(t *testing.T) {
	bridge := newFakeBridge()
	bridge.closeErr = errors.New("not connected")
	p := NewProxy(bridge, zap.NewNop(), schemas.TabInfo{ID: 9, URL: "http://x"})

	p.Close(context.Background())
	assert.False(t, p.IsClosed())
}

func TestGoto_OptimisticURLUpdate(t *testing.T) {
	bridge := newFakeBridge()
	p := NewProxy(bridge, zap.NewNop(), schemas.TabInfo{ID: 4, URL: "http://old"})

	require.NoError(t, p.Goto(context.Background(), "http://new"))
	assert.Equal(t, "http://new", p.URL())
	assert.Equal(t, "http://new", bridge.tabNavs[4])
}

func TestGoto_TransportErrorKeepsOldURL(t *testing.T) {
	bridge := newFakeBridge()
	bridge.tabNavErr = errors.New("not connected")
	p := NewProxy(bridge, zap.NewNop(), schemas.TabInfo{ID: 4, URL: "http://old"})

	require.Error(t, p.Goto(context.Background(), "http://new"))
	assert.Equal(t, "http://old", p.URL())
}

func TestCurrentPageProxy_RoutesThroughNavigate(t *testing.T) {
	bridge := newFakeBridge()
	p := NewCurrentPageProxy(bridge, zap.NewNop(), "http://current", "Current")

	assert.Equal(t, 1, p.ID())
	title, err := p.Title(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Current", title)

	require.NoError(t, p.Goto(context.Background(), "http://next"))
	assert.Equal(t, []string{"http://next"}, bridge.navigated)
	assert.Empty(t, bridge.tabNavs, "current page proxy never uses navigate_tab")

	// Closing the synthesized handle only flips local state.
	p.Close(context.Background())
	assert.True(t, p.IsClosed())
	assert.Empty(t, bridge.closedTabs)
}
