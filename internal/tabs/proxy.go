// Package tabs adapts raw extension tab descriptors into uniform page-like
// handles for generic tab-selection logic.
package tabs

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/vexlio/drover/api/schemas"
)

// Commander is the slice of the bridge command surface tab proxies consume.
type Commander interface {
	Navigate(ctx context.Context, url string) (*schemas.ActionResult, error)
	CloseTab(ctx context.Context, tabID int) error
	NavigateTab(ctx context.Context, tabID int, url string) error
}

// Proxy wraps one tab descriptor in a page-like handle. Close and Goto are
// optimistic: local state is updated without waiting on the extension to
// confirm success.
type Proxy struct {
	bridge Commander
	logger *zap.Logger

	id int
	// currentPage marks a proxy synthesized from the active page rather than
	// the extension's tab list; its navigation routes through the plain
	// navigate command instead of navigate_tab.
	currentPage bool

	mu     sync.Mutex
	url    string
	title  string
	closed bool
}

// NewProxy wraps an extension-reported tab descriptor.
func NewProxy(bridge Commander, logger *zap.Logger, info schemas.TabInfo) *Proxy {
	return &Proxy{
		bridge: bridge,
		logger: logger.Named("tab"),
		id:     info.ID,
		url:    info.URL,
		title:  info.Title,
	}
}

// NewCurrentPageProxy synthesizes a proxy for the active page when the
// extension supplied no tab list.
func NewCurrentPageProxy(bridge Commander, logger *zap.Logger, url, title string) *Proxy {
	return &Proxy{
		bridge:      bridge,
		logger:      logger.Named("tab"),
		id:          1,
		currentPage: true,
		url:         url,
		title:       title,
	}
}

// ID returns the extension-assigned tab id.
func (p *Proxy) ID() int { return p.id }

// URL returns the locally tracked url for this tab.
func (p *Proxy) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Title returns the tab title as last reported by the extension.
func (p *Proxy) Title(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title, nil
}

// IsClosed reports whether this handle has been closed locally.
func (p *Proxy) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close issues close_tab and marks the handle closed. The extension's answer
// is not inspected; only transport failures are logged, and those leave the
// handle open.
func (p *Proxy) Close(ctx context.Context) {
	if p.currentPage {
		// The synthesized current-page handle has no real tab behind it.
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		return
	}
	if err := p.bridge.CloseTab(ctx, p.id); err != nil {
		p.logger.Error("Failed to close tab", zap.Int("tab_id", p.id), zap.Error(err))
		return
	}
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// Goto navigates this tab and optimistically records the new url without
// waiting for confirmation of success.
func (p *Proxy) Goto(ctx context.Context, url string) error {
	var err error
	if p.currentPage {
		_, err = p.bridge.Navigate(ctx, url)
	} else {
		err = p.bridge.NavigateTab(ctx, p.id, url)
	}
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	return nil
}

// Equal implements the identity rule tab-selection logic relies on: two
// handles are the same tab when their ids match, or, failing that, when
// their urls match. URL equality is accepted as a fallback identity signal
// even across different ids, so callers can locate a tab by url alone.
func (p *Proxy) Equal(other *Proxy) bool {
	if other == nil {
		return false
	}
	if p.id == other.id {
		return true
	}
	return p.URL() == other.URL()
}
