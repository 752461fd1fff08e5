// Package viewstate models the portal's view as an explicit value: the
// current route, the selected tab of each tabbed page and the sidebar.
// Every DOM class the page carries is derived from this value.
package viewstate

import (
	"strings"

	"github.com/dise/partnerportal/internal/views"
)

// CSS classes applied by the renderer.
const (
	ClassHidden       = "hidden"
	ClassActive       = "active"
	ClassSidebarOpen  = "open"
	ClassMenuActive   = "bg-gray-700 text-white"
	ClassMenuInactive = "text-gray-300 hover:bg-gray-700"
	ClassOverlayOpen  = "opacity-100"
	ClassOverlayShut  = "pointer-events-none opacity-0"
)

// State is the view state of one browser tab.
type State struct {
	Route       views.Route
	Hash        string
	Title       string
	Tabs        map[views.Route]string
	SidebarOpen bool

	registry *views.Registry
}

// Result describes the outcome of a navigation.
type Result struct {
	Route views.Route
	// Redirected is set when the hash did not match a page and the state
	// fell back to the default route. The caller rewrites the browser hash.
	Redirected bool
}

// New creates a state on registry. The state is empty until the first
// Navigate.
func New(registry *views.Registry) *State {
	return &State{
		Tabs:     make(map[views.Route]string),
		registry: registry,
	}
}

// Registry returns the registry the state navigates.
func (s *State) Registry() *views.Registry {
	return s.registry
}

// Navigate resolves hash to a page and makes it the current one.
func (s *State) Navigate(hash string) (Result, error) {
	key := strings.TrimPrefix(hash, "#")
	if key == "" {
		key = string(views.DefaultRoute)
	}

	page, ok := s.registry.Lookup(key)
	redirected := false
	if !ok {
		page, ok = s.registry.Lookup(string(views.DefaultRoute))
		if !ok {
			return Result{}, views.ErrNoDefaultPage
		}
		key = string(views.DefaultRoute)
		redirected = true
	}

	s.Route = page.Route
	s.Hash = key
	s.Title = s.registry.Title(key)

	if page.DefaultTab != "" {
		s.SwitchTab(page.Route, page.DefaultTab)
	}

	s.SidebarOpen = false
	return Result{Route: page.Route, Redirected: redirected}, nil
}

// SwitchTab selects tab within page's tab group. It reports false, leaving
// the state untouched, when the page or its tab control does not exist.
// A control without a panel is selected with no panel visible.
func (s *State) SwitchTab(page views.Route, tab string) bool {
	p, ok := s.registry.Lookup(string(page))
	if !ok {
		return false
	}
	if _, ok := p.Tab(tab); !ok {
		return false
	}
	s.Tabs[page] = tab
	return true
}

// ToggleSidebar flips the sidebar, or sets it when force is non-nil.
func (s *State) ToggleSidebar(force *bool) {
	if force != nil {
		s.SidebarOpen = *force
		return
	}
	s.SidebarOpen = !s.SidebarOpen
}

// Visible reports whether route's container is shown.
func (s *State) Visible(route views.Route) bool {
	return s.Route == route
}

// MenuActive reports whether route's menu entry is highlighted.
func (s *State) MenuActive(route views.Route) bool {
	return s.Route == route
}

// ActiveTab returns the selected tab of route, or "".
func (s *State) ActiveTab(route views.Route) string {
	return s.Tabs[route]
}

// PanelVisible reports whether the panel for tab on route is shown. Only
// a declared panel of the selected tab is ever visible.
func (s *State) PanelVisible(route views.Route, tab string) bool {
	if s.Tabs[route] != tab {
		return false
	}
	p, ok := s.registry.Lookup(string(route))
	if !ok {
		return false
	}
	t, ok := p.Tab(tab)
	return ok && t.HasPanel
}

// MenuClass returns the highlight classes of route's menu entry.
func (s *State) MenuClass(route views.Route) string {
	if s.MenuActive(route) {
		return ClassMenuActive
	}
	return ClassMenuInactive
}

// SidebarClass returns the sidebar's state class.
func (s *State) SidebarClass() string {
	if s.SidebarOpen {
		return ClassSidebarOpen
	}
	return ""
}

// Overlay returns the overlay classes. They derive from SidebarOpen only.
func (s *State) Overlay() string {
	if s.SidebarOpen {
		return ClassOverlayOpen
	}
	return ClassOverlayShut
}
