// Package views holds the registry of portal pages and the naming
// conventions that tie a route to its container, menu entry and tab panels.
package views

import (
	"errors"
	"fmt"
)

// Route identifies a page. It is also the hash fragment without '#'.
type Route string

// Known routes.
const (
	RouteHome     Route = "home"
	RouteChromeOS Route = "SignageOS-ChromeOS"
	RouteUnlock   Route = "SignageOS-UnLockStandAloneDevice"
)

// DefaultRoute is shown for an empty or unknown hash.
const DefaultRoute = RouteHome

// FallbackTitle is used for pages registered without a title.
const FallbackTitle = "Partner Portal"

// Registry errors.
var (
	ErrNoDefaultPage  = errors.New("views: registry has no default page")
	ErrDuplicatePage  = errors.New("views: duplicate page")
	ErrEmptyRoute     = errors.New("views: empty route")
	ErrUnknownDefault = errors.New("views: default tab not declared")
)

// Tab is one control of a page's tab group.
type Tab struct {
	ID       string
	Label    string
	HasPanel bool
}

// Page describes one routable view.
type Page struct {
	Route      Route
	Title      string
	InMenu     bool
	Icon       string
	Tabs       []Tab
	DefaultTab string
}

// Tabbed reports whether the page declares a tab group.
func (p Page) Tabbed() bool {
	return len(p.Tabs) > 0
}

// Tab returns the declared tab with the given id.
func (p Page) Tab(id string) (Tab, bool) {
	for _, t := range p.Tabs {
		if t.ID == id {
			return t, true
		}
	}
	return Tab{}, false
}

// ContainerID is the element id of a page container.
func ContainerID(r Route) string { return "page-" + string(r) }

// MenuID is the element id of a page's menu entry.
func MenuID(r Route) string { return "menu-" + string(r) }

// PanelID is the element id of a tab panel.
func PanelID(tab string) string { return "tab-content-" + tab }

// Registry is an ordered, validated set of pages.
type Registry struct {
	pages []Page
	index map[Route]int
}

// NewRegistry validates pages and builds a registry. A registry must
// contain DefaultRoute so that navigation to an unknown hash always
// resolves.
func NewRegistry(pages ...Page) (*Registry, error) {
	r := &Registry{
		pages: make([]Page, 0, len(pages)),
		index: make(map[Route]int, len(pages)),
	}
	for _, p := range pages {
		if p.Route == "" {
			return nil, ErrEmptyRoute
		}
		if _, dup := r.index[p.Route]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePage, p.Route)
		}
		if p.DefaultTab != "" {
			if _, ok := p.Tab(p.DefaultTab); !ok {
				return nil, fmt.Errorf("%w: %s on %s", ErrUnknownDefault, p.DefaultTab, p.Route)
			}
		}
		r.index[p.Route] = len(r.pages)
		r.pages = append(r.pages, p)
	}
	if _, ok := r.index[DefaultRoute]; !ok {
		return nil, ErrNoDefaultPage
	}
	return r, nil
}

// MustRegistry is NewRegistry that panics on error.
func MustRegistry(pages ...Page) *Registry {
	r, err := NewRegistry(pages...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup finds a page by key.
func (r *Registry) Lookup(key string) (Page, bool) {
	if r == nil {
		return Page{}, false
	}
	i, ok := r.index[Route(key)]
	if !ok {
		return Page{}, false
	}
	return r.pages[i], true
}

// Pages returns the pages in registration order.
func (r *Registry) Pages() []Page {
	out := make([]Page, len(r.pages))
	copy(out, r.pages)
	return out
}

// Menu returns the pages shown in the sidebar, in order.
func (r *Registry) Menu() []Page {
	var out []Page
	for _, p := range r.pages {
		if p.InMenu {
			out = append(out, p)
		}
	}
	return out
}

// Title returns the registered title for key, or FallbackTitle.
func (r *Registry) Title(key string) string {
	if p, ok := r.Lookup(key); ok && p.Title != "" {
		return p.Title
	}
	return FallbackTitle
}

// Default returns the portal's registry.
func Default() *Registry {
	toolTabs := []Tab{
		{ID: "script", Label: "Script", HasPanel: true},
		{ID: "instructions", Label: "Instructions", HasPanel: true},
	}
	return MustRegistry(
		Page{
			Route:  RouteHome,
			Title:  "Home",
			InMenu: true,
			Icon:   "home",
		},
		Page{
			Route:      RouteChromeOS,
			Title:      "SignageOS - ChromeOS Provisioning",
			InMenu:     true,
			Icon:       "terminal",
			Tabs:       toolTabs,
			DefaultTab: "script",
		},
		Page{
			Route:      RouteUnlock,
			Title:      "SignageOS – Un Lock StandAloneDevice",
			InMenu:     true,
			Icon:       "unlock",
			Tabs:       toolTabs,
			DefaultTab: "script",
		},
	)
}
