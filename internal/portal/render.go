package portal

import (
	"context"
	"embed"
	"html/template"
	"io"

	"github.com/dise/partnerportal/internal/provisioning"
	"github.com/dise/partnerportal/internal/toast"
	"github.com/dise/partnerportal/internal/unlock"
	"github.com/dise/partnerportal/internal/views"
	"github.com/dise/partnerportal/pkg/core"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type viewData struct {
	Title        string
	Assets       string
	LivePath     string
	SidebarClass string
	Overlay      string
	Menu         []menuItem
	Pages        []pageView
	Toasts       []*toast.Toast

	Note       string
	Script     string
	ScriptName string
	ScriptURL  string
	Form       unlock.Request
	Output     string
	Running    bool
	UnlockPath string
}

type menuItem struct {
	Route  views.Route
	ID     string
	Label  string
	Icon   string
	Class  string
	Active bool
}

// pageView and tabView both carry Key and App so the "body" template can
// pick the content for either.
type pageView struct {
	Route       views.Route
	ContainerID string
	Visible     bool
	Tabbed      bool
	Tabs        []tabView
	Key         string
	App         *viewData
}

type tabView struct {
	ID           string
	Label        string
	PanelID      string
	Active       bool
	HasPanel     bool
	PanelVisible bool
	Key          string
	App          *viewData
}

// Render implements core.Component.
func (p *Portal) Render(ctx context.Context) core.Renderer {
	data := p.view()
	return core.RendererFunc(func(ctx context.Context, w io.Writer) error {
		return pageTemplate.ExecuteTemplate(w, "portal", data)
	})
}

func (p *Portal) view() *viewData {
	s := p.state
	d := &viewData{
		Title:        s.Title,
		Assets:       p.opts.Assets,
		LivePath:     "/",
		SidebarClass: s.SidebarClass(),
		Overlay:      s.Overlay(),
		Toasts:       p.toasts.List(),
		Note:         p.note,
		Script:       provisioning.Script,
		ScriptName:   provisioning.Filename,
		ScriptURL:    p.opts.ScriptURL,
		Form:         p.form,
		Output:       p.output,
		Running:      p.running,
		UnlockPath:   unlock.Path,
	}

	reg := s.Registry()
	for _, page := range reg.Menu() {
		d.Menu = append(d.Menu, menuItem{
			Route:  page.Route,
			ID:     views.MenuID(page.Route),
			Label:  reg.Title(string(page.Route)),
			Icon:   page.Icon,
			Class:  s.MenuClass(page.Route),
			Active: s.MenuActive(page.Route),
		})
	}

	for _, page := range reg.Pages() {
		pv := pageView{
			Route:       page.Route,
			ContainerID: views.ContainerID(page.Route),
			Visible:     s.Visible(page.Route),
			Tabbed:      page.Tabbed(),
			Key:         string(page.Route),
			App:         d,
		}
		active := s.ActiveTab(page.Route)
		for _, tab := range page.Tabs {
			pv.Tabs = append(pv.Tabs, tabView{
				ID:           tab.ID,
				Label:        tab.Label,
				PanelID:      views.PanelID(tab.ID),
				Active:       tab.ID == active,
				HasPanel:     tab.HasPanel,
				PanelVisible: s.PanelVisible(page.Route, tab.ID),
				Key:          string(page.Route) + "/" + tab.ID,
				App:          d,
			})
		}
		d.Pages = append(d.Pages, pv)
	}
	return d
}
