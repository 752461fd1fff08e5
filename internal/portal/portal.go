// Package portal implements the partner portal as a live component. The
// browser reports hash changes, clicks and input; the component keeps the
// view state and renders the whole page from it.
package portal

import (
	"context"
	"fmt"
	"strings"

	"github.com/dise/partnerportal/internal/provisioning"
	"github.com/dise/partnerportal/internal/toast"
	"github.com/dise/partnerportal/internal/unlock"
	"github.com/dise/partnerportal/internal/views"
	"github.com/dise/partnerportal/internal/viewstate"
	"github.com/dise/partnerportal/pkg/core"
	"github.com/dise/partnerportal/pkg/js"
	"github.com/dise/partnerportal/pkg/logging"
)

// NoteKey is the browser storage key of the home page note.
const NoteKey = "partnerNote"

// Toast texts.
const (
	MsgCopied         = "Copied to clipboard"
	MsgCopyFailed     = "Copy failed. Try manually selecting the script text."
	MsgDownloaded     = "Script downloaded"
	MsgUnlockDisabled = "unlock endpoint is not configured"
)

// Options configures a Portal.
type Options struct {
	Registry *views.Registry
	// Unlock posts unlock requests. Nil disables the tool's Run button.
	Unlock *unlock.Client
	// CurlBase is the base URL written into copied cURL lines.
	CurlBase string
	// Assets is the URL prefix of the client assets.
	Assets string
	// ScriptURL serves the provisioning script over plain HTTP.
	ScriptURL string
	Clock     toast.Clock
	Logger    logging.Logger
}

func (o *Options) defaults() {
	if o.Registry == nil {
		o.Registry = views.Default()
	}
	if o.Assets == "" {
		o.Assets = "/_live/"
	}
	if o.ScriptURL == "" {
		o.ScriptURL = "/tools/signageos-chromeos/script"
	}
}

// unlockDone carries the outcome of a background unlock call back to the
// session loop.
type unlockDone struct {
	seq     int
	outcome unlock.Outcome
}

// Portal is the live component behind "/".
type Portal struct {
	core.BaseComponent

	opts   Options
	state  *viewstate.State
	toasts *toast.Notifier
	log    logging.Logger

	note      string
	form      unlock.Request
	output    string
	running   bool
	unlockSeq int

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a portal component.
func New(opts Options) *Portal {
	opts.defaults()
	return &Portal{opts: opts}
}

// Factory returns a constructor for the router.
func Factory(opts Options) func() core.Component {
	return func() core.Component { return New(opts) }
}

// Name implements core.Component.
func (p *Portal) Name() string { return "portal" }

// Mount builds the view state and navigates to the hash sent at join.
func (p *Portal) Mount(ctx context.Context, params core.Params, session core.Session) error {
	p.ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))

	p.log = p.opts.Logger
	if p.log == nil {
		p.log = logging.L(ctx)
	}
	if id := session.GetString("request_id"); id != "" {
		p.log = p.log.With(logging.String("request_id", id))
	}
	p.state = viewstate.New(p.opts.Registry)
	p.toasts = toast.NewNotifier(p.opts.Clock, p.post)
	p.note = params.Get("note")

	return p.navigate(params.Get("hash"))
}

// Terminate stops pending timers and abandons a running unlock call.
func (p *Portal) Terminate(ctx context.Context, reason core.TerminateReason) error {
	if p.toasts != nil {
		p.toasts.Stop()
	}
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}

// HandleEvent applies one browser event to the view state.
func (p *Portal) HandleEvent(ctx context.Context, event string, payload map[string]any) error {
	switch event {
	case "navigate":
		return p.navigate(str(payload, "hash"))

	case "switch_tab":
		p.state.SwitchTab(views.Route(str(payload, "page")), str(payload, "tab"))

	case "toggle_menu":
		if v, ok := payload["open"]; ok {
			open := truthy(v)
			p.state.ToggleSidebar(&open)
		} else {
			p.state.ToggleSidebar(nil)
		}

	case "copy_script":
		return p.push(js.Copy(provisioning.Script))

	case "download_script":
		if err := p.push(js.Download(provisioning.Filename, provisioning.MIME, provisioning.Script)); err != nil {
			return err
		}
		p.toasts.Success(MsgDownloaded)

	case "clipboard_result":
		if truthy(payload["ok"]) {
			p.toasts.Success(MsgCopied)
		} else {
			p.log.Warn("clipboard copy failed", logging.String("error", str(payload, "error")))
			p.toasts.Error(MsgCopyFailed)
		}

	case "note_input":
		p.note = str(payload, "value")
		return p.push(js.Store(NoteKey, p.note))

	case "unlock_input":
		p.setField(str(payload, "field"), str(payload, "value"))

	case "unlock_run":
		p.runUnlock(payload)

	case "unlock_copy":
		p.copyCurl(payload)

	case "dismiss_toast":
		p.toasts.Dismiss(str(payload, "id"))

	default:
		return fmt.Errorf("unknown event %q", event)
	}
	return nil
}

// HandleInfo applies toast timer messages and unlock outcomes.
func (p *Portal) HandleInfo(ctx context.Context, msg any) error {
	if p.toasts.Handle(msg) {
		return nil
	}
	switch m := msg.(type) {
	case unlockDone:
		if m.seq != p.unlockSeq {
			return nil
		}
		p.running = false
		p.output = m.outcome.Text()
		if m.outcome.Err != nil {
			p.log.Warn("unlock call failed", logging.Err(m.outcome.Err))
		}
	}
	return nil
}

func (p *Portal) navigate(hash string) error {
	res, err := p.state.Navigate(hash)
	if err != nil {
		return err
	}
	if res.Redirected {
		return p.push(js.SetHash(p.state.Hash, true))
	}
	return nil
}

func (p *Portal) setField(field, value string) {
	switch field {
	case "deviceIp":
		p.form.DeviceIP = value
	case "policyId":
		p.form.PolicyID = value
	case "orgId":
		p.form.OrgID = value
	case "supportUser":
		p.form.SupportUser = value
	}
}

// collect merges form values carried by an event into the stored form.
func (p *Portal) collect(payload map[string]any) unlock.Request {
	for _, field := range []string{"deviceIp", "policyId", "orgId", "supportUser"} {
		if v, ok := payload[field].(string); ok {
			p.setField(field, v)
		}
	}
	return p.form.Trim()
}

func (p *Portal) runUnlock(payload map[string]any) {
	req := p.collect(payload)
	if err := req.Validate(); err != nil {
		p.output = unlock.MsgMissingFields
		return
	}

	p.unlockSeq++
	p.output = unlock.MsgRunning

	client := p.opts.Unlock
	if client == nil {
		p.output = unlock.Outcome{Err: fmt.Errorf("%s", MsgUnlockDisabled)}.Text()
		return
	}

	p.running = true
	seq, ctx := p.unlockSeq, p.ctx
	go func() {
		outcome := client.Run(ctx, req)
		if err := p.post(unlockDone{seq: seq, outcome: outcome}); err != nil {
			p.log.Debug("unlock outcome dropped", logging.Err(err))
		}
	}()
}

func (p *Portal) copyCurl(payload map[string]any) {
	req := p.collect(payload)
	if err := req.Validate(); err != nil {
		p.toasts.Error(unlock.MsgCopyMissing)
		return
	}
	if err := p.push(js.Copy(unlock.Curl(p.opts.CurlBase, req))); err != nil {
		p.log.Warn("copy command not delivered", logging.Err(err))
	}
}

// post hands msg to the session loop. It fails outside a live session.
func (p *Portal) post(msg any) error {
	s := p.Socket()
	if s == nil {
		return core.ErrSocketClosed
	}
	return s.Post(msg)
}

// push sends client commands. Without a socket (plain HTTP render) there
// is no client to receive them.
func (p *Portal) push(cmds ...js.Command) error {
	s := p.Socket()
	if s == nil {
		return nil
	}
	return s.Push(js.PushEvent, js.Commands(cmds).Payload())
}

func str(payload map[string]any, key string) string {
	switch v := payload[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true") || b == "1"
	default:
		return false
	}
}
