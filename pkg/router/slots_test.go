package router

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtractSlots(t *testing.T) {
	html := `<body>
<h1 data-slot="title">Home</h1>
<div data-slot="pages"><div class="page"><p>one</p></div><divider/></div>
<span data-slot="empty"></span>
</body>`

	text, markup := extractSlots(html)

	wantText := map[string]string{"title": "Home", "empty": ""}
	wantHTML := map[string]string{"pages": `<div class="page"><p>one</p></div><divider/>`}

	if diff := cmp.Diff(wantText, text); diff != "" {
		t.Errorf("text slots mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantHTML, markup); diff != "" {
		t.Errorf("html slots mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildDiff(t *testing.T) {
	s := NewSession("socket", NewMockComponent(), nil, nil, 0)

	rememberSlots(s, `<h1 data-slot="title">Home</h1><ul data-slot="toasts"></ul>`)

	d := buildDiff(s, `<h1 data-slot="title">Home</h1><ul data-slot="toasts"><li>Copied</li></ul>`)
	if len(d.Slots) != 0 {
		t.Errorf("expected unchanged title to be skipped, got %v", d.Slots)
	}
	if d.HTMLSlots["toasts"] != "<li>Copied</li>" {
		t.Errorf("expected toasts slot, got %v", d.HTMLSlots)
	}
	if d.Version != 1 {
		t.Errorf("expected version 1, got %d", d.Version)
	}

	d = buildDiff(s, `<h1 data-slot="title">Home</h1><ul data-slot="toasts"><li>Copied</li></ul>`)
	if !d.IsEmpty() {
		t.Errorf("expected empty diff for identical render, got %+v", d)
	}

	d = buildDiff(s, `<p>no slots</p>`)
	if d.Full != `<p>no slots</p>` {
		t.Errorf("expected full render fallback, got %+v", d)
	}
}
