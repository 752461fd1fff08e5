package router

import (
	"hash/fnv"
	"strings"

	"github.com/dise/partnerportal/pkg/core"
)

// extractSlots extracts data-slot content in a single pass.
// Slots whose content contains markup are returned as HTML slots.
func extractSlots(html string) (textSlots, htmlSlots map[string]string) {
	textSlots = make(map[string]string)
	htmlSlots = make(map[string]string)

	const marker = `data-slot="`
	markerLen := len(marker)
	htmlLen := len(html)
	pos := 0

	for pos < htmlLen {
		idx := strings.Index(html[pos:], marker)
		if idx == -1 {
			break
		}

		slotStart := pos + idx + markerLen

		slotEnd := strings.IndexByte(html[slotStart:], '"')
		if slotEnd == -1 {
			pos = slotStart
			continue
		}
		slotID := html[slotStart : slotStart+slotEnd]

		// Walk back to the opening <
		tagStart := pos + idx
		for tagStart > 0 && html[tagStart] != '<' {
			tagStart--
		}

		tagNameEnd := tagStart + 1
		for tagNameEnd < htmlLen && !isTagNameEnd(html[tagNameEnd]) {
			tagNameEnd++
		}
		tagName := html[tagStart+1 : tagNameEnd]

		closeAngle := strings.IndexByte(html[slotStart+slotEnd:], '>')
		if closeAngle == -1 {
			pos = slotStart + slotEnd
			continue
		}
		contentStart := slotStart + slotEnd + closeAngle + 1

		openTag := "<" + tagName
		closeTag := "</" + tagName
		depth := 1
		searchPos := contentStart
		contentEnd := -1

		for depth > 0 && searchPos < htmlLen {
			nextOpen := strings.Index(html[searchPos:], openTag)
			nextClose := strings.Index(html[searchPos:], closeTag)
			if nextClose == -1 {
				break
			}
			if nextOpen != -1 {
				nextOpen += searchPos
			} else {
				nextOpen = htmlLen
			}
			nextClose += searchPos

			if nextOpen < nextClose {
				// "<div" must be followed by a delimiter to count, so "<divider" does not
				after := nextOpen + len(openTag)
				if after < htmlLen && isTagNameEnd(html[after]) {
					depth++
				}
				searchPos = after
			} else {
				depth--
				if depth == 0 {
					contentEnd = nextClose
				}
				searchPos = nextClose + len(closeTag)
			}
		}

		if contentEnd == -1 {
			pos = contentStart
			continue
		}

		content := strings.TrimSpace(html[contentStart:contentEnd])
		if strings.ContainsAny(content, "<>") {
			htmlSlots[slotID] = content
		} else {
			textSlots[slotID] = content
		}

		// Continue inside the slot so nested slots are found too.
		pos = contentStart
	}

	return textSlots, htmlSlots
}

func isTagNameEnd(c byte) bool {
	return c == ' ' || c == '>' || c == '/' || c == '\t' || c == '\n' || c == '\r'
}

// hashSlotContent computes the FNV-64a hash of slot content.
func hashSlotContent(content string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(content))
	return h.Sum64()
}

// buildDiff compares a render against the session's previous slot hashes
// and returns only the slots that changed. A render without slots is sent
// whole.
func buildDiff(session *Session, html string) *core.DiffPayload {
	session.version++
	payload := &core.DiffPayload{
		Version:   session.version,
		Slots:     make(map[string]string),
		HTMLSlots: make(map[string]string),
	}

	textSlots, htmlSlots := extractSlots(html)
	prev := session.slotHashes
	next := make(map[string]uint64, len(textSlots)+len(htmlSlots))

	for id, content := range textSlots {
		h := hashSlotContent(content)
		next[id] = h
		if old, ok := prev[id]; !ok || old != h {
			payload.Slots[id] = content
		}
	}
	for id, content := range htmlSlots {
		h := hashSlotContent(content)
		next[id] = h
		if old, ok := prev[id]; !ok || old != h {
			payload.HTMLSlots[id] = content
		}
	}
	session.slotHashes = next

	if len(textSlots) == 0 && len(htmlSlots) == 0 {
		payload.Full = html
	}
	return payload
}

// rememberSlots records the slot hashes of a full render sent in a reply.
func rememberSlots(session *Session, html string) {
	textSlots, htmlSlots := extractSlots(html)
	hashes := make(map[string]uint64, len(textSlots)+len(htmlSlots))
	for id, content := range textSlots {
		hashes[id] = hashSlotContent(content)
	}
	for id, content := range htmlSlots {
		hashes[id] = hashSlotContent(content)
	}
	session.slotHashes = hashes
}
