// Package js builds commands that the portal client executes in the
// browser: clipboard writes, downloads, hash changes and local storage.
// Commands are plain data; the client interprets each Op.
package js

import (
	"encoding/json"
	"strings"
)

// Command ops understood by the client.
const (
	OpCopy     = "copy"
	OpDownload = "download"
	OpSetHash  = "set_hash"
	OpStore    = "store"
	OpFocus    = "focus"
)

// PushEvent is the event name under which commands are pushed.
const PushEvent = "commands"

// Command is a single client-side command.
type Command struct {
	Op   string         `json:"op" msgpack:"op"`
	Args map[string]any `json:"args,omitempty" msgpack:"args,omitempty"`
}

// String returns a compact form for logs.
func (c Command) String() string {
	b, err := json.Marshal(c)
	if err != nil {
		return c.Op
	}
	return string(b)
}

// Commands holds a sequence of commands executed in order.
type Commands []Command

// Pipe appends commands to the sequence.
func (cs Commands) Pipe(more ...Command) Commands {
	return append(cs, more...)
}

// Ops lists the op of every command, for logs and tests.
func (cs Commands) Ops() string {
	ops := make([]string, len(cs))
	for i, c := range cs {
		ops[i] = c.Op
	}
	return strings.Join(ops, ",")
}

// Payload converts the sequence into a push payload.
func (cs Commands) Payload() map[string]any {
	list := make([]any, len(cs))
	for i, c := range cs {
		entry := map[string]any{"op": c.Op}
		if len(c.Args) > 0 {
			entry["args"] = c.Args
		}
		list[i] = entry
	}
	return map[string]any{"commands": list}
}

// Copy asks the client to place text on the clipboard. The client answers
// with a clipboard_result event carrying ok and error.
func Copy(text string) Command {
	return Command{Op: OpCopy, Args: map[string]any{"text": text}}
}

// Download asks the client to save content under filename.
func Download(filename, mime, content string) Command {
	if mime == "" {
		mime = "text/plain"
	}
	return Command{Op: OpDownload, Args: map[string]any{
		"filename": filename,
		"mime":     mime,
		"content":  content,
	}}
}

// SetHash rewrites the location hash. With replace the history entry is
// replaced and no hashchange is reported back.
func SetHash(hash string, replace bool) Command {
	return Command{Op: OpSetHash, Args: map[string]any{
		"hash":    hash,
		"replace": replace,
	}}
}

// Store writes a browser-local key/value pair.
func Store(key, value string) Command {
	return Command{Op: OpStore, Args: map[string]any{"key": key, "value": value}}
}

// Focus moves focus to the element matching selector.
func Focus(selector string) Command {
	return Command{Op: OpFocus, Args: map[string]any{"selector": selector}}
}
