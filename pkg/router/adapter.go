package router

import (
	"github.com/dise/partnerportal/pkg/core"
	"github.com/dise/partnerportal/pkg/protocol"
	"github.com/dise/partnerportal/pkg/transport"
)

// socketTransport lets a core.Socket push through a protocol transport.
type socketTransport struct {
	tr transport.Transport
}

func (a socketTransport) Send(msg core.Message) error {
	m := protocol.PushMessage(msg.Topic, msg.Event, msg.Payload).WithRef(msg.Ref)
	if msg.Event == "diff" {
		m.Type = protocol.MsgDiff
	}
	return a.tr.Send(m)
}

func (a socketTransport) Close() error {
	return a.tr.Close()
}

func (a socketTransport) IsConnected() bool {
	return a.tr.IsConnected()
}
