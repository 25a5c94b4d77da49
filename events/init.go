package events

import "github.com/r3labs/sse/v2"

// StreamPanel carries queue updates and now-playing changes to any
// dashboard clients that are listening.
const StreamPanel = "panel"

var Server *sse.Server

func Init() {
	server := sse.New()
	server.AutoReplay = false
	server.CreateStream(StreamPanel)
	Server = server
}

func Publish(data []byte) {
	if Server == nil {
		return
	}
	Server.Publish(StreamPanel, &sse.Event{Data: data})
}
