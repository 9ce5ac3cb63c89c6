package services

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
)

// StreamEventsSSE streams real-time bounty events to the connected client
func (b *EventBroadcaster) StreamEventsSSE(c *fiber.Ctx) error {
	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	id, events := b.Subscribe()

	// Use fasthttp stream writer (THIS replaces Flush)
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer b.Unsubscribe(id)

		keepalive := time.NewTicker(15 * time.Second)
		defer keepalive.Stop()

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		w.Flush()

		for {
			select {
			case ev := <-events:
				payload, _ := json.Marshal(ev)

				fmt.Fprintf(w,
					"event: %s\ndata: %s\n\n",
					ev.Type, payload,
				)

				// This is the REAL "flush"
				if err := w.Flush(); err != nil {
					// Client disconnected
					return
				}

			case <-keepalive.C:
				w.WriteString(":\n\n")
				if err := w.Flush(); err != nil {
					return
				}

			case <-c.Context().Done():
				// Client closed connection
				return
			}
		}
	})

	return nil
}
