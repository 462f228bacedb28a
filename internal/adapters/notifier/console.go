// Package notifier renders operator notices for accepted capture events.
package notifier

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/okian/geocapture/internal/domain/aggregate"
	"github.com/okian/geocapture/internal/domain/model"
)

// Notifier delivers one notice.
type Notifier interface {
	Notify(ctx context.Context, ev model.CaptureEvent) error
}

// ConsoleNotifier prints a banner per event to a terminal.
type ConsoleNotifier struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleNotifier writes to w, or stdout when w is nil.
func NewConsoleNotifier(w io.Writer) *ConsoleNotifier {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleNotifier{out: w}
}

// Notify prints the rendered event.
func (n *ConsoleNotifier) Notify(_ context.Context, ev model.CaptureEvent) error { //nolint:gocritic // hugeParam: matches the queue payload
	entries := aggregate.Listing([]model.CaptureEvent{ev}, aggregate.ListOptions{})
	if len(entries) == 0 {
		return fmt.Errorf("nothing to render for event %s", ev.ID)
	}
	e := entries[0]

	var b strings.Builder
	fmt.Fprintf(&b, "--- %s ---\n", strings.ToUpper(e.Title))
	fmt.Fprintf(&b, "Received: %s\n", e.ReceivedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Origin: %s\n", e.OriginAddress)
	if e.Coordinates != nil {
		fmt.Fprintf(&b, "Coordinates: %v, %v\n", e.Coordinates.Latitude, e.Coordinates.Longitude)
	}
	for _, d := range e.Details {
		fmt.Fprintf(&b, "%s: %s\n", d.Label, d.Value)
	}
	fmt.Fprintf(&b, "Device: %s\n", e.Device)
	if e.MapURL != "" {
		fmt.Fprintf(&b, "Map: %s\n", e.MapURL)
	}
	b.WriteString(strings.Repeat("-", 24) + "\n")

	n.mu.Lock()
	defer n.mu.Unlock()
	_, err := io.WriteString(n.out, b.String())
	return err
}
