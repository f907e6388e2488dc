package player

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/massdroid-cli/massd/log"
)

// EventCallback receives mpv property changes and named events.
// For property changes name is the property; for other events it is the event name and data is nil.
type EventCallback func(name string, data any)

// observed properties, by observe id.
var observed = []string{"path", "time-pos", "duration", "pause", "core-idle"}

// EventListener keeps a persistent IPC connection and forwards mpv events.
type EventListener struct {
	socketPath string
	callback   EventCallback
	logger     *log.Entry

	mu     sync.Mutex
	conn   net.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

func NewEventListener(socketPath string, callback EventCallback) *EventListener {
	return &EventListener{
		socketPath: socketPath,
		callback:   callback,
		logger:     log.For("mpv").WithField("socket", socketPath),
	}
}

// Start subscribes to the observed properties on a dedicated connection and begins reading.
func (el *EventListener) Start(ctx context.Context) error {
	el.mu.Lock()
	defer el.mu.Unlock()

	if el.conn != nil {
		return nil
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", el.socketPath)
	if err != nil {
		return fmt.Errorf("event listener connect: %w", err)
	}

	// observe_property must be sent on the connection that should receive the notifications
	for i, name := range observed {
		payload, _ := json.Marshal(ipcCommand{Command: []any{"observe_property", i + 1, name}})
		if _, err := conn.Write(append(payload, '\n')); err != nil {
			conn.Close()
			return fmt.Errorf("observe %s: %w", name, err)
		}
	}

	ctx, el.cancel = context.WithCancel(ctx)
	el.conn = conn
	el.done = make(chan struct{})

	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go el.readLoop(conn, el.done)

	el.logger.Infof("event listener started (observing: %v)", observed)
	return nil
}

// Stop terminates the event listener and waits for the read loop.
func (el *EventListener) Stop() {
	el.mu.Lock()
	cancel, done := el.cancel, el.done
	el.cancel, el.done, el.conn = nil, nil, nil
	el.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Done is closed when the read loop exits, either on Stop or because mpv went away.
func (el *EventListener) Done() <-chan struct{} {
	el.mu.Lock()
	defer el.mu.Unlock()
	return el.done
}

func (el *EventListener) readLoop(conn net.Conn, done chan struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		el.processEvent(scanner.Bytes())
	}
	if err := scanner.Err(); err != nil {
		el.logger.WithError(err).Warn("event listener read error")
	}
}

// processEvent parses and dispatches a single mpv event line.
func (el *EventListener) processEvent(line []byte) {
	var event struct {
		Event string `json:"event"`
		Name  string `json:"name"`
		Data  any    `json:"data"`
	}
	if err := json.Unmarshal(line, &event); err != nil || event.Event == "" || el.callback == nil {
		return
	}

	if event.Event == "property-change" {
		if event.Name != "" {
			el.callback(event.Name, event.Data)
		}
		return
	}
	el.callback(event.Event, nil)
}
