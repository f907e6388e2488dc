package sendspin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/massdroid-cli/massd/session"
	. "github.com/smartystreets/goconvey/convey"
)

type observer struct {
	mu       sync.Mutex
	opened   int
	closed   []int
	messages []string
}

func (o *observer) SocketOpened(string, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened++
}

func (o *observer) SocketMessage(_ string, payload []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, string(payload))
}

func (o *observer) SocketClosed(_ string, code int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = append(o.closed, code)
}

func (o *observer) snapshot() (int, []int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opened, append([]int(nil), o.closed...), len(o.messages)
}

type server struct {
	*httptest.Server
	mu        sync.Mutex
	hellos    []map[string]any
	closeWith int
}

func newServer() *server {
	s := &server{}
	upgrader := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var hello map[string]any
		if err := conn.ReadJSON(&hello); err != nil {
			return
		}
		s.mu.Lock()
		s.hellos = append(s.hellos, hello)
		code := s.closeWith
		s.mu.Unlock()

		_ = conn.WriteJSON(map[string]any{"type": session.TypeServerHello, "payload": map[string]any{"server_id": "ma"}})
		_ = conn.WriteJSON(map[string]any{"type": session.TypeStreamStart, "payload": map[string]any{}})

		if code != 0 {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, "bye"))
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	return s
}

func (s *server) url() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/sendspin"
}

func (s *server) helloCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hellos)
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestClient(t *testing.T) {
	Convey("Given a stream transport server", t, func() {
		srv := newServer()
		defer srv.Close()

		obs := &observer{}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		Convey("The client announces itself and forwards frames", func() {
			client := New(Config{URL: srv.url(), ClientID: "kitchen", MaxReconnects: 3}, obs)
			go client.Run(ctx)

			So(eventually(func() bool { _, _, n := obs.snapshot(); return n >= 2 }), ShouldBeTrue)
			So(client.Connected(), ShouldBeTrue)

			srv.mu.Lock()
			hello := srv.hellos[0]
			srv.mu.Unlock()
			So(hello["type"], ShouldEqual, "client/hello")
			payload := hello["payload"].(map[string]any)
			So(payload["client_id"], ShouldEqual, "kitchen")
			So(payload["version"], ShouldEqual, 1)

			Convey("DropSockets closes the socket and the client reconnects", func() {
				client.DropSockets()
				So(eventually(func() bool { opened, closed, _ := obs.snapshot(); return opened >= 2 && len(closed) >= 1 }), ShouldBeTrue)
				_, closed, _ := obs.snapshot()
				So(closed[0], ShouldEqual, websocket.CloseAbnormalClosure)
			})
		})

		Convey("A server close code is reported", func() {
			srv.mu.Lock()
			srv.closeWith = websocket.CloseGoingAway
			srv.mu.Unlock()

			client := New(Config{URL: srv.url(), MaxReconnects: 1}, obs)
			go client.Run(ctx)

			So(eventually(func() bool { _, closed, _ := obs.snapshot(); return len(closed) >= 1 }), ShouldBeTrue)
			_, closed, _ := obs.snapshot()
			So(closed[0], ShouldEqual, websocket.CloseGoingAway)
		})

		Convey("An unreachable server is not reported as a socket", func() {
			client := New(Config{URL: "ws://127.0.0.1:1/sendspin", MaxReconnects: 1}, obs)
			done := make(chan struct{})
			go func() {
				_ = client.Run(ctx)
				close(done)
			}()

			time.Sleep(100 * time.Millisecond)
			opened, _, _ := obs.snapshot()
			So(opened, ShouldEqual, 0)

			cancel()
			So(eventually(func() bool {
				select {
				case <-done:
					return true
				default:
					return false
				}
			}), ShouldBeTrue)
		})
	})
}

func TestHello(t *testing.T) {
	Convey("The hello message advertises the player role", t, func() {
		client := New(Config{URL: "ws://example"}, &observer{})
		raw, err := json.Marshal(client.hello())
		So(err, ShouldBeNil)
		So(string(raw), ShouldContainSubstring, `"player@v1"`)
		So(string(raw), ShouldContainSubstring, `"codec":"pcm"`)
		So(client.cfg.ClientID, ShouldNotBeEmpty)
	})
}
