package dev

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ReloadPath is where the reload client connects.
const ReloadPath = "/__pagerender/reload"

const (
	reloadWriteTimeout = 5 * time.Second
	reloadSendBuffer   = 8
)

// ReloadMessageType is the kind of a message sent to browsers.
type ReloadMessageType string

const (
	ReloadTypeFull  ReloadMessageType = "reload"
	ReloadTypeCSS   ReloadMessageType = "css"
	ReloadTypeError ReloadMessageType = "error"
	ReloadTypeClear ReloadMessageType = "clear"
)

// ReloadMessage is a JSON message sent over the reload socket.
type ReloadMessage struct {
	Type  ReloadMessageType `json:"type"`
	Error string            `json:"error,omitempty"`
	File  string            `json:"file,omitempty"`
}

// ReloadServer pushes reload messages to connected browsers. It is also
// the engine's HTML transformer in dev mode, adding the client script to
// every page.
//
// While an error is shown, browsers connecting later receive it too, so a
// reload during a broken config still shows the overlay.
type ReloadServer struct {
	upgrader websocket.Upgrader

	mu        sync.Mutex
	clients   map[*reloadClient]struct{}
	lastError string
	closed    bool
}

// reloadClient is one browser tab. Messages are queued on send and written
// by a goroutine of its own; a tab that falls behind is dropped.
type reloadClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewReloadServer creates a reload server.
func NewReloadServer() *ReloadServer {
	return &ReloadServer{
		clients: make(map[*reloadClient]struct{}),
		upgrader: websocket.Upgrader{
			// Dev only: pages may be opened through any host name.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and keeps the socket until the browser
// goes away.
func (r *ReloadServer) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	c := &reloadClient{conn: conn, send: make(chan []byte, reloadSendBuffer)}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		conn.Close()
		return
	}
	r.clients[c] = struct{}{}
	if r.lastError != "" {
		c.send <- encode(ReloadMessage{Type: ReloadTypeError, Error: r.lastError})
	}
	r.mu.Unlock()

	go c.writeLoop()

	// The client never sends anything; reading detects the disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	r.mu.Lock()
	r.dropLocked(c)
	r.mu.Unlock()
}

func (c *reloadClient) writeLoop() {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(reloadWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			// Unblocks the read loop, which drops the client.
			c.conn.Close()
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(reloadWriteTimeout))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
}

// dropLocked unregisters c and ends its write loop. r.mu must be held.
func (r *ReloadServer) dropLocked(c *reloadClient) {
	if _, ok := r.clients[c]; !ok {
		return
	}
	delete(r.clients, c)
	close(c.send)
}

// NotifyReload asks every browser to reload the page.
func (r *ReloadServer) NotifyReload() {
	r.broadcast(ReloadMessage{Type: ReloadTypeFull})
}

// NotifyCSS asks every browser to refetch the stylesheets built from file.
func (r *ReloadServer) NotifyCSS(file string) {
	r.broadcast(ReloadMessage{Type: ReloadTypeCSS, File: file})
}

// NotifyError shows errMsg in an overlay until ClearError.
func (r *ReloadServer) NotifyError(errMsg string) {
	r.mu.Lock()
	r.lastError = errMsg
	r.mu.Unlock()
	r.broadcast(ReloadMessage{Type: ReloadTypeError, Error: errMsg})
}

// ClearError removes the overlay. It is a no-op without a pending error.
func (r *ReloadServer) ClearError() {
	r.mu.Lock()
	pending := r.lastError != ""
	r.lastError = ""
	r.mu.Unlock()
	if pending {
		r.broadcast(ReloadMessage{Type: ReloadTypeClear})
	}
}

func (r *ReloadServer) broadcast(msg ReloadMessage) {
	data := encode(msg)

	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.clients {
		select {
		case c.send <- data:
		default:
			r.dropLocked(c)
		}
	}
}

func encode(msg ReloadMessage) []byte {
	// ReloadMessage only holds strings.
	data, _ := json.Marshal(msg)
	return data
}

// TransformHTML adds DevClientScript before the closing body tag, or at
// the end of documents without one.
func (r *ReloadServer) TransformHTML(_ context.Context, _ string, html string) (string, error) {
	i := strings.LastIndex(strings.ToLower(html), "</body>")
	if i < 0 {
		return html + DevClientScript, nil
	}
	return html[:i] + DevClientScript + html[i:], nil
}

// ClientCount returns the number of connected browsers.
func (r *ReloadServer) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Close disconnects every browser and refuses new ones.
func (r *ReloadServer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for c := range r.clients {
		r.dropLocked(c)
	}
}

// DevClientScript connects to ReloadPath and applies the messages. After a
// lost connection comes back the page reloads, since the server restarted.
const DevClientScript = `<script>
(function () {
  var url = (location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '` + ReloadPath + `';
  var overlayId = 'pagerender-dev-overlay';
  var lost = false;

  function swapStylesheets(file) {
    var name = file ? file.split(/[\\/]/).pop() : '';
    var links = Array.prototype.slice.call(document.querySelectorAll('link[rel="stylesheet"]'));
    var matching = links.filter(function (l) { return name && l.href.indexOf(name) !== -1; });
    (matching.length ? matching : links).forEach(function (l) {
      var u = new URL(l.href);
      u.searchParams.set('t', Date.now());
      l.href = u.href;
    });
  }

  function showError(text) {
    hideError();
    var el = document.createElement('pre');
    el.id = overlayId;
    el.textContent = text;
    el.style.cssText = 'position:fixed;inset:0;margin:0;padding:24px;z-index:2147483647;' +
      'background:#1b1b1b;color:#ff6b6b;font:13px/1.5 monospace;white-space:pre-wrap;overflow:auto';
    document.body.appendChild(el);
  }

  function hideError() {
    var el = document.getElementById(overlayId);
    if (el) el.remove();
  }

  function connect() {
    var ws = new WebSocket(url);
    ws.onopen = function () {
      if (lost) location.reload();
    };
    ws.onmessage = function (e) {
      var msg = JSON.parse(e.data);
      if (msg.type === 'reload') location.reload();
      else if (msg.type === 'css') swapStylesheets(msg.file);
      else if (msg.type === 'error') showError(msg.error);
      else if (msg.type === 'clear') hideError();
    };
    ws.onclose = function () {
      lost = true;
      setTimeout(connect, 1000);
    };
  }

  connect();
})();
</script>
`
