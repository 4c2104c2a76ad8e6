package remote

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/hpungsan/pied/internal/errors"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBufferSize = 64
)

// Server exposes a Tree to websocket clients.
type Server struct {
	tree     *Tree
	upgrader websocket.Upgrader
}

// NewServer returns a hub serving tree. Browsers may connect from the relay's
// own host or from one of allowedOrigins.
func NewServer(tree *Tree, allowedOrigins []string) *Server {
	return &Server{
		tree: tree,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// originChecker accepts requests without an Origin header, same-host
// origins, and origins in allowed (scheme://host[:port], case-insensitive).
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[normalizeOrigin(o)] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if set[normalizeOrigin(origin)] {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		glog.V(1).Infof("remote: rejecting websocket from origin %q", origin)
		return false
	}
}

func normalizeOrigin(o string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(o), "/"))
}

// stream is one client connection.
type stream struct {
	id   string
	tree *Tree
	conn *websocket.Conn
	send chan Message
	done chan struct{}

	mu   sync.Mutex // protects subs
	subs map[string]Unsubscribe
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Warningf("remote: upgrade failed: %v", err)
		return
	}

	st := &stream{
		id:   newID(),
		tree: s.tree,
		conn: conn,
		send: make(chan Message, sendBufferSize),
		done: make(chan struct{}),
		subs: make(map[string]Unsubscribe),
	}
	glog.V(1).Infof("remote: conn %s open from %s", st.id, r.RemoteAddr)

	go st.writeLoop()
	st.readLoop(r.Context())

	close(st.done)
	st.unsubscribeAll()
	conn.Close()
	glog.V(1).Infof("remote: conn %s closed", st.id)
}

func (st *stream) readLoop(ctx context.Context) {
	st.conn.SetReadLimit(maxMessageSize)
	st.conn.SetReadDeadline(time.Now().Add(pongWait))
	st.conn.SetPongHandler(func(string) error {
		return st.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := st.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				glog.Warningf("remote: conn %s read: %v", st.id, err)
			}
			return
		}
		glog.V(2).Infof("remote: conn %s <- %s %s %s", st.id, msg.Type, msg.ID, msg.Path)
		st.handle(ctx, msg)
	}
}

func (st *stream) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-st.send:
			st.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := st.conn.WriteJSON(msg); err != nil {
				glog.Warningf("remote: conn %s write: %v", st.id, err)
				st.conn.Close()
				return
			}
		case <-ticker.C:
			st.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := st.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				st.conn.Close()
				return
			}
		case <-st.done:
			return
		}
	}
}

// enqueue hands msg to the write loop unless the connection is gone.
func (st *stream) enqueue(msg Message) {
	select {
	case st.send <- msg:
	case <-st.done:
	}
}

func (st *stream) handle(ctx context.Context, msg Message) {
	switch msg.Type {
	case TypeSet:
		err := st.tree.Set(ctx, msg.Path, msg.Value)
		st.enqueue(Message{Type: TypeAck, ID: msg.ID, Path: msg.Path, Error: toWireError(err)})

	case TypeGet:
		snap, err := st.tree.Get(ctx, msg.Path)
		st.enqueue(Message{Type: TypeAck, ID: msg.ID, Path: msg.Path, Value: snap.Value, Error: toWireError(err)})

	case TypeSubscribe:
		st.enqueue(Message{Type: TypeAck, ID: msg.ID, Path: msg.Path, Error: toWireError(st.subscribe(ctx, msg.ID, msg.Path))})

	case TypeUnsubscribe:
		st.mu.Lock()
		unsub := st.subs[msg.ID]
		delete(st.subs, msg.ID)
		st.mu.Unlock()
		if unsub != nil {
			unsub()
		}
		st.enqueue(Message{Type: TypeAck, ID: msg.ID, Path: msg.Path})

	default:
		glog.Warningf("remote: conn %s sent unknown message type %q", st.id, msg.Type)
		st.enqueue(Message{Type: TypeAck, ID: msg.ID, Error: &WireError{
			Code:    string(errors.ErrInvalidRequest),
			Message: "unknown message type: " + msg.Type,
		}})
	}
}

func (st *stream) subscribe(ctx context.Context, subID, path string) error {
	if subID == "" {
		subID = newID()
	}
	unsub, err := st.tree.Subscribe(ctx, path, func(snap Snapshot) {
		st.enqueue(Message{Type: TypeValue, ID: subID, Path: snap.Path, Value: snap.Value})
	})
	if err != nil {
		return err
	}

	st.mu.Lock()
	prev := st.subs[subID]
	st.subs[subID] = unsub
	st.mu.Unlock()
	if prev != nil {
		prev()
	}
	return nil
}

func (st *stream) unsubscribeAll() {
	st.mu.Lock()
	subs := st.subs
	st.subs = make(map[string]Unsubscribe)
	st.mu.Unlock()
	for _, unsub := range subs {
		unsub()
	}
}
