package remote

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

// ErrClosed is returned by calls on a Client after Close.
var ErrClosed = stderrors.New("remote: client closed")

// Client is a Store backed by a relay Server over a websocket.
type Client struct {
	url  string
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex // protects the fields below
	pending map[string]chan Message
	subs    map[string]*mailbox
	err     error

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the relay at url (ws:// or wss://).
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("remote: dial %s: %w", url, err)
	}
	conn.SetReadLimit(maxMessageSize)

	c := &Client{
		url:     url,
		conn:    conn,
		pending: make(map[string]chan Message),
		subs:    make(map[string]*mailbox),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	glog.V(1).Infof("remote: connected to %s", url)
	return c, nil
}

// Get returns the value stored at path on the relay.
func (c *Client) Get(ctx context.Context, path string) (Snapshot, error) {
	if err := ValidatePath(path); err != nil {
		return Snapshot{}, err
	}
	reply, err := c.request(ctx, Message{Type: TypeGet, ID: newID(), Path: path})
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Path: path, Value: reply.Value}, nil
}

// Set writes value at path and waits for the relay to accept it.
func (c *Client) Set(ctx context.Context, path string, value json.RawMessage) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	if isNull(value) {
		value = nil
	}
	_, err := c.request(ctx, Message{Type: TypeSet, ID: newID(), Path: path, Value: value})
	return err
}

// Subscribe registers fn for path and waits for the relay to confirm.
func (c *Client) Subscribe(ctx context.Context, path string, fn func(Snapshot)) (Unsubscribe, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, stderrors.New("remote: subscriber callback is required")
	}

	id := newID()
	m := newMailbox(fn)

	c.mu.Lock()
	if c.isClosed() {
		c.mu.Unlock()
		m.close()
		return nil, c.closedErr()
	}
	c.subs[id] = m
	c.mu.Unlock()

	if _, err := c.request(ctx, Message{Type: TypeSubscribe, ID: id, Path: path}); err != nil {
		c.dropSub(id)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if !c.dropSub(id) {
				return
			}
			if err := c.write(Message{Type: TypeUnsubscribe, ID: id, Path: path}); err != nil {
				glog.V(1).Infof("remote: unsubscribe %s: %v", path, err)
			}
		})
	}, nil
}

// Close ends the connection. Pending calls fail with ErrClosed.
func (c *Client) Close() error {
	if !c.isClosed() {
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
	}
	c.shutdown(ErrClosed)
	return nil
}

// Done is closed once the connection has ended.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) readLoop() {
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.shutdown(err)
			return
		}
		glog.V(2).Infof("remote: <- %s %s %s", msg.Type, msg.ID, msg.Path)

		switch msg.Type {
		case TypeValue:
			c.mu.Lock()
			m := c.subs[msg.ID]
			c.mu.Unlock()
			if m != nil {
				m.push(Snapshot{Path: msg.Path, Value: msg.Value})
			}
		case TypeAck:
			c.mu.Lock()
			ch := c.pending[msg.ID]
			delete(c.pending, msg.ID)
			c.mu.Unlock()
			if ch != nil {
				ch <- msg
			}
		default:
			glog.Warningf("remote: unknown message type %q from %s", msg.Type, c.url)
		}
	}
}

func (c *Client) request(ctx context.Context, msg Message) (Message, error) {
	ch := make(chan Message, 1)

	c.mu.Lock()
	if c.isClosed() {
		c.mu.Unlock()
		return Message{}, c.closedErr()
	}
	c.pending[msg.ID] = ch
	c.mu.Unlock()

	if err := c.write(msg); err != nil {
		c.forget(msg.ID)
		return Message{}, err
	}

	select {
	case reply := <-ch:
		if reply.Error != nil {
			return reply, reply.Error.toError()
		}
		return reply, nil
	case <-ctx.Done():
		c.forget(msg.ID)
		return Message{}, ctx.Err()
	case <-c.done:
		return Message{}, c.closedErr()
	}
}

func (c *Client) write(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("remote: write %s: %w", msg.Type, err)
	}
	return nil
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// dropSub removes and stops subscription id. Reports whether it was live.
func (c *Client) dropSub(id string) bool {
	c.mu.Lock()
	m, ok := c.subs[id]
	delete(c.subs, id)
	c.mu.Unlock()
	if ok {
		m.close()
	}
	return ok
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		subs := c.subs
		c.subs = make(map[string]*mailbox)
		c.pending = make(map[string]chan Message)
		c.mu.Unlock()

		close(c.done)
		c.conn.Close()
		for _, m := range subs {
			m.close()
		}
		if err != ErrClosed {
			glog.V(1).Infof("remote: connection to %s ended: %v", c.url, err)
		}
	})
}

// isClosed must be called with c.mu held or where a stale answer is harmless.
func (c *Client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) closedErr() error {
	c.mu.Lock()
	err := c.err
	c.mu.Unlock()
	if err == nil || err == ErrClosed {
		return ErrClosed
	}
	return fmt.Errorf("remote: connection lost: %w", err)
}
