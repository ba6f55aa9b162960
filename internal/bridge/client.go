package bridge

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kalambet/dscopilot/internal/protocol"
)

// Client is a bridge peer connected from outside the server process.
type Client struct {
	conn *websocket.Conn
}

// Dial connects to the bridge at baseURL (http or https) with the given role.
func Dial(ctx context.Context, baseURL, role, token string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/api/plugin/ws")
	if err != nil {
		return nil, fmt.Errorf("parsing bridge url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("role", role)
	u.RawQuery = q.Encode()

	var header map[string][]string
	if token != "" {
		header = map[string][]string{"Authorization": {"Bearer " + token}}
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dialing bridge: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Send writes one message.
func (c *Client) Send(msg protocol.PluginMessage) error {
	return c.conn.WriteJSON(msg)
}

// Receive blocks until the next message arrives.
func (c *Client) Receive() (protocol.PluginMessage, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return protocol.PluginMessage{}, err
	}
	return protocol.DecodePluginMessage(data)
}

// Await reads messages until one of the given types carrying id arrives.
func (c *Client) Await(id string, types ...string) (protocol.PluginMessage, error) {
	for {
		msg, err := c.Receive()
		if err != nil {
			return protocol.PluginMessage{}, err
		}
		if msg.ID != id {
			continue
		}
		for _, t := range types {
			if msg.Type == t {
				return msg, nil
			}
		}
	}
}

// SetDeadline bounds every following Receive and Await. A zero t clears it.
func (c *Client) SetDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *Client) Close() error {
	return c.conn.Close()
}
