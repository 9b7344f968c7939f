package server

import (
	"errors"
	"log"
	"os"
	"sync"

	"github.com/WaylonWalker/lspkit-go/pkg/jsonrpc"
)

// ErrClientClosed is returned by push operations after Close.
var ErrClientClosed = errors.New("client handle is closed")

// MessageType is the severity of a window/showMessage or
// window/logMessage notification.
type MessageType int

const (
	MessageError   MessageType = 1
	MessageWarning MessageType = 2
	MessageInfo    MessageType = 3
	MessageLog     MessageType = 4
)

type messageParams struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// Client is the server-to-client push handle. Handlers use it to send
// notifications outside the request/response cycle; messages travel
// the interleave stream and are merged into the writer alongside
// responses.
type Client struct {
	logger *log.Logger
	out    chan jsonrpc.Outgoing

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a push handle with the given send buffer. Wire its
// Messages channel into the server:
//
//	client := server.NewClient(logger, 8)
//	srv := server.NewServer(stdin, stdout).Interleave(client.Messages())
func NewClient(logger *log.Logger, buffer int) *Client {
	if logger == nil {
		logger = log.New(os.Stderr, "[lspkit] ", log.LstdFlags)
	}
	if buffer < 0 {
		buffer = 0
	}
	return &Client{
		logger: logger,
		out:    make(chan jsonrpc.Outgoing, buffer),
		done:   make(chan struct{}),
	}
}

// Messages is the interleave stream fed by this handle.
func (c *Client) Messages() <-chan jsonrpc.Outgoing {
	return c.out
}

// Notify sends a notification to the client. It blocks while the
// stream is full, so slow transports apply backpressure to pushers.
func (c *Client) Notify(method string, params any) error {
	msg, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClientClosed
	case c.out <- msg:
		return nil
	}
}

// LogMessage sends a window/logMessage notification.
func (c *Client) LogMessage(typ MessageType, message string) error {
	return c.Notify("window/logMessage", messageParams{Type: typ, Message: message})
}

// ShowMessage sends a window/showMessage notification.
func (c *Client) ShowMessage(typ MessageType, message string) error {
	return c.Notify("window/showMessage", messageParams{Type: typ, Message: message})
}

// Close releases pushers blocked on a writer that is gone. It does not
// close the Messages channel; the transport stops consuming it on its
// own when serving ends.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
