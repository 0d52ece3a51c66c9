package gameserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	apperrors "github.com/ffa-tycoon/ffa-tycoon/internal/errors"
)

// Client sends one-shot commands to an OpenRCT2 remote-control endpoint.
// Each call dials a fresh connection: call volume is low and the game
// process may restart between calls.
type Client struct {
	address string
	timeout time.Duration
	dialer  net.Dialer
}

func NewClient(hostname string, port int, timeout time.Duration) *Client {
	return &Client{
		address: net.JoinHostPort(hostname, strconv.Itoa(port)),
		timeout: timeout,
	}
}

func (c *Client) Address() string {
	return c.address
}

// Execute writes command (a string as-is, anything else JSON-encoded) and
// decodes the single JSON value the server answers with. A connection closed
// without any data is a successful nil response. The whole exchange is
// bounded by the client timeout.
func (c *Client) Execute(ctx context.Context, command any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return nil, c.classify(ctx, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	// Unblock pending I/O if the caller cancels before the deadline.
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	payload, err := encodeCommand(command)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(payload); err != nil {
		return nil, c.classify(ctx, err)
	}

	var resp json.RawMessage
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, apperrors.Transport(c.address, fmt.Errorf("decode response: %w", err))
		}
		return nil, c.classify(ctx, err)
	}

	return resp, nil
}

func (c *Client) classify(ctx context.Context, err error) error {
	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.TransportTimeout(c.address).WithCause(err)
	}
	return apperrors.Transport(c.address, err)
}

func encodeCommand(command any) ([]byte, error) {
	switch cmd := command.(type) {
	case string:
		return []byte(cmd), nil
	case []byte:
		return cmd, nil
	default:
		data, err := json.Marshal(cmd)
		if err != nil {
			return nil, apperrors.InvalidInput("command", err.Error())
		}
		return data, nil
	}
}
