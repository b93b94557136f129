// Package headless implements the headless runtime (C8): the event loop
// that binds a local PTY + VT parser + cell grid triple to a remote
// Automation Broker over the wire protocol described in the broker
// package, shuttling bytes between the child shell and the broker's
// named channels.
package headless

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Client is the external collaborator contract the Runtime drives: a thin
// wrapper around one authenticated connection to the broker. A mock
// implementation lets the Runtime's quantum logic be tested without a real
// socket.
type Client interface {
	CreateSession(name string) (sessionID, paneID string, err error)
	CreatePane(sessionID, name string) (paneID string, err error)
	Subscribe(channel string) error
	Publish(channel, payload string) (delivered int, err error)
	Rpop(channel string) (payload string, ok bool, err error)
	Close() error
}

// TCPClient is the production Client: a single TCP connection to the
// broker, authenticated once at Dial time.
type TCPClient struct {
	conn net.Conn
	r    *bufio.Reader

	writeTimeout time.Duration
	readTimeout  time.Duration
}

// DialOptions controls connection timeouts; a zero value leaves that
// deadline unset.
type DialOptions struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Dial connects to addr and authenticates with token, returning a ready
// Client or the first protocol-level error encountered.
func Dial(addr, token string, opts DialOptions) (*TCPClient, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("headless: dial %s: %w", addr, err)
	}
	c := &TCPClient{
		conn:         conn,
		r:            bufio.NewReader(conn),
		readTimeout:  opts.ReadTimeout,
		writeTimeout: opts.WriteTimeout,
	}
	if err := c.authenticate(token); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *TCPClient) authenticate(token string) error {
	resp, err := c.roundTrip("AUTH " + token)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(resp, "+OK") {
		return fmt.Errorf("headless: authentication failed: %s", resp)
	}
	return nil
}

// roundTrip writes one command line and reads back exactly one response
// line. It is not safe to call concurrently; the Runtime drives one Client
// from its single-threaded event loop, matching the broker's one-command-
// at-a-time ordering contract per connection.
func (c *TCPClient) roundTrip(cmd string) (string, error) {
	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if _, err := c.conn.Write([]byte(cmd + "\n")); err != nil {
		return "", fmt.Errorf("headless: write command: %w", err)
	}
	if c.readTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("headless: read response: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		// Asynchronous deliveries for a subscribed channel share this
		// socket and are not responses; skip them, along with the blank
		// line a payload's own trailing newline leaves behind.
		if line == "" || strings.HasPrefix(line, "+MESSAGE ") {
			continue
		}
		return line, nil
	}
}

// CreateSession issues CREATE SESSION [name], parsing the session-id:/
// pane-id: fields out of the success response.
func (c *TCPClient) CreateSession(name string) (sessionID, paneID string, err error) {
	cmd := "CREATE SESSION"
	if name != "" {
		cmd += " " + name
	}
	resp, err := c.roundTrip(cmd)
	if err != nil {
		return "", "", err
	}
	if !strings.HasPrefix(resp, "+OK") {
		return "", "", fmt.Errorf("headless: create session: %s", resp)
	}
	fields := strings.Fields(resp)
	for _, f := range fields {
		if v, ok := strings.CutPrefix(f, "session-id:"); ok {
			sessionID = v
		}
		if v, ok := strings.CutPrefix(f, "pane-id:"); ok {
			paneID = v
		}
	}
	if sessionID == "" || paneID == "" {
		return "", "", fmt.Errorf("headless: malformed create session response: %s", resp)
	}
	return sessionID, paneID, nil
}

// CreatePane issues CREATE PANE <session_id> [name].
func (c *TCPClient) CreatePane(sessionID, name string) (string, error) {
	cmd := "CREATE PANE " + sessionID
	if name != "" {
		cmd += " " + name
	}
	resp, err := c.roundTrip(cmd)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(resp, "+OK") {
		return "", fmt.Errorf("headless: create pane: %s", resp)
	}
	for _, f := range strings.Fields(resp) {
		if v, ok := strings.CutPrefix(f, "pane-id:"); ok {
			return v, nil
		}
	}
	return "", fmt.Errorf("headless: malformed create pane response: %s", resp)
}

// Subscribe issues SUBSCRIBE <channel>.
func (c *TCPClient) Subscribe(channel string) error {
	resp, err := c.roundTrip("SUBSCRIBE " + channel)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(resp, "+OK") {
		return fmt.Errorf("headless: subscribe %s: %s", channel, resp)
	}
	return nil
}

// Publish issues PUBLISH <channel> <payload>, returning the delivered
// subscriber count.
func (c *TCPClient) Publish(channel, payload string) (int, error) {
	resp, err := c.roundTrip("PUBLISH " + channel + " " + payload)
	if err != nil {
		return 0, err
	}
	if !strings.HasPrefix(resp, "+OK") {
		return 0, fmt.Errorf("headless: publish %s: %s", channel, resp)
	}
	var delivered int
	fmt.Sscanf(resp, "+OK %d", &delivered)
	return delivered, nil
}

// Rpop issues RPOP <channel>, unquoting the payload on success. Returns
// ok=false (no error) for an empty channel, matching the broker's -ERR
// empty response, which is not itself an error condition for the runtime.
func (c *TCPClient) Rpop(channel string) (string, bool, error) {
	resp, err := c.roundTrip("RPOP " + channel)
	if err != nil {
		return "", false, err
	}
	if strings.HasPrefix(resp, "-ERR") {
		return "", false, nil
	}
	payload, err := strconv.Unquote(resp)
	if err != nil {
		return "", false, fmt.Errorf("headless: malformed rpop response: %s", resp)
	}
	return payload, true, nil
}

// Close closes the underlying connection.
func (c *TCPClient) Close() error {
	return c.conn.Close()
}
