package broker

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"
)

const testToken = "test-token-0123456789"

func startTestBroker(t *testing.T) *Broker {
	t.Helper()
	b, err := Start("127.0.0.1:0", testToken, Config{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(b.Stop)
	return b
}

// testConn wraps a raw TCP connection to the broker with line-oriented
// helpers matching the wire protocol's LF-terminated command/response
// shape.
type testConn struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dialTest(t *testing.T, b *Broker) *testConn {
	t.Helper()
	conn, err := net.Dial("tcp", b.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testConn{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *testConn) send(line string) {
	c.t.Helper()
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		c.t.Fatalf("write %q: %v", line, err)
	}
}

func (c *testConn) readLine() string {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.r.ReadString('\n')
	if err != nil {
		c.t.Fatalf("readLine: %v", err)
	}
	return strings.TrimRight(line, "\r\n")
}

func (c *testConn) auth(token string) string {
	c.send("AUTH " + token)
	return c.readLine()
}

func TestUnauthenticatedCommandRejected(t *testing.T) {
	b := startTestBroker(t)
	c := dialTest(t, b)

	c.send("LIST SESSIONS")
	if got := c.readLine(); got != "-ERR not authenticated" {
		t.Fatalf("got %q, want -ERR not authenticated", got)
	}
}

func TestAuthSuccess(t *testing.T) {
	b := startTestBroker(t)
	c := dialTest(t, b)

	if got := c.auth(testToken); got != "+OK" {
		t.Fatalf("AUTH with correct token = %q, want +OK", got)
	}
	c.send("LIST SESSIONS")
	if got := c.readLine(); got != "+OK " {
		t.Fatalf("LIST SESSIONS = %q, want \"+OK \"", got)
	}
}

func TestAuthFailureClosesAfterThirdAttempt(t *testing.T) {
	b := startTestBroker(t)
	c := dialTest(t, b)

	for i := 0; i < 3; i++ {
		got := c.auth("wrong-token")
		if got != "-ERR invalid token" {
			t.Fatalf("attempt %d: got %q, want -ERR invalid token", i+1, got)
		}
	}
	// The connection should now be closed; a further read should fail
	// rather than yield a fourth -ERR response.
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.r.ReadString('\n'); err == nil {
		t.Fatal("expected connection closed after 3rd failed AUTH, got another line")
	}
}

func TestCreateSessionAndPaneLifecycle(t *testing.T) {
	b := startTestBroker(t)
	c := dialTest(t, b)
	c.auth(testToken)

	c.send("CREATE SESSION s1 p1")
	resp := c.readLine()
	if resp != "+OK session-id:s1 pane-id:p1" {
		t.Fatalf("CREATE SESSION = %q", resp)
	}

	c.send("CREATE PANE s1 p2")
	if got := c.readLine(); got != "+OK pane-id:p2" {
		t.Fatalf("CREATE PANE = %q", got)
	}

	c.send("LIST PANES s1")
	if got := c.readLine(); got != "+OK p1 p2" {
		t.Fatalf("LIST PANES = %q", got)
	}

	c.send("CLOSE PANE s1 p2")
	if got := c.readLine(); got != "+OK" {
		t.Fatalf("CLOSE PANE = %q", got)
	}

	c.send("LIST PANES s1")
	if got := c.readLine(); got != "+OK p1" {
		t.Fatalf("LIST PANES after close = %q", got)
	}

	c.send("CLOSE SESSION s1")
	if got := c.readLine(); got != "+OK" {
		t.Fatalf("CLOSE SESSION = %q", got)
	}

	c.send("LIST PANES s1")
	if got := c.readLine(); got != "-ERR session not found" {
		t.Fatalf("LIST PANES after session close = %q", got)
	}
}

func TestCreateSessionDuplicateNameFailsExists(t *testing.T) {
	b := startTestBroker(t)
	c := dialTest(t, b)
	c.auth(testToken)

	c.send("CREATE SESSION dup")
	c.readLine()
	c.send("CREATE SESSION dup")
	if got := c.readLine(); got != "-ERR exists" {
		t.Fatalf("duplicate CREATE SESSION = %q, want -ERR exists", got)
	}
}

func TestPublishRpopLlen(t *testing.T) {
	b := startTestBroker(t)
	c := dialTest(t, b)
	c.auth(testToken)

	c.send("PUBLISH chan1 hello world")
	if got := c.readLine(); got != "+OK 0" {
		t.Fatalf("PUBLISH with no subscribers = %q, want +OK 0", got)
	}

	c.send("LLEN chan1")
	if got := c.readLine(); got != "+OK 1" {
		t.Fatalf("LLEN = %q, want +OK 1", got)
	}

	c.send("RPOP chan1")
	if got := c.readLine(); got != `"hello world"` {
		t.Fatalf("RPOP = %q, want quoted payload", got)
	}

	c.send("RPOP chan1")
	if got := c.readLine(); got != "-ERR empty" {
		t.Fatalf("RPOP on empty channel = %q, want -ERR empty", got)
	}
}

func TestInjectAppendsNewlineWhenAbsent(t *testing.T) {
	b := startTestBroker(t)
	c := dialTest(t, b)
	c.auth(testToken)

	c.send("INJECT chan1 ls -la")
	c.readLine()
	c.send("RPOP chan1")
	if got := c.readLine(); got != `"ls -la\n"` {
		t.Fatalf("RPOP after INJECT = %q, want trailing newline escaped", got)
	}
}

func TestSubscribeReceivesAsyncMessage(t *testing.T) {
	b := startTestBroker(t)
	sub := dialTest(t, b)
	sub.auth(testToken)

	sub.send("SUBSCRIBE chan1")
	if got := sub.readLine(); got != "+OK" {
		t.Fatalf("SUBSCRIBE = %q", got)
	}

	pub := dialTest(t, b)
	pub.auth(testToken)
	pub.send("PUBLISH chan1 hi there")
	if got := pub.readLine(); got != "+OK 1" {
		t.Fatalf("PUBLISH = %q, want +OK 1 delivered subscriber", got)
	}

	if got := sub.readLine(); got != "+MESSAGE chan1 hi there" {
		t.Fatalf("async delivery = %q, want +MESSAGE chan1 hi there", got)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := startTestBroker(t)
	sub := dialTest(t, b)
	sub.auth(testToken)
	sub.send("SUBSCRIBE chan1")
	sub.readLine()
	sub.send("UNSUBSCRIBE chan1")
	if got := sub.readLine(); got != "+OK" {
		t.Fatalf("UNSUBSCRIBE = %q", got)
	}

	pub := dialTest(t, b)
	pub.auth(testToken)
	pub.send("PUBLISH chan1 should-not-arrive")
	if got := pub.readLine(); got != "+OK 0" {
		t.Fatalf("PUBLISH after unsubscribe = %q, want +OK 0", got)
	}
}

func TestUnsubscribeUnknownIsNoOp(t *testing.T) {
	b := startTestBroker(t)
	c := dialTest(t, b)
	c.auth(testToken)
	c.send("UNSUBSCRIBE never-subscribed")
	if got := c.readLine(); got != "+OK" {
		t.Fatalf("UNSUBSCRIBE on unknown channel = %q, want +OK", got)
	}
}

func TestListChannelsDiagnostic(t *testing.T) {
	b := startTestBroker(t)
	c := dialTest(t, b)
	c.auth(testToken)

	c.send("PUBLISH a one")
	c.readLine()
	c.send("PUBLISH b two")
	c.readLine()

	c.send("LIST CHANNELS")
	got := c.readLine()
	if !strings.Contains(got, "a:1") || !strings.Contains(got, "b:1") {
		t.Fatalf("LIST CHANNELS = %q, want entries for a and b", got)
	}
}

func TestPing(t *testing.T) {
	b := startTestBroker(t)
	c := dialTest(t, b)
	c.auth(testToken)
	c.send("PING")
	if got := c.readLine(); got != "+OK" {
		t.Fatalf("PING = %q, want +OK", got)
	}
}

func TestUnknownCommandReturnsErr(t *testing.T) {
	b := startTestBroker(t)
	c := dialTest(t, b)
	c.auth(testToken)
	c.send("FROBNICATE")
	got := c.readLine()
	if !strings.HasPrefix(got, "-ERR") {
		t.Fatalf("unknown command = %q, want -ERR prefix", got)
	}
}

func TestFIFOUnderSaturation(t *testing.T) {
	b := startTestBroker(t)
	c := dialTest(t, b)
	c.auth(testToken)

	for i := 0; i < 12000; i++ {
		c.send("PUBLISH sat m" + itoa(i))
		c.readLine()
	}

	c.send("LLEN sat")
	if got := c.readLine(); got != "+OK 10000" {
		t.Fatalf("LLEN after saturation = %q, want +OK 10000", got)
	}

	c.send("RPOP sat")
	if got := c.readLine(); got != `"m2000"` {
		t.Fatalf("first surviving RPOP = %q, want \"m2000\"", got)
	}
}

func TestTooManySubscriptionsRejected(t *testing.T) {
	b := startTestBroker(t)
	c := dialTest(t, b)
	c.auth(testToken)

	for i := 0; i < maxSubscriptions; i++ {
		c.send("SUBSCRIBE chan-" + itoa(i))
		if got := c.readLine(); got != "+OK" {
			t.Fatalf("subscription %d = %q, want +OK", i, got)
		}
	}
	c.send("SUBSCRIBE one-too-many")
	got := c.readLine()
	if !strings.Contains(got, "too many subscriptions") {
		t.Fatalf("subscription %d = %q, want too many subscriptions error", maxSubscriptions, got)
	}
}

func TestStopClosesConnectionsAndSessions(t *testing.T) {
	b, err := Start("127.0.0.1:0", testToken, Config{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	c := dialTest(t, b)
	c.auth(testToken)
	c.send("CREATE SESSION s1")
	c.readLine()

	b.Stop()
	b.Stop() // idempotent

	if got := b.Sessions.ListSessions(); len(got) != 0 {
		t.Fatalf("sessions after Stop = %v, want none", got)
	}
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
