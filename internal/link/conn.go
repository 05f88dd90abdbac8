package link

import (
	"bufio"
	"io"
	"strings"
	"sync"
)

// conn wraps one live transport. TCP links forward raw chunks as they
// arrive; serial links frame inbound bytes into CRLF-delimited lines
// before forwarding.
type conn struct {
	rwc    io.ReadWriteCloser
	framed bool

	closeOnce sync.Once
}

func newTCPConn(rwc io.ReadWriteCloser) *conn {
	return &conn{rwc: rwc}
}

func newSerialConn(rwc io.ReadWriteCloser) *conn {
	return &conn{rwc: rwc, framed: true}
}

func (c *conn) close() {
	c.closeOnce.Do(func() { c.rwc.Close() })
}

// pump reads until the transport fails or closes, handing each chunk or
// framed line to deliver. The returned error is the read error that ended
// the loop, io.EOF included.
func (c *conn) pump(deliver func(msg string)) error {
	if c.framed {
		return c.pumpLines(deliver)
	}
	return c.pumpChunks(deliver)
}

func (c *conn) pumpChunks(deliver func(msg string)) error {
	buf := make([]byte, 4096)
	for {
		n, err := c.rwc.Read(buf)
		if n > 0 {
			deliver(string(buf[:n]))
		}
		if err != nil {
			return err
		}
	}
}

func (c *conn) pumpLines(deliver func(msg string)) error {
	r := bufio.NewReader(c.rwc)
	for {
		line, err := r.ReadString('\n')
		if msg := strings.TrimRight(line, "\r\n"); msg != "" {
			deliver(msg)
		}
		if err != nil {
			return err
		}
	}
}
