package wpa

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrShortWrite is returned when fewer bytes were sent than requested;
// since every request is a single datagram this should never happen and
// signals a transport failure.
var ErrShortWrite = errors.New("wpa: short write to control socket")

const readBufferSize = 1024

// Conn is the Unix-datagram control-socket transport to wpa_supplicant.
//
// It binds a caller-unique local path, connects to the supplicant's
// well-known socket under the control directory, and runs a dedicated
// reader goroutine that drains every datagram queued on each wakeup,
// checking how many bytes are available via
// golang.org/x/sys/unix.IoctlGetInt(fd, unix.SIOCINQ) (the socket form of
// FIONREAD) over the socket's raw fd, before blocking again.
type Conn struct {
	raw       *net.UnixConn
	localPath string

	onMessage func(Message)
	onClosed  func(error)
	logger    *slog.Logger

	closeOnce sync.Once
}

// Dial binds /tmp/<interfaceName>-<pid>, removing any stale file at that
// path, then connects to <ctrlDir>/<interfaceName>. onMessage is called
// from the reader goroutine for every parsed datagram; onClosed is called
// at most once, when the connection is considered dead (EOF/error) or
// after a successful Close. Both callbacks must be safe to call from an
// arbitrary goroutine — callers typically forward into an actor's Act. A
// nil logger disables logging of malformed datagrams and failed recvs.
func Dial(ctrlDir, interfaceName string, onMessage func(Message), onClosed func(error), logger *slog.Logger) (*Conn, error) {
	localPath := fmt.Sprintf("/tmp/%s-%d", interfaceName, os.Getpid())
	if err := removeStale(localPath); err != nil {
		return nil, fmt.Errorf("wpa: removing stale local socket: %w", err)
	}

	laddr := &net.UnixAddr{Name: localPath, Net: "unixgram"}
	raddr := &net.UnixAddr{Name: filepath.Join(ctrlDir, interfaceName), Net: "unixgram"}

	raw, err := net.DialUnix("unixgram", laddr, raddr)
	if err != nil {
		return nil, fmt.Errorf("wpa: dialing supplicant control socket: %w", err)
	}

	c := &Conn{raw: raw, localPath: localPath, onMessage: onMessage, onClosed: onClosed, logger: logger}
	go c.readLoop()
	return c, nil
}

func removeStale(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Write sends a single datagram containing m's wire text.
func (c *Conn) Write(m Message) error {
	data := []byte(m.Raw())
	n, err := c.raw.Write(data)
	if err != nil {
		return fmt.Errorf("wpa: write failed: %w", err)
	}
	if n != len(data) {
		return ErrShortWrite
	}
	return nil
}

// Close tears down the transport and removes the local bind path.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.raw.Close()
		_ = os.Remove(c.localPath)
	})
	return err
}

func (c *Conn) readLoop() {
	buf := make([]byte, readBufferSize)
	for {
		n, err := c.raw.Read(buf)
		if err != nil {
			c.closed(err)
			return
		}
		c.deliver(buf[:n])

		for {
			avail, err := bytesAvailable(c.raw)
			if err != nil || avail <= 0 {
				break
			}
			n, err := c.raw.Read(buf)
			if err != nil {
				c.closed(err)
				return
			}
			c.deliver(buf[:n])
		}
	}
}

func (c *Conn) deliver(data []byte) {
	msg, err := Parse(data)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("discarding malformed supplicant message", slog.String("error", err.Error()))
		}
		return
	}
	if c.onMessage != nil {
		c.onMessage(msg)
	}
}

func (c *Conn) closed(err error) {
	if c.logger != nil && err != nil {
		c.logger.Warn("supplicant control socket closed", slog.String("error", err.Error()))
	}
	if c.onClosed != nil {
		c.onClosed(err)
	}
}

func bytesAvailable(conn *net.UnixConn) (int, error) {
	sc, err := conn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var avail int
	var ctrlErr error
	if err := sc.Control(func(fd uintptr) {
		avail, ctrlErr = unix.IoctlGetInt(int(fd), unix.SIOCINQ)
	}); err != nil {
		return 0, err
	}
	return avail, ctrlErr
}
