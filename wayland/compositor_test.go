package wayland

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeGlobal struct {
	iface   string
	name    uint32
	version uint32
}

// fakeCompositor serves a single client over a unix socket, implementing
// just enough of the core protocol for the transport: the registry, sync
// callbacks and surface lifetime.
type fakeCompositor struct {
	listener *net.UnixListener
	conn     *net.UnixConn
	// objects is only touched by the serve goroutine
	objects  map[uint32]string
	done     chan struct{}
	path     string
	globals  []fakeGlobal
	requests []string
	mu       sync.Mutex
	writeMu  sync.Mutex
}

func newFakeCompositor(t *testing.T, dir string, globals ...fakeGlobal) *fakeCompositor {
	t.Helper()
	path := filepath.Join(dir, "wayland-test")
	l, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	require.NoError(t, err)

	c := &fakeCompositor{
		listener: l,
		objects:  map[uint32]string{1: "wl_display"},
		done:     make(chan struct{}),
		path:     path,
		globals:  globals,
	}
	go c.serve()
	t.Cleanup(func() {
		_ = l.Close()
		c.disconnect()
		<-c.done
	})
	return c
}

func (c *fakeCompositor) serve() {
	defer close(c.done)
	conn, err := c.listener.AcceptUnix()
	if err != nil {
		return
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	var header [8]byte
	for {
		if _, err := io.ReadFull(conn, header[:]); err != nil {
			return
		}
		sender := binary.NativeEndian.Uint32(header[0:])
		word := binary.NativeEndian.Uint32(header[4:])
		body := make([]byte, int(word>>16)-len(header))
		if _, err := io.ReadFull(conn, body); err != nil {
			return
		}
		c.handle(sender, word&0xffff, body)
	}
}

func (c *fakeCompositor) handle(sender, opcode uint32, body []byte) {
	iface := c.objects[sender]
	arg := func(i int) uint32 { return binary.NativeEndian.Uint32(body[i*4:]) }

	switch {
	case iface == "wl_display" && opcode == 0:
		c.record("wl_display.sync")
		cb := arg(0)
		c.send(cb, 0, uint32(1))
		// unrelated ids interleave with the ones that matter
		for i := range uint32(4) {
			c.send(1, 1, 0xff000000+i)
		}
		c.send(1, 1, cb)

	case iface == "wl_display" && opcode == 1:
		c.record("wl_display.get_registry")
		registry := arg(0)
		c.objects[registry] = "wl_registry"
		for _, g := range c.globals {
			c.send(registry, 0, g.name, g.iface, g.version)
		}

	case iface == "wl_registry" && opcode == 0:
		n := binary.NativeEndian.Uint32(body[4:])
		name := string(body[8 : 8+n-1])
		rest := body[8+padded(n):]
		id := binary.NativeEndian.Uint32(rest[4:])
		c.objects[id] = name
		c.record("wl_registry.bind " + name)

	case iface == "wl_compositor" && opcode == 0:
		c.record("wl_compositor.create_surface")
		c.objects[arg(0)] = "wl_surface"

	case iface == "wl_surface" && opcode == 0:
		c.record("wl_surface.destroy")
		delete(c.objects, sender)
		// wl_surface.leave racing the destruction
		c.send(sender, 1, uint32(0))
		c.send(1, 1, sender)

	case iface == "wl_surface" && opcode == 6:
		c.record("wl_surface.commit")

	default:
		c.record(fmt.Sprintf("%s#%d", iface, opcode))
	}
}

func (c *fakeCompositor) record(request string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, request)
}

func (c *fakeCompositor) requestLog() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.requests...)
}

// send writes an event with uint32 and string arguments.
func (c *fakeCompositor) send(object, opcode uint32, args ...any) {
	msg := make([]byte, 8, 64)
	for _, a := range args {
		switch v := a.(type) {
		case uint32:
			msg = binary.NativeEndian.AppendUint32(msg, v)
		case string:
			n := uint32(len(v) + 1)
			msg = binary.NativeEndian.AppendUint32(msg, n)
			msg = append(msg, v...)
			msg = append(msg, make([]byte, padded(n)-uint32(len(v)))...)
		default:
			panic(fmt.Sprintf("unsupported argument %T", a))
		}
	}
	binary.NativeEndian.PutUint32(msg[0:], object)
	binary.NativeEndian.PutUint32(msg[4:], uint32(len(msg))<<16|opcode)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, _ = conn.Write(msg)
}

// protocolError sends wl_display.error.
func (c *fakeCompositor) protocolError(object, code uint32, message string) {
	c.send(1, 0, object, code, message)
}

func (c *fakeCompositor) disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func padded(n uint32) uint32 {
	return (n + 3) &^ 3
}
