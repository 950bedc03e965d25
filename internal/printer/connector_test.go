package printer

import (
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileConnectorAppends(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "spool")
	c := &FileConnector{Dir: dir}

	for _, chunk := range []string{"first\n", "second\n"} {
		f, err := c.Connect("Alice", "ps", 0)
		require.NoError(t, err)
		_, err = f.WriteString(chunk)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	data, err := os.ReadFile(filepath.Join(dir, "Alice.ps"))
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(data))
}

func TestFileConnectorUnwritableDir(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	c := &FileConnector{Dir: blocker}
	_, err := c.Connect("Alice", "ps", 0)
	assert.Error(t, err)
}

func TestTCPConnector(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		received <- string(data)
	}()

	c := &TCPConnector{Address: ln.Addr().String(), Timeout: time.Second}
	f, err := c.Connect("Alice", "ps", 0)
	require.NoError(t, err)
	_, err = f.WriteString("%!PS\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case got := <-received:
		assert.Equal(t, "%!PS\n", got)
	case <-time.After(5 * time.Second):
		t.Fatal("printer did not receive the job")
	}
}

func TestTCPConnectorRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c := &TCPConnector{Address: addr, Timeout: time.Second}
	_, err = c.Connect("Alice", "ps", 0)
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

func TestWithDefaultPort(t *testing.T) {
	assert.Equal(t, "10.0.0.5:9100", withDefaultPort("10.0.0.5"))
	assert.Equal(t, "10.0.0.5:515", withDefaultPort("10.0.0.5:515"))
	assert.Equal(t, "printer.local:9100", withDefaultPort("printer.local"))
}

func TestRouter(t *testing.T) {
	dir := t.TempDir()
	device := filepath.Join(dir, "lp0")

	r := NewRouter(filepath.Join(dir, "spool"), map[string]string{
		"Bob":   "file://" + device,
		"Carol": "lpd://queue",
	}, time.Second, nil)

	f, err := r.Connect("Alice", "pdf", 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.FileExists(t, filepath.Join(dir, "spool", "Alice.pdf"))

	f, err = r.Connect("Bob", "pdf", 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.FileExists(t, device)

	_, err = r.Connect("Carol", "pdf", 0)
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}
