// Package printer opens the byte transport a job is written to. A transport
// is handed out as an *os.File so it can be passed to a child process.
package printer

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
)

var (
	ErrConnectionFailed  = errors.New("connection failed")
	ErrUnsupportedScheme = errors.New("unsupported device scheme")
)

const (
	defaultTCPPort           = 9100
	defaultConnectionTimeout = 10 * time.Second
)

// Connector opens the transport for a printer. Priority is passed through
// for transports that can queue; none of the built-in ones do.
type Connector interface {
	Connect(name, fileType string, priority int) (*os.File, error)
}

// FileConnector appends every job for a printer to <dir>/<name>.<type>.
type FileConnector struct {
	Dir string
}

func (c *FileConnector) Connect(name, fileType string, priority int) (*os.File, error) {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}
	return openDevice(filepath.Join(c.Dir, name+"."+fileType))
}

func openDevice(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return f, nil
}

// TCPConnector streams to a raw socket printer, port 9100 unless the
// address names another.
type TCPConnector struct {
	Address string
	Timeout time.Duration
}

func (c *TCPConnector) Connect(name, fileType string, priority int) (*os.File, error) {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = defaultConnectionTimeout
	}

	conn, err := net.DialTimeout("tcp", withDefaultPort(c.Address), timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	defer conn.Close()

	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected connection type %T", ErrConnectionFailed, conn)
	}
	f, err := tcp.File()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return f, nil
}

func withDefaultPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(defaultTCPPort))
}

// Router picks a transport per printer from its configured device URI:
// tcp://host[:port] or file:///path. Printers without a device spool to
// files under the fallback directory.
type Router struct {
	devices  map[string]string
	fallback *FileConnector
	timeout  time.Duration
	logger   *zap.Logger
}

func NewRouter(spoolDir string, devices map[string]string, timeout time.Duration, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := make(map[string]string, len(devices))
	for name, uri := range devices {
		d[name] = uri
	}
	return &Router{
		devices:  d,
		fallback: &FileConnector{Dir: spoolDir},
		timeout:  timeout,
		logger:   logger.With(zap.String("component", "printer")),
	}
}

func (r *Router) Connect(name, fileType string, priority int) (*os.File, error) {
	uri, ok := r.devices[name]
	if !ok {
		return r.fallback.Connect(name, fileType, priority)
	}

	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: device %q: %v", ErrConnectionFailed, uri, err)
	}

	r.logger.Debug("connecting to printer",
		zap.String("printer", name),
		zap.String("device", uri),
	)

	switch u.Scheme {
	case "tcp", "socket":
		return (&TCPConnector{Address: u.Host, Timeout: r.timeout}).Connect(name, fileType, priority)
	case "file", "":
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		return openDevice(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}
}
