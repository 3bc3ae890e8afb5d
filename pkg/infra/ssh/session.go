package ssh

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/crypto/ssh"

	"github.com/chiliseed/chiliseed-cli/pkg/domain/interfaces"
	"github.com/chiliseed/chiliseed-cli/pkg/domain/types"
	"github.com/chiliseed/chiliseed-cli/pkg/utils/logging"
)

const (
	defaultTimeout = 30 * time.Second

	// execChunkSize keeps remote output flowing to the console as it arrives
	execChunkSize = 64
)

// Connection stages reported in the "stage" value of network errors
const (
	StageKey       = "key"
	StageConnect   = "connect"
	StageHandshake = "handshake"
	StageAuth      = "auth"
)

type options struct {
	stdout  io.Writer
	stderr  io.Writer
	timeout time.Duration
}

// Option configures Dial
type Option func(*options)

// WithOutput sets where remote stdout and stderr are written
func WithOutput(stdout, stderr io.Writer) Option {
	return func(o *options) {
		o.stdout = stdout
		o.stderr = stderr
	}
}

// WithTimeout bounds the TCP connect and SSH handshake
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// Session is an authenticated SSH connection to a build worker
type Session struct {
	client *ssh.Client
	addr   string
	stdout io.Writer
	stderr io.Writer
}

// Dialer opens Sessions and satisfies interfaces.RemoteDialer
type Dialer struct {
	opts []Option
}

// NewDialer creates a Dialer applying opts to every Dial
func NewDialer(opts ...Option) *Dialer {
	return &Dialer{opts: opts}
}

// Dial implements interfaces.RemoteDialer
func (d *Dialer) Dial(ctx context.Context, addr, user, keyPath string) (interfaces.RemoteSession, error) {
	return Dial(ctx, addr, user, keyPath, d.opts...)
}

// Dial connects to addr and authenticates as user with the private key at keyPath.
// Host keys are not verified: build workers are ephemeral and their keys unknown.
func Dial(ctx context.Context, addr, user, keyPath string, opts ...Option) (*Session, error) {
	o := &options{
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}

	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, networkError(err, "failed to read private key", StageKey, addr)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, networkError(err, "failed to parse private key", StageKey, addr)
	}

	cfg := &ssh.ClientConfig{
		User: user,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         o.timeout,
	}

	dialer := &net.Dialer{Timeout: o.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, networkError(err, "failed to connect", StageConnect, addr)
	}

	if err := conn.SetDeadline(time.Now().Add(o.timeout)); err != nil {
		_ = conn.Close()
		return nil, networkError(err, "failed to set handshake deadline", StageHandshake, addr)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, networkError(err, "failed to authenticate", StageAuth, addr)
		}
		return nil, networkError(err, "failed ssh handshake", StageHandshake, addr)
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		_ = c.Close()
		return nil, networkError(err, "failed to clear handshake deadline", StageHandshake, addr)
	}

	logging.From(ctx).Debug("Connected to build worker", "addr", addr, "user", user)

	return &Session{
		client: ssh.NewClient(c, chans, reqs),
		addr:   addr,
		stdout: o.stdout,
		stderr: o.stderr,
	}, nil
}

// Exec runs command on the remote host and returns its exit status. Stdout is
// copied to the local output as it arrives; stderr is written once the output
// stream ends.
func (s *Session) Exec(ctx context.Context, command string) (int, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return -1, networkError(err, "failed to open session channel", StageConnect, s.addr)
	}
	defer sess.Close()

	stdout, err := sess.StdoutPipe()
	if err != nil {
		return -1, goerr.Wrap(err, "failed to attach stdout", goerr.T(types.ErrTagRemoteExecution))
	}
	var stderr bytes.Buffer
	sess.Stderr = &stderr

	if err := sess.Start(command); err != nil {
		return -1, goerr.Wrap(err, "failed to start remote command",
			goerr.T(types.ErrTagRemoteExecution),
			goerr.V("command", command),
		)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = sess.Close()
	})
	defer stop()

	buf := make([]byte, execChunkSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, werr := s.stdout.Write(buf[:n]); werr != nil {
				return -1, goerr.Wrap(werr, "failed to write remote output",
					goerr.T(types.ErrTagRemoteExecution),
					goerr.V("command", command),
				)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return -1, goerr.Wrap(err, "failed to read remote output",
				goerr.T(types.ErrTagRemoteExecution),
				goerr.V("command", command),
			)
		}
	}

	waitErr := sess.Wait()
	if stderr.Len() > 0 {
		_, _ = s.stderr.Write(stderr.Bytes())
		if !bytes.HasSuffix(stderr.Bytes(), []byte("\n")) {
			_, _ = io.WriteString(s.stderr, "\n")
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, goerr.Wrap(ctxErr, "remote command interrupted",
			goerr.T(types.ErrTagRemoteExecution),
			goerr.V("command", command),
		)
	}
	if waitErr == nil {
		return 0, nil
	}

	var exitErr *ssh.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitStatus(), nil
	}
	return -1, goerr.Wrap(waitErr, "remote command did not report exit status",
		goerr.T(types.ErrTagRemoteExecution),
		goerr.V("command", command),
	)
}

// Close closes the connection
func (s *Session) Close() error {
	return s.client.Close()
}

func networkError(err error, msg, stage, addr string) error {
	return goerr.Wrap(err, msg,
		goerr.T(types.ErrTagNetwork),
		goerr.V("stage", stage),
		goerr.V("addr", addr),
	)
}
