package interfaces

import (
	"context"
	"os"
)

// RemoteSession is an open connection to a build worker
type RemoteSession interface {
	// Upload copies a local file to remotePath with the given mode
	Upload(ctx context.Context, localPath, remotePath string, mode os.FileMode) error

	// Exec runs a command and returns its exit status. Output is streamed while it runs.
	Exec(ctx context.Context, command string) (int, error)

	Close() error
}

// RemoteDialer opens sessions to build workers
type RemoteDialer interface {
	Dial(ctx context.Context, addr, user, keyPath string) (RemoteSession, error)
}
