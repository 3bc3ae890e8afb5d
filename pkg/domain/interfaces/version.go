package interfaces

import "context"

// VersionResolver resolves the version of the working tree to deploy
type VersionResolver interface {
	Resolve(ctx context.Context) (string, error)
}
