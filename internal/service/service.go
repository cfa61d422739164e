// Package service implements the entity services: one per entity family,
// each following the same write-through policy.
//
// Every operation is tried against the canonical store first. On success the
// canonical result is written into the local cache tagged synced and
// returned. On failure (or when the connectivity monitor already reports
// offline) the same operation is performed against the cache only, tagged
// pending (or deleted), and the synthesized result is returned. Callers can
// only tell the two apart by inspecting SyncStatus.
package service

import (
	"log"
	"os"
	"time"

	"github.com/dentops/chairside/internal/remote"
	"github.com/dentops/chairside/internal/store"
)

// Deps bundles the collaborators shared by all entity services.
type Deps struct {
	Local  *store.Store
	Remote remote.Store

	// Online is the connectivity monitor's synchronous query. When it
	// reports false the remote attempt is skipped outright.
	Online func() bool

	// Now is the clock, injectable for tests.
	Now func() time.Time

	Logger *log.Logger
}

// fill applies defaults for optional fields.
func (d Deps) fill(prefix string) Deps {
	if d.Online == nil {
		d.Online = func() bool { return true }
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = log.New(os.Stderr, prefix, log.LstdFlags)
	}
	return d
}
