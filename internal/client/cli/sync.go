package cli

import (
	"context"
	"errors"

	"github.com/simonexmachina/the-work/internal/client/client"
	"github.com/simonexmachina/the-work/internal/client/syncengine"
)

// Sync runs a full reconciliation pass on demand. The outcome is printed
// by the event listener.
func (a *App) Sync(ctx context.Context) error {
	if a.Mode() == ModeOffline {
		a.println("Offline: changes are queued and will upload when the server is back")
		return nil
	}
	report, err := a.engine.PerformFullSync(ctx)
	if err != nil {
		if errors.Is(err, syncengine.ErrNotAuthenticated) {
			a.println("Log in to sync")
		}
		return err
	}
	if report.Skipped {
		a.println("A sync is already running")
	}
	return nil
}

func (a *App) Status(ctx context.Context) error {
	user := "not logged in"
	if a.auth.IsAuthenticated() {
		user = a.auth.Username()
	}
	live := "off"
	if a.engine.Syncing() {
		live = "on"
	}

	a.printf("user:     %s\nmode:     %s\nengine:   %s\nlive:     %s\npending:  %d\n",
		user, a.Mode(), a.engine.State(), live, a.engine.QueueLen())
	return nil
}

// Export asks the server for a JSON export and downloads it.
func (a *App) Export(ctx context.Context) error {
	path, url, err := a.exports.Export(ctx)
	if err != nil {
		switch {
		case errors.Is(err, client.ErrUnavailable):
			a.println("Server unavailable, export needs a connection")
		case url != "":
			a.println("Download failed, the export is still available at", url)
		default:
			a.println("Export failed:", err)
		}
		return err
	}
	a.println("Export saved to", path)
	return nil
}
