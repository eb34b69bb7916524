package cli

import (
	"fmt"

	"github.com/simonexmachina/the-work/internal/client/syncengine"
)

// onEvent prints one line per engine event. Record events caused by other
// devices are the interesting ones; local writes already echo on the prompt.
func (a *App) onEvent(ev syncengine.Event) {
	if line := formatEvent(ev); line != "" {
		a.println(line)
	}
}

func formatEvent(ev syncengine.Event) string {
	switch ev.Type {
	case syncengine.EventSyncStarted:
		return "* sync started"
	case syncengine.EventSyncStopped:
		return "* sync stopped"
	case syncengine.EventSyncProgress:
		if ev.Status == syncengine.StatusComplete {
			return fmt.Sprintf("* sync complete: %d up, %d down, %d deleted", ev.Uploaded, ev.Downloaded, ev.Deleted)
		}
		return ""
	case syncengine.EventSyncError:
		return "! sync error: " + ev.Message
	case syncengine.EventAuthError:
		return "! session rejected, please log in again: " + ev.Message
	case syncengine.EventRecordAdded:
		return fmt.Sprintf("* worksheet %s arrived%s", ev.RecordID, describe(ev))
	case syncengine.EventRecordUpdated:
		return fmt.Sprintf("* worksheet %s updated%s", ev.RecordID, describe(ev))
	case syncengine.EventRecordDeleted:
		return fmt.Sprintf("* worksheet %s deleted", ev.RecordID)
	case syncengine.EventOnline:
		return "* online"
	case syncengine.EventOffline:
		return "* offline, changes will be uploaded later"
	}
	return ""
}

func describe(ev syncengine.Event) string {
	if ev.Record == nil {
		return ""
	}
	if p := ev.Record.Field(fieldPerson); p != "" {
		return fmt.Sprintf(" (%s)", p)
	}
	return ""
}
