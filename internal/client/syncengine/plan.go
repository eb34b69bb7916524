package syncengine

import (
	"github.com/simonexmachina/the-work/internal/models"
)

// Plan is the outcome of comparing the local and remote record sets.
type Plan struct {
	// Uploads are local records to push to the remote store.
	Uploads []models.Worksheet
	// Downloads are remote records to write to the local store.
	Downloads []models.Worksheet
	// LocalDeletes are ids to hard-delete from the local store.
	LocalDeletes []string
}

func (p Plan) Empty() bool {
	return len(p.Uploads) == 0 && len(p.Downloads) == 0 && len(p.LocalDeletes) == 0
}

// Reconcile decides what a full sync pass has to do. Records are matched by
// id and each pair is judged by presence first, then tombstones, then
// UpdatedAt. Ties produce no action, which keeps a second pass over the
// result empty.
//
// A record tombstoned on both sides is left as is, whatever the timestamps.
func Reconcile(local, remote []models.Worksheet) Plan {
	var plan Plan

	remoteByID := models.IndexByID(remote)
	localByID := models.IndexByID(local)

	for i := range local {
		l := &local[i]
		r, ok := remoteByID[l.ID]

		switch {
		case !ok:
			// Never uploaded. A local tombstone with no remote copy stays local.
			if !l.Deleted {
				plan.Uploads = append(plan.Uploads, *l.Clone())
			}
		case r.Deleted && !l.Deleted:
			plan.LocalDeletes = append(plan.LocalDeletes, l.ID)
		case l.Deleted && !r.Deleted:
			plan.Uploads = append(plan.Uploads, *l.Clone())
		case l.Deleted && r.Deleted:
		case l.NewerThan(r):
			plan.Uploads = append(plan.Uploads, *l.Clone())
		case r.NewerThan(l):
			plan.Downloads = append(plan.Downloads, *r.Clone())
		}
	}

	for i := range remote {
		r := &remote[i]
		if _, ok := localByID[r.ID]; ok {
			continue
		}
		if !r.Deleted {
			plan.Downloads = append(plan.Downloads, *r.Clone())
		}
	}

	return plan
}

type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// Change is a single local mutation derived from a remote snapshot.
type Change struct {
	Kind   ChangeKind
	Record models.Worksheet
}

// DiffSnapshot computes the local mutations needed to absorb a remote
// snapshot. A remote tombstone deletes the local copy, a remote record
// unknown locally is added, and a remote record strictly newer than the
// local one replaces it. Local records missing from the snapshot are not
// touched: the snapshot is a view of the remote store, not a deletion list.
func DiffSnapshot(local, remote []models.Worksheet) []Change {
	localByID := models.IndexByID(local)

	var changes []Change
	for i := range remote {
		r := &remote[i]
		l, ok := localByID[r.ID]

		switch {
		case r.Deleted:
			if ok {
				changes = append(changes, Change{Kind: ChangeDeleted, Record: *r.Clone()})
			}
		case !ok:
			changes = append(changes, Change{Kind: ChangeAdded, Record: *r.Clone()})
		case r.NewerThan(l):
			changes = append(changes, Change{Kind: ChangeUpdated, Record: *r.Clone()})
		}
	}
	return changes
}
