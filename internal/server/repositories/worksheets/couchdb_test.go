package worksheets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb"
	"github.com/stretchr/testify/require"

	"github.com/simonexmachina/the-work/internal/common"
	"github.com/simonexmachina/the-work/internal/models"
)

// fakeCouch emulates the subset of the CouchDB HTTP API used by the
// repository: database existence, document get/put, _find and _index.
type fakeCouch struct {
	mu        sync.Mutex
	dbs       map[string]map[string]map[string]any
	rev       int
	conflicts int // number of upcoming PUTs to reject with 409
	indexes   int
	finds     int
}

func newFakeCouch(t *testing.T) (*fakeCouch, *kivik.Client) {
	t.Helper()
	f := &fakeCouch{dbs: map[string]map[string]map[string]any{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	client, err := kivik.New("couch", srv.URL)
	require.NoError(t, err)
	return f, client
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "reason": "missing"})
}

func (f *fakeCouch) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	if parts[0] == "" {
		writeJSON(w, http.StatusOK, map[string]string{"couchdb": "Welcome", "version": "3.3.3"})
		return
	}
	dbName := parts[0]
	db, exists := f.dbs[dbName]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodHead, http.MethodGet:
			if !exists {
				notFound(w)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"db_name": dbName})
		case http.MethodPut:
			f.dbs[dbName] = map[string]map[string]any{}
			writeJSON(w, http.StatusCreated, map[string]bool{"ok": true})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}
	if !exists {
		notFound(w)
		return
	}

	id := parts[1]
	switch {
	case id == "_index" && r.Method == http.MethodPost:
		f.indexes++
		writeJSON(w, http.StatusOK, map[string]string{"result": "created", "id": "_design/idx", "name": ownerIndexName})
	case id == "_find" && r.Method == http.MethodPost:
		f.find(w, r, db)
	case r.Method == http.MethodGet:
		doc, ok := db[id]
		if !ok {
			notFound(w)
			return
		}
		w.Header().Set("ETag", strconv.Quote(doc["_rev"].(string)))
		writeJSON(w, http.StatusOK, doc)
	case r.Method == http.MethodPut:
		f.put(w, r, db, id)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeCouch) put(w http.ResponseWriter, r *http.Request, db map[string]map[string]any, id string) {
	var doc map[string]any
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "reason": err.Error()})
		return
	}
	if f.conflicts > 0 {
		f.conflicts--
		writeJSON(w, http.StatusConflict, map[string]string{"error": "conflict", "reason": "Document update conflict."})
		return
	}

	current, ok := db[id]
	rev, _ := doc["_rev"].(string)
	if (ok && current["_rev"] != rev) || (!ok && rev != "") {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "conflict", "reason": "Document update conflict."})
		return
	}

	f.rev++
	newRev := fmt.Sprintf("%d-abc", f.rev)
	doc["_id"] = id
	doc["_rev"] = newRev
	db[id] = doc
	w.Header().Set("ETag", strconv.Quote(newRev))
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "id": id, "rev": newRev})
}

func (f *fakeCouch) find(w http.ResponseWriter, r *http.Request, db map[string]map[string]any) {
	f.finds++
	var q struct {
		Selector map[string]any `json:"selector"`
		Limit    int            `json:"limit"`
		Bookmark string         `json:"bookmark"`
	}
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "reason": err.Error()})
		return
	}

	var matched []map[string]any
	for _, doc := range db {
		ok := true
		for k, v := range q.Selector {
			if doc[k] != v {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, doc)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i]["_id"].(string) < matched[j]["_id"].(string)
	})

	start, _ := strconv.Atoi(q.Bookmark)
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"docs":     matched[start:end],
		"bookmark": strconv.Itoa(end),
	})
}

func (f *fakeCouch) doc(dbName, id string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dbs[dbName][docID(id)]
}

func newCouchRepo(t *testing.T) (*fakeCouch, *CouchRepository) {
	t.Helper()
	f, client := newFakeCouch(t)
	require.NoError(t, EnsureDatabase(context.Background(), client, "worksheets"))
	return f, NewCouchRepository(client, "worksheets")
}

func sheet(id, owner string, at time.Time, fields map[string]any) *models.Worksheet {
	return &models.Worksheet{ID: id, OwnerID: owner, UpdatedAt: at, Fields: fields}
}

func TestEnsureDatabase_CreatesOnce(t *testing.T) {
	f, client := newFakeCouch(t)
	ctx := context.Background()

	require.NoError(t, EnsureDatabase(ctx, client, "worksheets"))
	require.NoError(t, EnsureDatabase(ctx, client, "worksheets"))

	require.Contains(t, f.dbs, "worksheets")
	require.Equal(t, 2, f.indexes)
}

func TestCouchSave_CreatesAndMerges(t *testing.T) {
	f, repo := newCouchRepo(t)
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(ctx, sheet("w1", "u1", t0, map[string]any{"person": "Bob", "situation": "late"})))
	require.NoError(t, repo.Save(ctx, sheet("w1", "u1", t0.Add(time.Minute), map[string]any{"situation": "early"})))

	doc := f.doc("worksheets", "w1")
	require.Equal(t, "Bob", doc["person"])
	require.Equal(t, "early", doc["situation"])
	require.Equal(t, "2-abc", doc["_rev"])

	got, err := repo.ListByOwner(ctx, "u1", false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got[0].UpdatedAt.Equal(t0.Add(time.Minute)))
	require.Equal(t, "Bob", got[0].Field("person"))
}

func TestCouchSave_ClearsTombstoneKeysFromIncoming(t *testing.T) {
	f, repo := newCouchRepo(t)
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	dead := sheet("w1", "u1", t0, nil)
	dead.MarkDeleted(t0)
	require.NoError(t, repo.Save(ctx, dead))

	require.NoError(t, repo.Save(ctx, sheet("w1", "u1", t0.Add(time.Hour), map[string]any{"person": "Ann"})))

	doc := f.doc("worksheets", "w1")
	require.Equal(t, false, doc[models.KeyDeleted])
	require.NotContains(t, doc, models.KeyDeletedAt)
}

func TestCouchSave_OwnerConflict(t *testing.T) {
	_, repo := newCouchRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sheet("w1", "u1", time.Now(), nil)))
	err := repo.Save(ctx, sheet("w1", "u2", time.Now(), nil))
	require.ErrorIs(t, err, common.ErrOwnerConflict)
}

func TestCouchSave_RetriesOnConflict(t *testing.T) {
	f, repo := newCouchRepo(t)
	ctx := context.Background()

	f.conflicts = 2
	require.NoError(t, repo.Save(ctx, sheet("w1", "u1", time.Now(), map[string]any{"a": "b"})))
	require.Equal(t, "b", f.doc("worksheets", "w1")["a"])
}

func TestCouchSave_GivesUpAfterRepeatedConflicts(t *testing.T) {
	f, repo := newCouchRepo(t)

	f.conflicts = maxPutAttempts
	err := repo.Save(context.Background(), sheet("w1", "u1", time.Now(), nil))
	require.ErrorIs(t, err, errTooManyConflicts)
}

func TestCouchListByOwner_FiltersAndSorts(t *testing.T) {
	_, repo := newCouchRepo(t)
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(ctx, sheet("a", "u1", t0, nil)))
	require.NoError(t, repo.Save(ctx, sheet("b", "u1", t0.Add(2*time.Hour), nil)))
	require.NoError(t, repo.Save(ctx, sheet("c", "u2", t0.Add(time.Hour), nil)))
	require.NoError(t, repo.SoftDelete(ctx, "u1", "a", t0.Add(3*time.Hour)))

	live, err := repo.ListByOwner(ctx, "u1", false)
	require.NoError(t, err)
	require.Len(t, live, 1)
	require.Equal(t, "b", live[0].ID)

	all, err := repo.ListByOwner(ctx, "u1", true)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "a", all[0].ID)
	require.True(t, all[0].Deleted)
	require.NotNil(t, all[0].DeletedAt)
	require.Equal(t, "b", all[1].ID)
}

func TestCouchListByOwner_Paginates(t *testing.T) {
	f, repo := newCouchRepo(t)
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	n := findPageSize + 5
	for i := 0; i < n; i++ {
		require.NoError(t, repo.Save(ctx, sheet(fmt.Sprintf("w%03d", i), "u1", t0.Add(time.Duration(i)*time.Second), nil)))
	}
	f.finds = 0

	got, err := repo.ListByOwner(ctx, "u1", true)
	require.NoError(t, err)
	require.Len(t, got, n)
	require.Equal(t, 2, f.finds)
	require.Equal(t, fmt.Sprintf("w%03d", n-1), got[0].ID)
}

func TestCouchListByOwner_Empty(t *testing.T) {
	_, repo := newCouchRepo(t)

	got, err := repo.ListByOwner(context.Background(), "nobody", false)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestCouchSoftDelete_NotFound(t *testing.T) {
	_, repo := newCouchRepo(t)
	ctx := context.Background()

	err := repo.SoftDelete(ctx, "u1", "missing", time.Now())
	require.ErrorIs(t, err, common.ErrorNotFound)

	require.NoError(t, repo.Save(ctx, sheet("w1", "u2", time.Now(), nil)))
	err = repo.SoftDelete(ctx, "u1", "w1", time.Now())
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestMerge_DropsStoredSyncKeys(t *testing.T) {
	stored := map[string]any{"_id": "x", "_rev": "1-a", "deletedAt": "t", "person": "Bob"}
	got := merge(stored, map[string]any{"id": "x", "deleted": false})

	require.Equal(t, map[string]any{"id": "x", "deleted": false, "person": "Bob"}, got)
}
