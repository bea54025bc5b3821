package persistence

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rlaneuville/roomchat/config"
	"github.com/rlaneuville/roomchat/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuntTestStore(t *testing.T) Store {
	t.Helper()
	cfg := &config.Config{PersistenceConfig: config.PersistenceConfig{Type: "buntdb"}}
	store, err := NewStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newFileTestStore(t *testing.T) (Store, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{PersistenceConfig: config.PersistenceConfig{Type: "file", DSN: dir}}
	store, err := NewStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, dir
}

func testSnapshot(name string) *types.RoomSnapshot {
	return &types.RoomSnapshot{
		Name:         name,
		Type:         types.RoomTypePrivate,
		Password:     "s3cret",
		Creator:      "admin",
		CreationDate: time.Date(2021, 4, 1, 12, 0, 0, 0, time.UTC),
		MaxUsers:     5,
		HistoryPart:  3,
	}
}

func testPage() []types.Message {
	return []types.Message{
		{Id: "0000000000000001", Time: time.Date(2021, 4, 1, 12, 0, 0, 0, time.UTC), Text: "hello", From: "alice", To: "all"},
		{Id: "0000000000000002", Time: time.Date(2021, 4, 1, 12, 1, 0, 0, time.UTC), Text: "hi", From: "bob", To: "all", Part: 0},
	}
}

func runStoreSuite(t *testing.T, store Store) {
	t.Run("room names", func(t *testing.T) {
		names, err := store.RoomNames()
		require.NoError(t, err)
		assert.Empty(t, names)

		require.NoError(t, store.AddRoomName("default"))
		require.NoError(t, store.AddRoomName("attic"))
		require.NoError(t, store.AddRoomName("attic")) // duplicates collapse

		names, err = store.RoomNames()
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"default", "attic"}, names)
	})

	t.Run("snapshot roundtrip", func(t *testing.T) {
		_, err := store.LoadSnapshot("attic")
		assert.Error(t, err)

		snap := testSnapshot("attic")
		require.NoError(t, store.SaveSnapshot(snap))
		loaded, err := store.LoadSnapshot("attic")
		require.NoError(t, err)
		assert.Equal(t, snap.Name, loaded.Name)
		assert.Equal(t, snap.Type, loaded.Type)
		assert.Equal(t, snap.Password, loaded.Password)
		assert.Equal(t, snap.Creator, loaded.Creator)
		assert.Equal(t, snap.MaxUsers, loaded.MaxUsers)
		assert.Equal(t, snap.HistoryPart, loaded.HistoryPart)
		assert.True(t, snap.CreationDate.Equal(loaded.CreationDate))

		// saving again overwrites
		snap.MaxUsers = 7
		require.NoError(t, store.SaveSnapshot(snap))
		loaded, err = store.LoadSnapshot("attic")
		require.NoError(t, err)
		assert.Equal(t, 7, loaded.MaxUsers)
	})

	t.Run("pages are write-once", func(t *testing.T) {
		page := testPage()
		require.NoError(t, store.AppendPage("attic", 0, page))
		assert.Error(t, store.AppendPage("attic", 0, page))

		loaded, err := store.LoadPage("attic", 0)
		require.NoError(t, err)
		require.Len(t, loaded, 2)
		assert.Equal(t, "hello", loaded[0].Text)
		assert.Equal(t, "alice", loaded[0].From)

		// lookups are keyed on (room, part), not just the room
		require.NoError(t, store.AppendPage("attic", 1, []types.Message{
			{Id: "0000000000000003", Time: time.Date(2021, 4, 1, 12, 2, 0, 0, time.UTC), Text: "later", From: "alice", To: "all", Part: 1},
		}))
		loaded, err = store.LoadPage("attic", 1)
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		assert.Equal(t, "later", loaded[0].Text)

		loaded, err = store.LoadPage("attic", 0)
		require.NoError(t, err)
		assert.Len(t, loaded, 2)

		// a missing page is not an error
		loaded, err = store.LoadPage("attic", 9)
		require.NoError(t, err)
		assert.Empty(t, loaded)
	})

	t.Run("part marker", func(t *testing.T) {
		part, err := store.CurrentPart("attic")
		require.NoError(t, err)
		assert.Equal(t, 0, part)

		require.NoError(t, store.SetCurrentPart("attic", 4))
		part, err = store.CurrentPart("attic")
		require.NoError(t, err)
		assert.Equal(t, 4, part)
	})
}

func TestBuntStore(t *testing.T) {
	runStoreSuite(t, newBuntTestStore(t))
}

func TestFileStore(t *testing.T) {
	runStoreSuite(t, newFileTestStoreOnly(t))
}

func newFileTestStoreOnly(t *testing.T) Store {
	store, _ := newFileTestStore(t)
	return store
}

func TestFileStoreLayout(t *testing.T) {
	store, dir := newFileTestStore(t)

	require.NoError(t, store.AddRoomName("attic"))
	require.NoError(t, store.SaveSnapshot(testSnapshot("attic")))
	require.NoError(t, store.AppendPage("attic", 0, testPage()))
	require.NoError(t, store.SetCurrentPart("attic", 1))

	// the on-disk layout is one directory per room
	data, err := ioutil.ReadFile(filepath.Join(dir, "rooms_name"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "attic")

	_, err = os.Stat(filepath.Join(dir, "attic", "room.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "attic", "historic-part-0.json"))
	assert.NoError(t, err)

	data, err = ioutil.ReadFile(filepath.Join(dir, "attic", "historic-last-part"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))
}

func TestFileStoreReopens(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{PersistenceConfig: config.PersistenceConfig{Type: "file", DSN: dir}}

	store, err := NewStore(cfg)
	require.NoError(t, err)
	require.NoError(t, store.AddRoomName("attic"))
	require.NoError(t, store.SaveSnapshot(testSnapshot("attic")))
	require.NoError(t, store.SetCurrentPart("attic", 3))
	require.NoError(t, store.Close())

	store, err = NewStore(cfg)
	require.NoError(t, err)
	defer store.Close()

	names, err := store.RoomNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"attic"}, names)

	snap, err := store.LoadSnapshot("attic")
	require.NoError(t, err)
	assert.Equal(t, "attic", snap.Name)

	part, err := store.CurrentPart("attic")
	require.NoError(t, err)
	assert.Equal(t, 3, part)
}

func TestNewStoreUnknownType(t *testing.T) {
	cfg := &config.Config{PersistenceConfig: config.PersistenceConfig{Type: "etcd"}}
	_, err := NewStore(cfg)
	assert.Error(t, err)
}
