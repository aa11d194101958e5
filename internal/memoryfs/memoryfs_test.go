package memoryfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rootListing() Listing {
	return Listing{
		".":     {ID: RootID, Type: TypeDir, Ctime: "0"},
		"a.txt": {ID: 7, Type: TypeFile, Ctime: "0", Size: 3, HasSize: true},
		"sub":   {ID: 2, Type: TypeDir, Ctime: "0"},
	}
}

func TestRootHasIDOne(t *testing.T) {
	fs := New()
	require.NoError(t, fs.AddDir("/", rootListing()))

	id, err := fs.GetID("/")
	require.NoError(t, err)
	assert.Equal(t, int64(RootID), id)
}

func TestChildParentResolvesToDir(t *testing.T) {
	fs := New()
	require.NoError(t, fs.AddDir("/", rootListing()))

	assert.True(t, fs.Has("/a.txt"))
	assert.True(t, fs.IsFile("/a.txt"))
	assert.True(t, fs.IsDir("/sub"))
	assert.True(t, fs.IsDir("/"))
}

func TestListRootAfterAddDir(t *testing.T) {
	fs := New()
	require.NoError(t, fs.AddDir("/", rootListing()))

	names, err := fs.Readdir("/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "sub"}, names)

	id, err := fs.GetID("/a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
}

func TestAddDirRejectsMissingDot(t *testing.T) {
	fs := New()
	err := fs.AddDir("/", Listing{"a.txt": {ID: 7, Type: TypeFile}})
	assert.Error(t, err)
}

func TestAddDirRejectsWrongRootID(t *testing.T) {
	fs := New()
	err := fs.AddDir("/", Listing{".": {ID: 99, Type: TypeDir}})
	assert.Error(t, err)
}

func TestLoadFileAndGetContent(t *testing.T) {
	fs := New()
	require.NoError(t, fs.AddDir("/", rootListing()))
	require.NoError(t, fs.LoadFile("/a.txt", []byte("abc")))

	content, err := fs.GetContent("/a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), content)
}

func TestLoadFileRejectsDirectory(t *testing.T) {
	fs := New()
	require.NoError(t, fs.AddDir("/", rootListing()))
	assert.Error(t, fs.LoadFile("/sub", []byte("abc")))
}

func TestGetIDUnknownPathIsNotFound(t *testing.T) {
	fs := New()
	_, err := fs.GetID("/missing")
	assert.Error(t, err)
}

func TestResetClearsTree(t *testing.T) {
	fs := New()
	require.NoError(t, fs.AddDir("/", rootListing()))
	fs.Reset()

	assert.False(t, fs.Has("/"))
	assert.False(t, fs.Has("/a.txt"))
}

func TestAddDirReplacesExistingListing(t *testing.T) {
	fs := New()
	require.NoError(t, fs.AddDir("/", rootListing()))
	require.NoError(t, fs.AddDir("/", Listing{
		".":     {ID: RootID, Type: TypeDir},
		"b.txt": {ID: 8, Type: TypeFile},
	}))

	names, err := fs.Readdir("/")
	require.NoError(t, err)
	assert.Equal(t, []string{"b.txt"}, names)
	assert.False(t, fs.Has("/a.txt"))
}
