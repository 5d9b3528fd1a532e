package object

import (
	"testing"
	"time"

	"github.com/nasdf/geocapy/link"
	"github.com/nasdf/geocapy/storage"

	"github.com/ipld/go-ipld-prime/datamodel"
	"github.com/ipld/go-ipld-prime/node/basicnode"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLink(t *testing.T, value string) datamodel.Link {
	store := link.NewStore(storage.NewMemory())
	lnk, err := store.ComputeLink(basicnode.NewString(value))
	require.NoError(t, err)
	return lnk
}

func TestTreePutGetRemove(t *testing.T) {
	tree := NewTree()
	tree.Put(Ref{Name: "b", Kind: KindBlob, Link: testLink(t, "b")})
	tree.Put(Ref{Name: "c", Kind: KindBlob, Link: testLink(t, "c")})
	tree.Put(Ref{Name: "a", Kind: KindBlob, Link: testLink(t, "a")})

	names := make([]string, 0, tree.Len())
	for _, e := range tree.Entries() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)

	tree.Put(Ref{Name: "b", Kind: KindBlob, Link: testLink(t, "b2")})
	ref, ok := tree.Get("b")
	require.True(t, ok)
	assert.True(t, link.Equal(testLink(t, "b2"), ref.Link))
	assert.Equal(t, 3, tree.Len())

	assert.True(t, tree.Remove("a"))
	assert.False(t, tree.Remove("a"))

	_, ok = tree.Get("a")
	assert.False(t, ok)
}

func TestTreeCloneIsIndependent(t *testing.T) {
	tree := NewTree()
	tree.Put(Ref{Name: "a", Kind: KindBlob, Link: testLink(t, "a")})

	clone := tree.Clone()
	clone.Put(Ref{Name: "b", Kind: KindBlob, Link: testLink(t, "b")})

	assert.Equal(t, 1, tree.Len())
	assert.Equal(t, 2, clone.Len())
}

func TestTreeSizeAndBounds(t *testing.T) {
	tree := NewTree()
	tree.Put(Ref{Name: "f1", Kind: KindBlob, Link: testLink(t, "1"), Bounds: &orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}})
	tree.Put(Ref{Name: "f2", Kind: KindBlob, Link: testLink(t, "2"), Bounds: &orb.Bound{Min: orb.Point{5, -2}, Max: orb.Point{6, 3}}})
	tree.Put(Ref{Name: "f3", Kind: KindBlob, Link: testLink(t, "3")})
	tree.Put(Ref{Name: "sub", Kind: KindTree, Link: testLink(t, "sub"), Size: 10})

	assert.Equal(t, int64(13), tree.Size())

	bound, ok := tree.Bounds()
	require.True(t, ok)
	assert.Equal(t, orb.Bound{Min: orb.Point{0, -2}, Max: orb.Point{6, 3}}, bound)

	_, ok = NewTree().Bounds()
	assert.False(t, ok)
}

func TestTreeEncodeDecode(t *testing.T) {
	tree := NewTree()
	tree.Put(Ref{Name: "f1", Kind: KindBlob, Link: testLink(t, "1"), Bounds: &orb.Bound{Min: orb.Point{-1.5, 2}, Max: orb.Point{3, 4.25}}})
	tree.Put(Ref{Name: "f2", Kind: KindBlob, Link: testLink(t, "2")})
	tree.Put(Ref{Name: "ns", Kind: KindTree, Link: testLink(t, "ns"), Size: 7})

	node, err := tree.Node()
	require.NoError(t, err)

	actual, err := DecodeTree(node)
	require.NoError(t, err)

	require.Equal(t, tree.Len(), actual.Len())
	for i, expect := range tree.Entries() {
		got := actual.Entries()[i]
		assert.Equal(t, expect.Name, got.Name)
		assert.Equal(t, expect.Kind, got.Kind)
		assert.Equal(t, expect.Size, got.Size)
		assert.Equal(t, expect.Bounds, got.Bounds)
		assert.True(t, link.Equal(expect.Link, got.Link))
	}
}

func TestCommitEncodeDecode(t *testing.T) {
	commit := &Commit{
		Parents:   []datamodel.Link{testLink(t, "parent")},
		Root:      testLink(t, "root"),
		Author:    "alice",
		Committer: "bob",
		Message:   "add roads",
		Timestamp: time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
	}
	node, err := commit.Node()
	require.NoError(t, err)

	actual, err := DecodeCommit(node)
	require.NoError(t, err)

	require.Len(t, actual.Parents, 1)
	assert.True(t, link.Equal(commit.Parents[0], actual.Parents[0]))
	assert.True(t, link.Equal(commit.Root, actual.Root))
	assert.Equal(t, commit.Author, actual.Author)
	assert.Equal(t, commit.Committer, actual.Committer)
	assert.Equal(t, commit.Message, actual.Message)
	assert.True(t, commit.Timestamp.Equal(actual.Timestamp))
}

func TestParseKind(t *testing.T) {
	kind, err := ParseKind("tree")
	require.NoError(t, err)
	assert.Equal(t, KindTree, kind)

	kind, err = ParseKind(KindBlob.String())
	require.NoError(t, err)
	assert.Equal(t, KindBlob, kind)

	_, err = ParseKind("commit")
	assert.Error(t, err)
}
