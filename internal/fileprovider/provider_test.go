package fileprovider_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/metagraph/internal/fileprovider"
	"github.com/zjrosen/metagraph/internal/identifier"
	"github.com/zjrosen/metagraph/internal/metadata"
	"github.com/zjrosen/metagraph/internal/registry"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o750))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o600))
}

func fileID(t *testing.T, rel string) identifier.ID {
	t.Helper()
	id, err := fileprovider.FileID(rel)
	require.NoError(t, err)
	return id
}

func getFile(t *testing.T, p *fileprovider.Provider, rel string) *fileprovider.File {
	t.Helper()
	item, err := p.Get(context.Background(), fileID(t, rel))
	require.NoError(t, err)
	if item == nil {
		return nil
	}
	f, ok := item.(*fileprovider.File)
	require.True(t, ok)
	return f
}

func TestFileID(t *testing.T) {
	id, err := fileprovider.FileID(filepath.Join("src", "a.txt"))
	require.NoError(t, err)
	require.Equal(t, identifier.ID("MID:file#src/a.txt"), id)
	require.Equal(t, fileprovider.Class, id.ClassID())

	_, err = fileprovider.FileID("")
	require.ErrorIs(t, err, identifier.ErrInvalidIdentifier)
}

func TestGet_RegularFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/a.txt", "hello")

	p, err := fileprovider.New(root)
	require.NoError(t, err)
	require.Equal(t, fileprovider.Class, p.ProvidesType())

	f := getFile(t, p, "src/a.txt")
	require.NotNil(t, f)
	require.Equal(t, fileID(t, "src/a.txt"), f.ID())
	require.Equal(t, "src/a.txt", f.Path)
	require.Equal(t, int64(5), f.Size)
	require.Len(t, f.Digest, 16)
	require.False(t, f.ModTime.IsZero())
}

func TestGet_SameContentSameDigest(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "same")
	writeFile(t, root, "b.txt", "same")
	writeFile(t, root, "c.txt", "different")

	p, err := fileprovider.New(root)
	require.NoError(t, err)

	a, b, c := getFile(t, p, "a.txt"), getFile(t, p, "b.txt"), getFile(t, p, "c.txt")
	require.Equal(t, a.Digest, b.Digest)
	require.NotEqual(t, a.Digest, c.Digest)
}

func TestGet_MissingAndDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "dir/inner.txt", "x")

	p, err := fileprovider.New(root)
	require.NoError(t, err)

	require.Nil(t, getFile(t, p, "missing.txt"))
	require.Nil(t, getFile(t, p, "dir"))
}

func TestGet_Rejects(t *testing.T) {
	p, err := fileprovider.New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name string
		id   identifier.ID
		want error
	}{
		{"parent", identifier.MustInstance("file", "../secret"), fileprovider.ErrOutsideRoot},
		{"nested parent", identifier.MustInstance("file", "a/../../secret"), fileprovider.ErrOutsideRoot},
		{"absolute", identifier.MustInstance("file", "/etc/passwd"), fileprovider.ErrOutsideRoot},
		{"other class", identifier.MustInstance("artifact", "a"), fileprovider.ErrWrongClass},
		{"class id", fileprovider.Class, fileprovider.ErrWrongClass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Get(ctx, tt.id)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDigestCache(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "one")

	p, err := fileprovider.New(root)
	require.NoError(t, err)

	first := getFile(t, p, "a.txt")
	getFile(t, p, "a.txt")
	require.Equal(t, int64(1), p.Hashed(), "unchanged file is hashed once")

	writeFile(t, root, "a.txt", "one two")
	second := getFile(t, p, "a.txt")
	require.Equal(t, int64(2), p.Hashed(), "size change forces a rehash")
	require.NotEqual(t, first.Digest, second.Digest)
	require.Equal(t, int64(7), second.Size)
}

func TestEvict(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "one")
	writeFile(t, root, "b.txt", "two")

	p, err := fileprovider.New(root)
	require.NoError(t, err)

	getFile(t, p, "a.txt")
	getFile(t, p, "b.txt")
	require.Equal(t, int64(2), p.Hashed())

	p.Evict(fileID(t, "a.txt"))
	getFile(t, p, "a.txt")
	getFile(t, p, "b.txt")
	require.Equal(t, int64(3), p.Hashed())

	p.EvictAll()
	getFile(t, p, "a.txt")
	getFile(t, p, "b.txt")
	require.Equal(t, int64(5), p.Hashed())

	// Identifiers of other classes are ignored.
	p.Evict(identifier.MustInstance("artifact", "x"))
}

func TestThroughService(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "v1")

	p, err := fileprovider.New(root)
	require.NoError(t, err)

	cache, err := metadata.NewCache(100)
	require.NoError(t, err)
	svc, err := metadata.NewService(registry.New(), cache)
	require.NoError(t, err)
	require.NoError(t, svc.Register(p))

	ctx := context.Background()
	id := fileID(t, "a.txt")

	item, err := svc.Get(ctx, id, false)
	require.NoError(t, err)
	require.Equal(t, int64(2), item.(*fileprovider.File).Size)

	writeFile(t, root, "a.txt", "v2 longer")
	item, err = svc.Get(ctx, id, false)
	require.NoError(t, err)
	require.Equal(t, int64(2), item.(*fileprovider.File).Size, "service cache serves the stale item until evicted")

	require.NoError(t, svc.Evict(id))
	item, err = svc.Get(ctx, id, false)
	require.NoError(t, err)
	require.Equal(t, int64(9), item.(*fileprovider.File).Size)
}
