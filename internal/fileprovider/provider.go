// Package fileprovider serves metadata for files under a workspace root.
//
// Instances of class "file" are keyed by their slash-separated path relative
// to the root. Files are leaves in the dependency graph: the provider reads
// the filesystem but registers nothing. Content digests are kept in a
// secondary read-through cache keyed by path and revalidated against size and
// modification time, so an unchanged file is hashed once.
package fileprovider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/zjrosen/metagraph/internal/cachemanager"
	"github.com/zjrosen/metagraph/internal/identifier"
	"github.com/zjrosen/metagraph/internal/log"
	"github.com/zjrosen/metagraph/internal/metadata"
)

// ClassName is the class served by the provider.
const ClassName = "file"

// Class is the class identifier served by the provider.
var Class = identifier.MustClass(ClassName)

var (
	ErrOutsideRoot = errors.New("path escapes workspace root")
	ErrWrongClass  = errors.New("identifier is not a file instance")
)

// FileID returns the identifier of the file at rel, a path relative to the
// workspace root in either slash or OS form.
func FileID(rel string) (identifier.ID, error) {
	return identifier.NewInstance(ClassName, filepath.ToSlash(rel))
}

// File is the metadata of one regular file.
type File struct {
	Identifier identifier.ID
	Path       string
	Size       int64
	ModTime    time.Time
	Digest     string
}

func (f *File) ID() identifier.ID {
	return f.Identifier
}

// ContentDigest returns the hex xxhash of the file content.
func (f *File) ContentDigest() string {
	return f.Digest
}

type pathKey string

type fingerprint struct {
	Size    int64
	ModTime time.Time
	Digest  string
}

func (fp fingerprint) matches(info fs.FileInfo) bool {
	return fp.Size == info.Size() && fp.ModTime.Equal(info.ModTime())
}

type digestInput struct {
	abs  string
	info fs.FileInfo
}

// Provider computes File items.
type Provider struct {
	root    string
	digests *cachemanager.ReadThroughCache[pathKey, fingerprint, digestInput]
	hashed  atomic.Int64
}

var (
	_ metadata.Provider      = (*Provider)(nil)
	_ metadata.CacheProvider = (*Provider)(nil)
)

// New returns a provider for files under root.
func New(root string) (*Provider, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}
	store := cachemanager.NewInMemoryCacheManager[pathKey, fingerprint](
		"file-digests", cachemanager.NoExpiration, cachemanager.DefaultCleanupInterval)
	return newWithStore(abs, store), nil
}

func newWithStore(root string, store cachemanager.CacheManager[pathKey, fingerprint]) *Provider {
	p := &Provider{root: root}
	p.digests = cachemanager.NewReadThroughCache(store, p.hash, false)
	return p
}

// Root returns the absolute workspace root.
func (p *Provider) Root() string {
	return p.root
}

// Hashed returns how many times file content has been read and hashed.
func (p *Provider) Hashed() int64 {
	return p.hashed.Load()
}

func (p *Provider) ProvidesType() identifier.ID {
	return Class
}

// Get stats and fingerprints the file named by id. A missing file or a
// directory yields a nil item.
func (p *Provider) Get(ctx context.Context, id identifier.ID) (metadata.Item, error) {
	rel, err := p.relPath(id)
	if err != nil {
		return nil, err
	}
	key := pathKey(rel)

	abs := filepath.Join(p.root, filepath.FromSlash(rel))
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		p.invalidate(ctx, key)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", rel, err)
	}
	if !info.Mode().IsRegular() {
		return nil, nil
	}

	input := digestInput{abs: abs, info: info}
	fp, err := p.digests.Get(ctx, key, input, cachemanager.NoExpiration)
	if err == nil && !fp.matches(info) {
		log.Debug(log.CatCache, "Digest stale", "path", rel)
		if err := p.digests.Invalidate(ctx, key); err != nil {
			return nil, fmt.Errorf("drop stale digest for %s: %w", rel, err)
		}
		fp, err = p.digests.Get(ctx, key, input, cachemanager.NoExpiration)
	}
	if err != nil {
		return nil, err
	}

	return &File{
		Identifier: id,
		Path:       rel,
		Size:       fp.Size,
		ModTime:    fp.ModTime,
		Digest:     fp.Digest,
	}, nil
}

// Evict drops the cached digest for id.
func (p *Provider) Evict(id identifier.ID) {
	rel, err := p.relPath(id)
	if err != nil {
		return
	}
	p.invalidate(context.Background(), pathKey(rel))
}

// EvictAll drops every cached digest.
func (p *Provider) EvictAll() {
	if err := p.digests.InvalidateAll(context.Background()); err != nil {
		log.ErrorErr(log.CatCache, "Failed to drop file digests", err)
	}
}

// invalidate drops one digest. A failure only costs a rehash later, because
// Get compares the cached fingerprint against the file before trusting it.
func (p *Provider) invalidate(ctx context.Context, key pathKey) {
	if err := p.digests.Invalidate(ctx, key); err != nil {
		log.ErrorErr(log.CatCache, "Failed to drop file digest", err, "path", string(key))
	}
}

func (p *Provider) hash(_ context.Context, in digestInput) (fingerprint, error) {
	f, err := os.Open(in.abs) // #nosec G304 -- path is confined to the root
	if err != nil {
		return fingerprint{}, fmt.Errorf("open %s: %w", in.abs, err)
	}
	defer func() { _ = f.Close() }()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return fingerprint{}, fmt.Errorf("read %s: %w", in.abs, err)
	}
	p.hashed.Add(1)
	return fingerprint{
		Size:    in.info.Size(),
		ModTime: in.info.ModTime(),
		Digest:  fmt.Sprintf("%016x", h.Sum64()),
	}, nil
}

func (p *Provider) relPath(id identifier.ID) (string, error) {
	if !id.IsInstance() || id.ClassID() != Class {
		return "", fmt.Errorf("%w: %s", ErrWrongClass, id)
	}
	rel := path.Clean(id.InstanceKey())
	if path.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, id.InstanceKey())
	}
	return rel, nil
}
