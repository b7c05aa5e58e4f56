package manifest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/zjrosen/metagraph/internal/fileprovider"
	"github.com/zjrosen/metagraph/internal/identifier"
	"github.com/zjrosen/metagraph/internal/log"
	"github.com/zjrosen/metagraph/internal/metadata"
)

// ClassName is the class served by Provider.
const ClassName = "artifact"

// Class is the class identifier served by Provider.
var Class = identifier.MustClass(ClassName)

// ErrWrongClass is returned for identifiers outside the artifact class.
var ErrWrongClass = errors.New("identifier is not an artifact instance")

// ArtifactID returns the identifier of the artifact called name.
func ArtifactID(name string) (identifier.ID, error) {
	return identifier.NewInstance(ClassName, name)
}

// Input is the digest of one upstream as seen by the last computation.
// Digest is empty when the upstream reported nothing.
type Input struct {
	ID     identifier.ID
	Digest string
}

// Item is a computed artifact.
type Item struct {
	Identifier identifier.ID
	Name       string
	Digest     string
	Inputs     []Input
}

func (i *Item) ID() identifier.ID {
	return i.Identifier
}

// ContentDigest returns the combined digest of the artifact's inputs.
func (i *Item) ContentDigest() string {
	return i.Digest
}

// digester is implemented by items that summarize their content.
type digester interface {
	ContentDigest() string
}

// Provider computes artifacts from a manifest. Each computation replaces the
// artifact's upstream edges with its current inputs and dependencies, then
// reads them through the service so that a change to any of them is
// propagated back here.
type Provider struct {
	manifest *Manifest
	svc      *metadata.Service
	computed int
}

var _ metadata.Provider = (*Provider)(nil)

// NewProvider returns a provider for the artifacts of m. svc must be the
// service the provider is registered with.
func NewProvider(m *Manifest, svc *metadata.Service) *Provider {
	return &Provider{manifest: m, svc: svc}
}

// IDs returns the identifier of every artifact, sorted by name.
func (p *Provider) IDs() []identifier.ID {
	names := p.manifest.Names()
	ids := make([]identifier.ID, 0, len(names))
	for _, name := range names {
		ids = append(ids, identifier.MustInstance(ClassName, name))
	}
	return ids
}

// Computed returns how many artifacts have been computed.
func (p *Provider) Computed() int {
	return p.computed
}

func (p *Provider) ProvidesType() identifier.ID {
	return Class
}

// Get computes the artifact named by id. An artifact missing from the
// manifest yields a nil item.
func (p *Provider) Get(ctx context.Context, id identifier.ID) (metadata.Item, error) {
	if !id.IsInstance() || id.ClassID() != Class {
		return nil, fmt.Errorf("%w: %s", ErrWrongClass, id)
	}
	artifact, ok := p.manifest.Lookup(id.InstanceKey())
	if !ok {
		log.Debug(log.CatManifest, "Artifact not in manifest", "id", id)
		return nil, nil
	}

	upstreams, err := p.upstreams(artifact)
	if err != nil {
		return nil, err
	}

	reg := p.svc.Registry()
	if err := reg.DeregisterDependencies(id); err != nil {
		return nil, err
	}
	for _, up := range upstreams {
		if err := reg.RegisterDependency(up, id); err != nil {
			return nil, fmt.Errorf("artifact %q: %w", artifact.Name, err)
		}
	}

	inputs := make([]Input, 0, len(upstreams))
	for _, up := range upstreams {
		item, err := p.svc.Get(ctx, up, false)
		if err != nil {
			return nil, fmt.Errorf("artifact %q: %w", artifact.Name, err)
		}
		in := Input{ID: up}
		if d, ok := item.(digester); ok {
			in.Digest = d.ContentDigest()
		}
		inputs = append(inputs, in)
	}

	p.computed++
	digest := combine(artifact.Name, inputs)
	log.Debug(log.CatManifest, "Artifact computed", "id", id, "inputs", len(inputs), "digest", digest)

	return &Item{
		Identifier: id,
		Name:       artifact.Name,
		Digest:     digest,
		Inputs:     inputs,
	}, nil
}

// upstreams lists input files first, then artifact dependencies, each in
// manifest order.
func (p *Provider) upstreams(a Artifact) ([]identifier.ID, error) {
	ids := make([]identifier.ID, 0, len(a.Inputs)+len(a.DependsOn))
	for _, in := range a.Inputs {
		id, err := fileprovider.FileID(in)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	for _, dep := range a.DependsOn {
		id, err := ArtifactID(dep)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func combine(name string, inputs []Input) string {
	h := xxhash.New()
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('\n')
	for _, in := range inputs {
		b.WriteString(string(in.ID))
		b.WriteByte('=')
		b.WriteString(in.Digest)
		b.WriteByte('\n')
	}
	_, _ = h.WriteString(b.String())
	return fmt.Sprintf("%016x", h.Sum64())
}
