package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	slogcontext "github.com/veqryn/slog-context"

	domainerrors "yangkit/internal/core/errors"
	"yangkit/internal/engine/parser"
	"yangkit/internal/engine/registry"
	"yangkit/internal/engine/source"
	"yangkit/internal/shared/util"
)

const maxRemoteSourceBytes = 8 << 20

// RemoteOptions configures a Remote provider.
type RemoteOptions struct {
	// BaseURL serves "<name>@<revision>.yang", or "<name>.yang" for
	// revision-less requests.
	BaseURL string
	Timeout time.Duration
	// RatePerSecond and Burst bound requests per host. Zero means unlimited.
	RatePerSecond float64
	Burst         int
	Client        *http.Client
	// OnFetched receives every source downloaded, for example to persist it.
	OnFetched func(context.Context, *source.TextSource)
	// OnParsed receives the AST parsed from every download.
	OnParsed func(context.Context, *parser.ASTSource)
}

// Remote fetches schema text over HTTP at remote I/O cost. It only serves
// identifiers it was told to advertise. Each body is parsed once, to learn
// its revision, and that AST is served directly to AST requests.
type Remote struct {
	base      *url.URL
	client    *http.Client
	limiters  *util.LimiterRegistry
	onFetched func(context.Context, *source.TextSource)
	onParsed  func(context.Context, *parser.ASTSource)
}

// remoteAST serves the parsed side of a Remote download.
type remoteAST struct{ r *Remote }

func (p remoteAST) GetSource(ctx context.Context, id source.SourceIdentifier) (source.Representation, error) {
	_, ast, err := p.r.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	return ast, nil
}

func NewRemote(opts RemoteOptions) (*Remote, error) {
	base, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("remote provider: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("remote provider: unsupported scheme %q", base.Scheme)
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Remote{
		base:      base,
		client:    client,
		limiters:  util.NewLimiterRegistry(opts.RatePerSecond, opts.Burst, 10*time.Minute),
		onFetched: opts.OnFetched,
		onParsed:  opts.OnParsed,
	}, nil
}

// Advertise registers ids in reg as AST and as text, both served by r. The
// AST advertisement goes first so equal-cost lookups skip a second parse.
func (r *Remote) Advertise(reg *registry.Registry, ids ...source.SourceIdentifier) []*registry.Registration {
	out := make([]*registry.Registration, 0, 2*len(ids))
	for _, id := range ids {
		out = append(out,
			reg.RegisterSource(remoteAST{r}, source.PotentialSource{Identifier: id, Type: source.TypeAST, Cost: source.CostRemoteIO}),
			reg.RegisterSource(r, source.PotentialSource{Identifier: id, Type: source.TypeText, Cost: source.CostRemoteIO}),
		)
	}
	return out
}

func (r *Remote) urlFor(id source.SourceIdentifier) string {
	return r.base.ResolveReference(&url.URL{Path: id.Key() + ".yang"}).String()
}

func (r *Remote) GetSource(ctx context.Context, id source.SourceIdentifier) (source.Representation, error) {
	text, _, err := r.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	return text, nil
}

func (r *Remote) fetch(ctx context.Context, id source.SourceIdentifier) (*source.TextSource, *parser.ASTSource, error) {
	if err := r.limiters.Get(r.base.Host).Wait(ctx, 1); err != nil {
		return nil, nil, err
	}
	target := r.urlFor(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil, &domainerrors.SourceNotFoundError{Source: id.String(), Err: errors.New(resp.Status)}
	case resp.StatusCode != http.StatusOK:
		return nil, nil, domainerrors.New(domainerrors.CodeInternal, fmt.Sprintf("fetch %s: %s", target, resp.Status))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteSourceBytes+1))
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", target, err)
	}
	if len(body) > maxRemoteSourceBytes {
		return nil, nil, domainerrors.New(domainerrors.CodeValidationError, fmt.Sprintf("fetch %s: body exceeds %d bytes", target, maxRemoteSourceBytes))
	}

	// The body names the concrete revision a revision-less request got.
	ast, err := parser.Transform(source.NewTextSource(id, target, body))
	if err != nil {
		return nil, nil, err
	}
	text := source.NewTextSource(ast.ID, target, body)
	slogcontext.FromCtx(ctx).Debug("remote source fetched", "source", text.ID.String(), "url", target, "bytes", len(body))
	if r.onFetched != nil {
		r.onFetched(ctx, text)
	}
	if r.onParsed != nil {
		r.onParsed(ctx, ast)
	}
	return text, ast, nil
}

// Close releases the per-host limiters.
func (r *Remote) Close() {
	r.limiters.Close()
}
