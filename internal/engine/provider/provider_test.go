package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "yangkit/internal/core/errors"
	"yangkit/internal/core/watcher"
	"yangkit/internal/engine/parser"
	"yangkit/internal/engine/registry"
	"yangkit/internal/engine/source"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestSettable(t *testing.T) {
	t.Parallel()
	reg := registry.New("settable")
	id := source.NewIdentifier("foo", "2020-01-01")
	s := NewSettable(source.PotentialSource{Identifier: id, Type: source.TypeText, Cost: source.CostImmediate})
	defer s.Register(reg).Close()

	got := make(chan source.Representation, 1)
	go func() {
		rep, err := reg.FindProviders(id)[0].Provider.GetSource(context.Background(), id)
		if err == nil {
			got <- rep
		}
	}()

	_, err := s.Set(source.NewTextSource(source.NewIdentifier("bar", ""), "", nil))
	require.Error(t, err)
	_, err = s.Set(&fakeAST{id: id})
	require.Error(t, err)

	want := source.NewTextSource(id, "", []byte("module foo {}"))
	ok, err := s.Set(want)
	require.NoError(t, err)
	assert.True(t, ok)
	select {
	case rep := <-got:
		assert.Same(t, want, rep)
	case <-time.After(2 * time.Second):
		t.Fatal("pending fetch was not released")
	}

	assert.False(t, s.Fail(errors.New("late")))
}

func TestSettable_GetGivesUpWithContext(t *testing.T) {
	t.Parallel()
	s := NewSettable(source.PotentialSource{Identifier: source.NewIdentifier("foo", ""), Type: source.TypeText})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.GetSource(ctx, source.NewIdentifier("foo", ""))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	boom := errors.New("boom")
	assert.True(t, s.Fail(boom))
	_, err = s.GetSource(context.Background(), source.NewIdentifier("foo", ""))
	assert.ErrorIs(t, err, boom)
}

type fakeAST struct{ id source.SourceIdentifier }

func (f *fakeAST) Identifier() source.SourceIdentifier { return f.id }
func (f *fakeAST) Type() source.RepresentationType     { return source.TypeAST }

func TestFilesystem_Load(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "foo.yang", "module foo { namespace \"urn:foo\"; prefix f; revision 2021-01-01; revision 2020-01-01; }")
	writeFile(t, dir, "sub/bar-sub.yang", "submodule bar-sub { belongs-to bar { prefix b; } }")
	writeFile(t, dir, "broken.yang", "module broken {")
	writeFile(t, dir, "copy/foo.yang", "module foo { namespace \"urn:foo\"; prefix f; revision 2021-01-01; }")
	writeFile(t, dir, "README.md", "not a schema")

	reg := registry.New("fs")
	fs, err := NewFilesystem(reg, []string{dir}, watcher.Options{})
	require.NoError(t, err)
	defer fs.Close()
	require.NoError(t, fs.Load(context.Background()))

	assert.Equal(t, []source.SourceIdentifier{
		source.NewIdentifier("bar-sub", ""),
		source.NewIdentifier("foo", "2021-01-01"),
	}, fs.Sources())

	candidates := reg.FindProviders(source.NewIdentifier("foo", ""))
	require.Len(t, candidates, 1)
	assert.Equal(t, source.CostLocalIO, candidates[0].Source.Cost)
	rep, err := candidates[0].Provider.GetSource(context.Background(), candidates[0].Source.Identifier)
	require.NoError(t, err)
	text := rep.(*source.TextSource)
	assert.Equal(t, filepath.Join(dir, "copy", "foo.yang"), text.Origin)

	_, err = fs.GetSource(context.Background(), source.NewIdentifier("absent", ""))
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeSourceNotFound))

	require.NoError(t, fs.Close())
	assert.Zero(t, reg.Len())
}

func TestFilesystem_Refresh(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "foo.yang", "module foo { namespace \"urn:foo\"; prefix f; revision 2020-01-01; }")

	reg := registry.New("fs")
	fs, err := NewFilesystem(reg, []string{dir}, watcher.Options{})
	require.NoError(t, err)
	defer fs.Close()

	var mu sync.Mutex
	var changes [][]source.SourceIdentifier
	fs.OnChange = func(ids []source.SourceIdentifier) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, ids)
	}
	require.NoError(t, fs.Load(context.Background()))

	writeFile(t, dir, "foo.yang", "module foo { namespace \"urn:foo\"; prefix f; revision 2022-02-02; }")
	fs.Refresh([]string{path})
	assert.Equal(t, []source.SourceIdentifier{source.NewIdentifier("foo", "2022-02-02")}, fs.Sources())
	assert.Empty(t, reg.FindProviders(source.NewIdentifier("foo", "2020-01-01")))

	require.NoError(t, os.Remove(path))
	fs.Refresh([]string{path})
	assert.Empty(t, fs.Sources())
	assert.Zero(t, reg.Len())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, changes, 3)
	assert.Equal(t, []source.SourceIdentifier{
		source.NewIdentifier("foo", "2020-01-01"),
		source.NewIdentifier("foo", "2022-02-02"),
	}, changes[1])
}

func TestFilesystem_Watch(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	reg := registry.New("fs")
	fs, err := NewFilesystem(reg, []string{dir}, watcher.Options{Debounce: 20 * time.Millisecond})
	require.NoError(t, err)
	defer fs.Close()

	changed := make(chan []source.SourceIdentifier, 4)
	fs.OnChange = func(ids []source.SourceIdentifier) { changed <- ids }
	require.NoError(t, fs.Load(context.Background()))
	require.NoError(t, fs.Watch())

	writeFile(t, dir, "late.yang", "module late { namespace \"urn:late\"; prefix l; }")
	select {
	case ids := <-changed:
		assert.Equal(t, []source.SourceIdentifier{source.NewIdentifier("late", "")}, ids)
	case <-time.After(3 * time.Second):
		t.Fatal("new file was not advertised")
	}
	assert.Len(t, reg.FindProviders(source.NewIdentifier("late", "")), 1)
}

const remoteFoo = "module foo { namespace \"urn:foo\"; prefix f; revision 2020-01-01; }"

func TestRemote(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/models/foo@2020-01-01.yang", "/models/foo.yang":
			_, _ = w.Write([]byte(remoteFoo))
		case "/models/wrong.yang":
			_, _ = w.Write([]byte(remoteFoo))
		case "/models/broken.yang":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	var stored []*source.TextSource
	remote, err := NewRemote(RemoteOptions{
		BaseURL: srv.URL + "/models",
		OnFetched: func(_ context.Context, ts *source.TextSource) {
			stored = append(stored, ts)
		},
	})
	require.NoError(t, err)
	defer remote.Close()

	reg := registry.New("remote")
	regs := remote.Advertise(reg, source.NewIdentifier("foo", ""), source.NewIdentifier("foo", "2020-01-01"))
	require.Len(t, regs, 4)
	assert.Equal(t, source.CostRemoteIO, reg.FindProviders(source.NewIdentifier("foo", ""))[0].Source.Cost)

	ctx := context.Background()
	tests := []struct {
		name     string
		id       source.SourceIdentifier
		wantID   source.SourceIdentifier
		wantCode domainerrors.ErrorCode
	}{
		{name: "exact revision", id: source.NewIdentifier("foo", "2020-01-01"), wantID: source.NewIdentifier("foo", "2020-01-01")},
		{name: "revision resolved from body", id: source.NewIdentifier("foo", ""), wantID: source.NewIdentifier("foo", "2020-01-01")},
		{name: "missing", id: source.NewIdentifier("absent", ""), wantCode: domainerrors.CodeSourceNotFound},
		{name: "server error", id: source.NewIdentifier("broken", ""), wantCode: domainerrors.CodeInternal},
		{name: "body names another module", id: source.NewIdentifier("wrong", ""), wantCode: domainerrors.CodeSchemaSource},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			rep, err := remote.GetSource(ctx, tt.id)
			if tt.wantCode != "" {
				assert.True(t, domainerrors.IsCode(err, tt.wantCode), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, rep.Identifier())
			assert.Equal(t, remoteFoo, string(rep.(*source.TextSource).Content))
		})
	}
	assert.Len(t, stored, 2)
	assert.Equal(t, int32(5), hits.Load())
}

func TestRemote_ServesParsedBodyToASTRequests(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(remoteFoo))
	}))
	defer srv.Close()

	var parsed []*parser.ASTSource
	var fetched int
	remote, err := NewRemote(RemoteOptions{
		BaseURL:   srv.URL,
		OnFetched: func(context.Context, *source.TextSource) { fetched++ },
		OnParsed:  func(_ context.Context, ast *parser.ASTSource) { parsed = append(parsed, ast) },
	})
	require.NoError(t, err)
	defer remote.Close()

	reg := registry.New("remote")
	remote.Advertise(reg, source.NewIdentifier("foo", ""))
	candidates := reg.FindProviders(source.NewIdentifier("foo", ""))
	require.Len(t, candidates, 2)
	assert.Equal(t, source.TypeAST, candidates[0].Source.Type)
	assert.Equal(t, source.TypeText, candidates[1].Source.Type)

	rep, err := candidates[0].Provider.GetSource(context.Background(), candidates[0].Source.Identifier)
	require.NoError(t, err)
	ast, ok := rep.(*parser.ASTSource)
	require.True(t, ok, "got %T", rep)
	assert.Equal(t, source.NewIdentifier("foo", "2020-01-01"), ast.ID)
	assert.Equal(t, srv.URL+"/foo.yang", ast.Origin)

	require.Len(t, parsed, 1)
	assert.Same(t, ast, parsed[0])
	assert.Equal(t, 1, fetched)
	assert.Equal(t, int32(1), hits.Load())

	_, err = candidates[1].Provider.GetSource(context.Background(), candidates[1].Source.Identifier)
	require.NoError(t, err)
	assert.Len(t, parsed, 2)
}

func TestNewRemote_RejectsBadScheme(t *testing.T) {
	t.Parallel()
	_, err := NewRemote(RemoteOptions{BaseURL: "ftp://example.com"})
	assert.Error(t, err)
}
