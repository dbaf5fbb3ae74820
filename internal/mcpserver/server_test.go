package mcpserver

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/marginalia/internal/apperr"
	"github.com/starford/marginalia/internal/index"
	"github.com/starford/marginalia/internal/noteservice"
	"github.com/starford/marginalia/internal/syncer"
	"github.com/starford/marginalia/internal/testutil"
	"github.com/starford/marginalia/internal/writer"
)

type fakeRunner struct {
	busy bool
	err  error
	opts []syncer.Options
}

func (f *fakeRunner) Sync(_ context.Context, opts syncer.Options) (*syncer.Result, error) {
	if f.busy {
		return nil, apperr.ErrSyncInProgress
	}
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return nil, f.err
	}
	return &syncer.Result{Report: writer.Report{Created: 2, Unchanged: 1}}, nil
}

func (f *fakeRunner) Status() syncer.Status {
	return syncer.Status{State: syncer.Idle, Last: "ok"}
}

type testEnv struct {
	srv    *Server
	runner *fakeRunner
	put    func(path, content string)
}

func testServer(t *testing.T) *testEnv {
	t.Helper()
	_, store := testutil.TestVault(t)
	db := testutil.TestDB(t)
	runner := &fakeRunner{}
	svc := noteservice.NewService(store, db, "uri")
	return &testEnv{
		srv:    New(svc, runner, "test", FormatContract("Readwise", "uri", []string{"status"})),
		runner: runner,
		put: func(path, content string) {
			t.Helper()
			if err := store.Write(path, []byte(content)); err != nil {
				t.Fatal(err)
			}
			if err := index.IndexContent(db, path, []byte(content), "uri"); err != nil {
				t.Fatal(err)
			}
		},
	}
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so handlers are invoked directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "sync_now":
		result, err = srv.syncNow(ctx, req)
	case "sync_status":
		result, err = srv.syncStatus(ctx, req)
	case "find_document":
		result, err = srv.findDocument(ctx, req)
	case "read_document":
		result, err = srv.readDocument(ctx, req)
	case "list_notes":
		result, err = srv.listNotes(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestSyncNow(t *testing.T) {
	env := testServer(t)
	r := callTool(t, env.srv, "sync_now", map[string]any{"full": true})
	if r.IsError {
		t.Fatalf("sync_now error: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "2 created") {
		t.Errorf("summary = %q", resultText(r))
	}
	if len(env.runner.opts) != 1 || !env.runner.opts[0].Full {
		t.Errorf("opts = %+v", env.runner.opts)
	}
}

func TestSyncNow_Busy(t *testing.T) {
	env := testServer(t)
	env.runner.busy = true
	r := callTool(t, env.srv, "sync_now", map[string]any{})
	if !r.IsError || !strings.Contains(resultText(r), "already in progress") {
		t.Errorf("result = %q", resultText(r))
	}
}

func TestSyncStatus(t *testing.T) {
	env := testServer(t)
	r := callTool(t, env.srv, "sync_status", map[string]any{})
	if !strings.Contains(resultText(r), `"state": "idle"`) {
		t.Errorf("status = %q", resultText(r))
	}
}

func TestFindDocumentAndRead(t *testing.T) {
	env := testServer(t)
	env.put("Readwise/Books/A.md", "---\nuri: u1\n---\n# A\n")

	r := callTool(t, env.srv, "find_document", map[string]any{"identity": "u1"})
	if resultText(r) != "Readwise/Books/A.md" {
		t.Errorf("find = %q", resultText(r))
	}
	r = callTool(t, env.srv, "find_document", map[string]any{"identity": "u2"})
	if !r.IsError {
		t.Error("expected error for unknown identity")
	}

	r = callTool(t, env.srv, "read_document", map[string]any{"path": "Readwise/Books/A.md"})
	if resultText(r) != "---\nuri: u1\n---\n# A\n" {
		t.Errorf("read = %q", resultText(r))
	}
}

func TestReadNoteMissing(t *testing.T) {
	env := testServer(t)
	r := callTool(t, env.srv, "read_document", map[string]any{"path": "nope.md"})
	if !r.IsError {
		t.Error("expected error for missing file")
	}
}

func TestListNotes_Folder(t *testing.T) {
	env := testServer(t)
	env.put("Readwise/Books/A.md", "a")
	env.put("Readwise/Articles/B.md", "b")
	env.put("Readwise Other/C.md", "c")

	r := callTool(t, env.srv, "list_notes", map[string]any{"folder": "Readwise"})
	text := resultText(r)
	if text != "Readwise/Articles/B.md\nReadwise/Books/A.md" {
		t.Errorf("list = %q", text)
	}
}

func TestFormatContract(t *testing.T) {
	c := FormatContract("Readwise", "uri", []string{"status", "rating"})
	for _, want := range []string{"Readwise/<Category>/<Title>.md", "`uri`", "`duplicate: true`", "`status`, `rating`"} {
		if !strings.Contains(c, want) {
			t.Errorf("contract missing %q", want)
		}
	}
	if !strings.Contains(FormatContract("Readwise", "", nil), "tracking is disabled") {
		t.Error("untracked contract should say tracking is disabled")
	}
}
