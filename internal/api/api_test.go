package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/starford/marknest/internal/auth"
	"github.com/starford/marknest/internal/filetree"
	"github.com/starford/marknest/internal/sse"
	"github.com/starford/marknest/internal/storage"
	"github.com/starford/marknest/internal/testutil"
)

type testEnv struct {
	router http.Handler
	files  *filetree.Service
	broker *sse.Broker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.TestDB(t)
	broker := sse.NewBroker(50 * time.Millisecond)
	t.Cleanup(broker.Close)

	files := filetree.New(testutil.TestSandbox(t), storage.NewFS(), db, filetree.WithNotifier(broker))
	accounts := auth.New(db, "api-test-secret-0123456789", time.Hour, auth.WithBcryptCost(bcrypt.MinCost))
	router := NewRouter(Deps{
		Files:      files,
		Accounts:   accounts,
		Events:     broker,
		Feed:       FeedLimits{Default: 2, Max: 3},
		LoginRate:  100,
		LoginBurst: 100,
	})
	return &testEnv{router: router, files: files, broker: broker}
}

func (e *testEnv) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// signup registers name and returns its bearer token and user id.
func (e *testEnv) signup(t *testing.T, name string) (token, id string) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": name, "email": name + "@example.com", "password": "password123",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body = %s", w.Code, w.Body.String())
	}
	var u struct {
		ID string `json:"id"`
	}
	decode(t, w, &u)

	w = e.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": name + "@example.com", "password": "password123",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", w.Code, w.Body.String())
	}
	var tok auth.Token
	decode(t, w, &tok)
	if tok.TokenType != "bearer" {
		t.Errorf("token_type = %q", tok.TokenType)
	}
	return tok.AccessToken, u.ID
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

func TestRegisterLoginMe(t *testing.T) {
	e := newTestEnv(t)
	token, id := e.signup(t, "alice")

	w := e.do(t, http.MethodGet, "/auth/me", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("me status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, id) || strings.Contains(body, "password") {
		t.Errorf("me body = %s", body)
	}

	w = e.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": "alice", "email": "other@example.com", "password": "password123",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d", w.Code)
	}
	w = e.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong-password",
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad login status = %d", w.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	e := newTestEnv(t)
	for _, target := range []string{"/files/tree", "/files/metadata", "/auth/me", "/events"} {
		if w := e.do(t, http.MethodGet, target, "", nil); w.Code != http.StatusUnauthorized {
			t.Errorf("%s without token status = %d", target, w.Code)
		}
		if w := e.do(t, http.MethodGet, target, "garbage", nil); w.Code != http.StatusUnauthorized {
			t.Errorf("%s with bad token status = %d", target, w.Code)
		}
	}
}

func TestFileLifecycle(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.signup(t, "alice")

	w := e.do(t, http.MethodPost, "/files", token, WriteFileRequest{
		Path: "algorithms/sorting.md", Content: "# Sort\n\nBubble sort...",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var rec Record
	decode(t, w, &rec)
	if rec.Title != "Sorting" || rec.Preview != "# Sort  Bubble sort..." || rec.IsPublic {
		t.Errorf("record = %+v", rec)
	}

	w = e.do(t, http.MethodGet, "/files/tree", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("tree status = %d", w.Code)
	}
	want := `{"tree":[{"name":"algorithms","path":"algorithms","type":"folder","children":[{"name":"sorting.md","path":"algorithms/sorting.md","type":"file","id":"` +
		rec.ID + `","title":"Sorting","is_public":false}]}]}`
	if got := strings.TrimSpace(w.Body.String()); got != want {
		t.Errorf("tree:\n got %s\nwant %s", got, want)
	}

	w = e.do(t, http.MethodGet, "/files/content?path=algorithms/sorting.md", token, nil)
	if w.Code != http.StatusOK || w.Header().Get("ETag") == "" {
		t.Fatalf("content status = %d, etag = %q", w.Code, w.Header().Get("ETag"))
	}
	var content ContentResponse
	decode(t, w, &content)
	if content.Content != "# Sort\n\nBubble sort..." {
		t.Errorf("content = %q", content.Content)
	}

	w = e.do(t, http.MethodPut, "/files", token, WriteFileRequest{Path: "algorithms/sorting.md", Content: "v2"})
	if w.Code != http.StatusOK {
		t.Errorf("update status = %d", w.Code)
	}

	w = e.do(t, http.MethodGet, "/files/search?q=v2", token, nil)
	var sr SearchResponse
	decode(t, w, &sr)
	if sr.Count != 1 || sr.Results[0].Path != "algorithms/sorting.md" {
		t.Errorf("search = %+v", sr)
	}

	if w := e.do(t, http.MethodDelete, "/files?path=algorithms/sorting.md", token, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", w.Code)
	}
	if w := e.do(t, http.MethodDelete, "/files?path=algorithms/sorting.md", token, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d", w.Code)
	}
	w = e.do(t, http.MethodGet, "/files/metadata", token, nil)
	if got := strings.TrimSpace(w.Body.String()); got != `{"files":[]}` {
		t.Errorf("metadata = %s", got)
	}
}

func TestWriteIfMatchPrecondition(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.signup(t, "erin")
	_ = e.do(t, http.MethodPost, "/files", token, WriteFileRequest{Path: "a.md", Content: "v1"})
	etag := e.do(t, http.MethodGet, "/files/content?path=a.md", token, nil).Header().Get("ETag")

	put := func(content string) int {
		data, _ := json.Marshal(WriteFileRequest{Path: "a.md", Content: content})
		req := httptest.NewRequest(http.MethodPut, "/files", bytes.NewReader(data))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("If-Match", etag)
		w := httptest.NewRecorder()
		e.router.ServeHTTP(w, req)
		return w.Code
	}
	if code := put("v2"); code != http.StatusOK {
		t.Fatalf("first conditional put = %d", code)
	}
	if code := put("v3"); code != http.StatusPreconditionFailed {
		t.Errorf("stale conditional put = %d, want 412", code)
	}
}

func TestErrorMapping(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.signup(t, "alice")

	cases := []struct {
		method, target string
		body           any
		want           int
	}{
		{http.MethodPost, "/files", WriteFileRequest{Path: "../x.md"}, http.StatusBadRequest},
		{http.MethodPost, "/files", WriteFileRequest{Path: "x.txt"}, http.StatusBadRequest},
		{http.MethodGet, "/files/content?path=missing.md", nil, http.StatusNotFound},
		{http.MethodGet, "/files/content", nil, http.StatusBadRequest},
		{http.MethodGet, "/files/search", nil, http.StatusBadRequest},
		{http.MethodPost, "/folders", FolderRequest{Path: "dir"}, http.StatusCreated},
		{http.MethodPost, "/folders", FolderRequest{Path: "dir"}, http.StatusConflict},
		{http.MethodDelete, "/files?path=dir", nil, http.StatusBadRequest},
		{http.MethodDelete, "/folders?path=nope", nil, http.StatusNotFound},
		{http.MethodPost, "/folders/copy", CopyFolderRequest{SourcePath: "nope", DestPath: "x"}, http.StatusNotFound},
		{http.MethodPatch, "/files/unknown/visibility", map[string]bool{"is_public": true}, http.StatusNotFound},
		{http.MethodPatch, "/files/unknown/visibility", map[string]string{}, http.StatusBadRequest},
		{http.MethodPost, "/files", WriteFileRequest{Path: "notes.md", Content: "n"}, http.StatusCreated},
		{http.MethodGet, "/files/content?path=notes.md/child.md", nil, http.StatusNotFound},
		{http.MethodDelete, "/files?path=notes.md/child.md", nil, http.StatusNotFound},
		{http.MethodDelete, "/folders?path=notes.md/sub", nil, http.StatusNotFound},
		{http.MethodPost, "/files", WriteFileRequest{Path: "notes.md/child.md"}, http.StatusBadRequest},
		{http.MethodPost, "/folders", FolderRequest{Path: "notes.md/sub"}, http.StatusBadRequest},
	}
	for _, c := range cases {
		if w := e.do(t, c.method, c.target, token, c.body); w.Code != c.want {
			t.Errorf("%s %s status = %d, want %d (%s)", c.method, c.target, w.Code, c.want, w.Body.String())
		}
	}
}

func TestVisibilityAndPublicFeed(t *testing.T) {
	e := newTestEnv(t)
	alice, aliceID := e.signup(t, "alice")
	bob, _ := e.signup(t, "bob")

	var rec Record
	decode(t, e.do(t, http.MethodPost, "/files", alice, WriteFileRequest{Path: "pub.md", Content: "hello"}), &rec)

	// Another user cannot toggle, and learns nothing about existence.
	if w := e.do(t, http.MethodPatch, "/files/"+rec.ID+"/visibility", bob, map[string]bool{"is_public": true}); w.Code != http.StatusNotFound {
		t.Errorf("foreign toggle status = %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/public/notes/"+rec.ID+"/content", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("private note status = %d", w.Code)
	}

	if w := e.do(t, http.MethodPatch, "/files/"+rec.ID+"/visibility", alice, map[string]bool{"is_public": true}); w.Code != http.StatusOK {
		t.Fatalf("toggle status = %d", w.Code)
	}

	var feed FeedResponse
	decode(t, e.do(t, http.MethodGet, "/public/notes", "", nil), &feed)
	if len(feed.Notes) != 1 || feed.Notes[0].Author != "alice" || feed.Notes[0].AuthorID != aliceID {
		t.Fatalf("feed = %+v", feed)
	}
	if feed.Limit != 2 {
		t.Errorf("default limit = %d", feed.Limit)
	}

	w := e.do(t, http.MethodGet, "/public/notes/"+rec.ID+"/content", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"content":"hello"`) {
		t.Errorf("public content = %d %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "pub.md") {
		t.Errorf("public content leaks path: %s", w.Body.String())
	}

	decode(t, e.do(t, http.MethodGet, "/public/users/"+aliceID+"/notes?limit=50", "", nil), &feed)
	if len(feed.Notes) != 1 || feed.Limit != 3 {
		t.Errorf("user feed = %+v", feed)
	}
	if w := e.do(t, http.MethodGet, "/public/users/nobody/notes", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown owner status = %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/public/notes?limit=0", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", w.Code)
	}
}

func TestFolderCopyAndDelete(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.signup(t, "alice")
	e.do(t, http.MethodPost, "/files", token, WriteFileRequest{Path: "a/x.md", Content: "x"})

	if w := e.do(t, http.MethodPost, "/folders/copy", token, CopyFolderRequest{SourcePath: "a", DestPath: "a-copy"}); w.Code != http.StatusCreated {
		t.Fatalf("copy status = %d, body = %s", w.Code, w.Body.String())
	}
	if w := e.do(t, http.MethodPost, "/folders/copy", token, CopyFolderRequest{SourcePath: "a", DestPath: "a-copy"}); w.Code != http.StatusConflict {
		t.Errorf("second copy status = %d", w.Code)
	}
	if w := e.do(t, http.MethodDelete, "/folders?path=a", token, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete folder status = %d", w.Code)
	}
	var md MetadataResponse
	decode(t, e.do(t, http.MethodGet, "/files/metadata", token, nil), &md)
	if len(md.Files) != 1 || md.Files[0].Path != "a-copy/x.md" {
		t.Errorf("metadata = %+v", md.Files)
	}
}

func TestDeleteAccount(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.signup(t, "alice")
	e.do(t, http.MethodPost, "/files", token, WriteFileRequest{Path: "a.md", Content: "a"})

	if w := e.do(t, http.MethodDelete, "/auth/me", token, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete account status = %d, body = %s", w.Code, w.Body.String())
	}
	if w := e.do(t, http.MethodGet, "/files/tree", token, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("token of deleted account status = %d", w.Code)
	}
}

func TestLoginRateLimited(t *testing.T) {
	db := testutil.TestDB(t)
	files := filetree.New(testutil.TestSandbox(t), storage.NewFS(), db)
	router := NewRouter(Deps{
		Files:      files,
		Accounts:   auth.New(db, "api-test-secret-0123456789", time.Hour, auth.WithBcryptCost(bcrypt.MinCost)),
		LoginRate:  0.001,
		LoginBurst: 2,
	})
	body := `{"email":"x@example.com","password":"password123"}`
	codes := make([]int, 3)
	for i := range codes {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body)))
		codes[i] = w.Code
	}
	if codes[0] != http.StatusUnauthorized || codes[1] != http.StatusUnauthorized || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v", codes)
	}
}

func TestEventsStreamForCaller(t *testing.T) {
	e := newTestEnv(t)
	token, id := e.signup(t, "alice")

	srv := httptest.NewServer(e.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events?access_token="+token, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Fatalf("events status = %d, type = %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	deadline := time.Now().Add(time.Second)
	for e.broker.ClientCount(id) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	e.do(t, http.MethodPost, "/folders", token, FolderRequest{Path: "fresh"})

	buf := make([]byte, 512)
	n, err := resp.Body.Read(buf)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if !strings.Contains(string(buf[:n]), "event: folder.created") {
		t.Errorf("stream = %q", buf[:n])
	}
}
