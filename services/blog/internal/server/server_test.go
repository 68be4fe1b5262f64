package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"recite/pkg/store"
	"recite/services/blog/internal/app"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	appCore, err := app.New(app.Config{Store: store.NewMemoryStore()})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	s, err := New(appCore, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

type postBody struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Published bool   `json:"published"`
}

func TestPostLifecycle(t *testing.T) {
	srv := newTestServer(t)

	status, data := call(t, srv, http.MethodPost, "/api/posts", `{"title":"Hello","content":"first"}`)
	if status != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", status, data)
	}
	var created postBody
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" || created.Title != "Hello" || created.Published {
		t.Fatalf("created = %+v", created)
	}

	status, data = call(t, srv, http.MethodPatch, "/api/posts/"+created.ID, `{"published":true}`)
	if status != http.StatusOK {
		t.Fatalf("patch status = %d, body %s", status, data)
	}
	var patched postBody
	_ = json.Unmarshal(data, &patched)
	if !patched.Published || patched.Content != "first" {
		t.Fatalf("patched = %+v", patched)
	}

	status, data = call(t, srv, http.MethodGet, "/api/posts", "")
	if status != http.StatusOK {
		t.Fatalf("list status = %d", status)
	}
	var list []postBody
	_ = json.Unmarshal(data, &list)
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("list = %+v", list)
	}

	if status, _ = call(t, srv, http.MethodDelete, "/api/posts/"+created.ID, ""); status != http.StatusNoContent {
		t.Fatalf("delete status = %d", status)
	}
	if status, _ = call(t, srv, http.MethodGet, "/api/posts/"+created.ID, ""); status != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", status)
	}
}

func TestPostErrors(t *testing.T) {
	srv := newTestServer(t)
	cases := []struct {
		name, method, path, body string
		status                   int
		code                     string
	}{
		{"blank title", http.MethodPost, "/api/posts", `{"title":" "}`, http.StatusBadRequest, codeInvalidRequest},
		{"bad json", http.MethodPost, "/api/posts", `{`, http.StatusBadRequest, codeInvalidRequest},
		{"unknown id", http.MethodGet, "/api/posts/nope", "", http.StatusNotFound, codePostNotFound},
		{"delete unknown", http.MethodDelete, "/api/posts/nope", "", http.StatusNotFound, codePostNotFound},
		{"nested path", http.MethodGet, "/api/posts/a/b", "", http.StatusNotFound, codeNotFound},
		{"bad method", http.MethodPut, "/api/posts", "", http.StatusMethodNotAllowed, codeMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, data := call(t, srv, tc.method, tc.path, tc.body)
			if status != tc.status {
				t.Fatalf("status = %d, want %d (body %s)", status, tc.status, data)
			}
			var body errorResponse
			if err := json.Unmarshal(data, &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Code != tc.code {
				t.Fatalf("code = %q, want %q", body.Code, tc.code)
			}
			if body.RequestID == "" {
				t.Fatalf("requestId missing")
			}
		})
	}
}
