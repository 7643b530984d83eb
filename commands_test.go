package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"git.skobk.in/skobkin/study-group-sync/config"
	"git.skobk.in/skobkin/study-group-sync/course"
	"git.skobk.in/skobkin/study-group-sync/workflow"
)

type apiLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *apiLog) add(call string) {
	l.mu.Lock()
	l.calls = append(l.calls, call)
	l.mu.Unlock()
}

func (l *apiLog) has(prefix string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, c := range l.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func newTestApp(t *testing.T, in string) (*app, *bytes.Buffer, *apiLog) {
	t.Helper()

	log := &apiLog{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.add(r.Method + " " + r.URL.Path)

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/groups/created/u1":
			w.Write([]byte(`[{"id":"srv-1","name":"Algo night","code":"CS103","privacy":"PUBLIC","createdBy":"u1","members":["u1"],"memberCount":"1"}]`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/groups/joined/u1":
			w.Write([]byte(`[]`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/groups/available/u1":
			w.Write([]byte(`[{"id":"srv-2","name":"Calc crew","code":"MATH101","privacy":"PUBLIC","createdBy":"u2","members":["u2","u3"],"memberCount":2},` +
				`{"id":"srv-3","name":"Empty","code":"CS101","privacy":"PUBLIC","createdBy":"u4","members":[],"memberCount":0}]`))
		case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/api/groups/join/"):
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{}`))
		}
	}))
	t.Cleanup(server.Close)

	a, err := newApp(config.Config{
		APIBaseURL:   server.URL + "/api",
		APIToken:     "token",
		UserID:       "u1",
		APITimeout:   2 * time.Second,
		DatabasePath: filepath.Join(t.TempDir(), "data.sqlite"),
	})
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(a.close)

	out := &bytes.Buffer{}
	a.out = out
	a.in = strings.NewReader(in)
	return a, out, log
}

func TestListPrintsPartitions(t *testing.T) {
	a, out, _ := newTestApp(t, "")

	if err := a.run(context.Background(), "list", nil); err != nil {
		t.Fatalf("list: %v", err)
	}

	text := out.String()
	for _, want := range []string{"Owned (1)", "Algo night", "Joined (0)", "Available (1)", "Calc crew"} {
		if !strings.Contains(text, want) {
			t.Errorf("output misses %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "Empty") {
		t.Errorf("group without members listed:\n%s", text)
	}
}

func TestListJSON(t *testing.T) {
	a, out, _ := newTestApp(t, "")

	if err := a.run(context.Background(), "list", []string{"--json", "--search", "CALC"}); err != nil {
		t.Fatalf("list: %v", err)
	}

	var got struct {
		Source    string `json:"source"`
		Available []struct {
			ID string `json:"id"`
		} `json:"available"`
	}
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, out.String())
	}
	if got.Source != "remote" || len(got.Available) != 1 || got.Available[0].ID != "srv-2" {
		t.Errorf("got %+v", got)
	}
}

func TestDeleteAsksForConfirmation(t *testing.T) {
	a, out, log := newTestApp(t, "n\n")

	if err := a.run(context.Background(), "delete", []string{"srv-1"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !strings.Contains(out.String(), "Nothing deleted.") {
		t.Errorf("output = %q", out.String())
	}
	if log.has(http.MethodDelete) {
		t.Errorf("delete request sent without confirmation")
	}

	a, _, log = newTestApp(t, "yes\n")
	if err := a.run(context.Background(), "delete", []string{"srv-1"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !log.has("DELETE /api/groups/delete/srv-1/u1") {
		t.Errorf("delete request not sent: %v", log.calls)
	}
}

func TestCreateRejectsUnknownCourse(t *testing.T) {
	a, _, log := newTestApp(t, "")

	err := a.run(context.Background(), "create", []string{"--name", "Biology", "--course", "BIO999"})
	if !errors.Is(err, course.ErrUnknownCourse) {
		t.Fatalf("err = %v, want ErrUnknownCourse", err)
	}
	if log.has(http.MethodPost) {
		t.Errorf("create request sent for an unknown course")
	}
}

func TestCreateSendsCatalogCourse(t *testing.T) {
	a, out, log := newTestApp(t, "")

	if err := a.run(context.Background(), "create", []string{"--name", "Nets", "--course", "cs106", "--private"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !log.has("POST /api/groups") {
		t.Errorf("create request not sent: %v", log.calls)
	}
	if !strings.Contains(out.String(), `Created group "Nets"`) {
		t.Errorf("output = %q", out.String())
	}
}

func TestJoinFailsWhenGroupIsNotSavedLocally(t *testing.T) {
	a, out, _ := newTestApp(t, "")

	err := a.run(context.Background(), "join", []string{"srv-2"})
	if !errors.Is(err, workflow.ErrNotAvailableOffline) {
		t.Fatalf("err = %v, want ErrNotAvailableOffline", err)
	}
	if strings.Contains(out.String(), "Already a member") {
		t.Errorf("output = %q", out.String())
	}
	if !strings.Contains(out.String(), `Could not join "Calc crew": group not available offline`) {
		t.Errorf("output = %q", out.String())
	}
}

func TestCacheShowAndReset(t *testing.T) {
	a, out, _ := newTestApp(t, "y\n")
	ctx := context.Background()

	if err := a.store.Put(ctx, "studyGroups", []byte(`[{"id":"g1"}]`)); err != nil {
		t.Fatal(err)
	}
	if err := a.store.Put(ctx, "pendingGroups", []byte(`[]`)); err != nil {
		t.Fatal(err)
	}

	if err := a.run(ctx, "cache", nil); err != nil {
		t.Fatalf("cache: %v", err)
	}
	if !strings.Contains(out.String(), "Saved entries (2)") || !strings.Contains(out.String(), "studyGroups") {
		t.Errorf("output = %q", out.String())
	}

	if err := a.run(ctx, "cache", []string{"reset"}); err != nil {
		t.Fatalf("cache reset: %v", err)
	}
	if keys, err := a.store.Keys(ctx); err != nil || len(keys) != 0 {
		t.Errorf("keys after reset = %v, %v", keys, err)
	}

	if err := a.run(ctx, "cache", []string{"purge"}); !errors.Is(err, errUsage) {
		t.Errorf("err = %v, want errUsage", err)
	}
}

func TestUnknownCommand(t *testing.T) {
	a, _, _ := newTestApp(t, "")

	if err := a.run(context.Background(), "frobnicate", nil); !errors.Is(err, errUsage) {
		t.Errorf("err = %v, want errUsage", err)
	}
}

func TestAsk(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"y", true},
	}

	for _, tt := range tests {
		if got := ask(strings.NewReader(tt.in), &bytes.Buffer{}, "Sure?"); got != tt.want {
			t.Errorf("ask(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
