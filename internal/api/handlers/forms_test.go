package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"

	"github.com/chakravue/fieldeval/internal/field"
	"github.com/chakravue/fieldeval/internal/form"
)

func newTestServer(t *testing.T) (*httptest.Server, *FormHandler) {
	t.Helper()
	store := form.NewStore(form.Config{}, form.Deps{})
	t.Cleanup(store.Close)

	h := NewFormHandler(store, nil)
	r := chi.NewRouter()
	r.Mount("/api/v1/forms", h.Routes())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, h
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func createForm(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	var created FormResponse
	if code := do(t, srv, http.MethodPost, "/api/v1/forms/", nil, &created); code != http.StatusCreated {
		t.Fatalf("create form: status %d", code)
	}
	return created.ID
}

func TestFormLifecycle(t *testing.T) {
	srv, h := newTestServer(t)
	var (
		mu     sync.Mutex
		counts []int
	)
	h.OnFormsChanged = func(n int) {
		mu.Lock()
		defer mu.Unlock()
		counts = append(counts, n)
	}

	id := createForm(t, srv)
	base := "/api/v1/forms/" + id

	var snap field.Snapshot
	code := do(t, srv, http.MethodPost, base+"/fields", form.FieldSpec{ID: "od", Value: "14", Editable: true, DisableEval: true}, &snap)
	if code != http.StatusCreated {
		t.Fatalf("mount: status %d", code)
	}
	if snap.Display != "14" || snap.Mode != field.ModeViewing {
		t.Errorf("unexpected mount snapshot %+v", snap)
	}

	if code := do(t, srv, http.MethodPost, base+"/fields/od/edit", nil, &snap); code != http.StatusOK || snap.Mode != field.ModeEditing {
		t.Fatalf("edit: status %d mode %s", code, snap.Mode)
	}
	if code := do(t, srv, http.MethodPost, base+"/fields/od/input", ValueRequest{Value: " 18 "}, &snap); code != http.StatusOK {
		t.Fatalf("input: status %d", code)
	}

	var view FormResponse
	if code := do(t, srv, http.MethodPost, base+"/fields/od/keys", KeyRequest{Key: "enter"}, &view); code != http.StatusOK {
		t.Fatalf("key: status %d", code)
	}
	if diff := cmp.Diff(map[string]string{"od": "18"}, view.Values); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}

	if code := do(t, srv, http.MethodDelete, base, nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete: status %d", code)
	}
	if code := do(t, srv, http.MethodGet, base, nil, nil); code != http.StatusNotFound {
		t.Errorf("get after delete: status %d", code)
	}
	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]int{1, 0}, counts); diff != "" {
		t.Errorf("form counts mismatch (-want +got):\n%s", diff)
	}
}

func TestErrorStatuses(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createForm(t, srv)
	base := "/api/v1/forms/" + id

	if code := do(t, srv, http.MethodPost, base+"/fields", form.FieldSpec{ID: "od", Editable: true}, nil); code != http.StatusCreated {
		t.Fatalf("mount: status %d", code)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown form", http.MethodGet, "/api/v1/forms/nope", nil, http.StatusNotFound},
		{"unknown field", http.MethodGet, base + "/fields/nope", nil, http.StatusNotFound},
		{"duplicate field", http.MethodPost, base + "/fields", form.FieldSpec{ID: "od"}, http.StatusConflict},
		{"unknown kind", http.MethodPost, base + "/fields", map[string]any{"id": "x", "kind": "email"}, http.StatusBadRequest},
		{"layout without field", http.MethodPost, base + "/fields", map[string]any{"id": "x", "layout": map[string]any{"role": "row"}}, http.StatusBadRequest},
		{"input while viewing", http.MethodPost, base + "/fields/od/input", ValueRequest{Value: "1"}, http.StatusConflict},
		{"unknown key", http.MethodPost, base + "/fields/od/keys", KeyRequest{Key: "f5"}, http.StatusBadRequest},
		{"bad body", http.MethodPut, base + "/fields/od/value", "not an object", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]string
			code := do(t, srv, tt.method, tt.path, tt.body, &body)
			if code != tt.want {
				t.Errorf("status = %d, want %d", code, tt.want)
			}
			if body["error"] == "" {
				t.Error("expected an error message")
			}
		})
	}
}

func TestTabMovesEditing(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createForm(t, srv)
	base := "/api/v1/forms/" + id

	for _, s := range []form.FieldSpec{
		{ID: "od", Value: "14", Editable: true, DisableEval: true},
		{ID: "os", Value: "16", Editable: true, DisableEval: true},
	} {
		if code := do(t, srv, http.MethodPost, base+"/fields", s, nil); code != http.StatusCreated {
			t.Fatalf("mount %s: status %d", s.ID, code)
		}
	}

	do(t, srv, http.MethodPost, base+"/fields/od/edit", nil, nil)
	var view FormResponse
	if code := do(t, srv, http.MethodPost, base+"/fields/od/keys", KeyRequest{Key: "tab"}, &view); code != http.StatusOK {
		t.Fatalf("tab: status %d", code)
	}

	modes := map[string]field.Mode{}
	for _, s := range view.Fields {
		modes[s.ID] = s.Mode
	}
	want := map[string]field.Mode{"od": field.ModeViewing, "os": field.ModeEditing}
	if diff := cmp.Diff(want, modes); diff != "" {
		t.Errorf("modes mismatch (-want +got):\n%s", diff)
	}
}

func TestSetEditableAndUnmount(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createForm(t, srv)
	base := "/api/v1/forms/" + id
	do(t, srv, http.MethodPost, base+"/fields", form.FieldSpec{ID: "axis", Value: "90", Editable: true}, nil)

	var snap field.Snapshot
	if code := do(t, srv, http.MethodPut, base+"/fields/axis/editable", EditableRequest{Editable: false}, &snap); code != http.StatusOK {
		t.Fatalf("editable: status %d", code)
	}
	if snap.Editable {
		t.Error("field should be read-only")
	}
	if code := do(t, srv, http.MethodPost, base+"/fields/axis/edit", nil, &snap); code != http.StatusOK || snap.Mode != field.ModeViewing {
		t.Errorf("edit on read-only: status %d mode %s", code, snap.Mode)
	}

	if code := do(t, srv, http.MethodDelete, base+"/fields/axis", nil, nil); code != http.StatusNoContent {
		t.Fatalf("unmount: status %d", code)
	}
	if code := do(t, srv, http.MethodDelete, base+"/fields/axis", nil, nil); code != http.StatusNotFound {
		t.Errorf("second unmount: status %d", code)
	}
}
