package prompts

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"soundscribe/internal/services"
)

func TestDefaultsCatalog(t *testing.T) {
	catalog := Defaults()
	if len(catalog.All()) != 3 {
		t.Fatalf("expected 3 default prompts, got %d", len(catalog.All()))
	}
	if _, ok := catalog.Get("summary"); !ok {
		t.Fatal("expected summary prompt")
	}
	ids := catalog.IDs()
	if ids[0] != "summary" || ids[1] != "transcript" || ids[2] != "action-items" {
		t.Fatalf("unexpected order: %v", ids)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	catalog, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := catalog.Get("transcript"); !ok {
		t.Fatal("expected default catalog")
	}
}

func TestLoadCustomCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.toml")
	body := `
[[prompts]]
id = "minutes"
name = "Meeting Minutes"
text = "Write structured meeting minutes."

[[prompts]]
id = "quotes"
text = "Extract notable quotes."
model = "demo-model"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write prompts: %v", err)
	}
	catalog, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	prompt, ok := catalog.Get("quotes")
	if !ok {
		t.Fatal("expected quotes prompt")
	}
	if prompt.Name != "quotes" {
		t.Fatalf("expected name to default to id, got %q", prompt.Name)
	}
	if prompt.Model != "demo-model" {
		t.Fatalf("expected model override, got %q", prompt.Model)
	}
}

func TestLoadRejectsDuplicateIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.toml")
	body := `
[[prompts]]
id = "summary"
text = "one"

[[prompts]]
id = "summary"
text = "two"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write prompts: %v", err)
	}
	if _, err := Load(path); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestSelectUnknownID(t *testing.T) {
	catalog := Defaults()
	if _, err := catalog.Select([]string{"summary", "nope"}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
	selected, err := catalog.Select([]string{"transcript"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(selected) != 1 || selected[0].ID != "transcript" {
		t.Fatalf("unexpected selection: %+v", selected)
	}
}
