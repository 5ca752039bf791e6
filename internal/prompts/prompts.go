// Package prompts loads the read-only prompt catalog the pipeline applies
// against converted audio. Prompt management itself lives outside this
// program; a batch only ever sees a snapshot of the catalog.
package prompts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"soundscribe/internal/services"
)

// Prompt is one reusable instruction applied against a media blob.
type Prompt struct {
	ID    string `toml:"id"`
	Name  string `toml:"name"`
	Text  string `toml:"text"`
	Model string `toml:"model"`
}

// Catalog is an immutable, ordered prompt collection.
type Catalog struct {
	order   []string
	prompts map[string]Prompt
}

type catalogFile struct {
	Prompts []Prompt `toml:"prompts"`
}

// Defaults returns the built-in prompt catalog.
func Defaults() *Catalog {
	catalog, _ := newCatalog([]Prompt{
		{
			ID:   "summary",
			Name: "Summary",
			Text: "Summarize the recording in a few short paragraphs, covering the main topics and conclusions.",
		},
		{
			ID:   "transcript",
			Name: "Transcript",
			Text: "Produce a clean, readable transcript of the recording with speaker changes marked where audible.",
		},
		{
			ID:   "action-items",
			Name: "Action Items",
			Text: "List every action item, owner, and deadline mentioned in the recording as bullet points.",
		},
	})
	return catalog
}

// Load reads a prompt catalog from a TOML file, falling back to Defaults when
// the file does not exist.
func Load(path string) (*Catalog, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return Defaults(), nil
	}
	data, err := os.ReadFile(trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Defaults(), nil
		}
		return nil, fmt.Errorf("read prompts %s: %w", trimmed, err)
	}
	var parsed catalogFile
	if err := toml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse prompts %s: %w", trimmed, err)
	}
	if len(parsed.Prompts) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "prompts", "load", "prompt file defines no prompts", nil)
	}
	return newCatalog(parsed.Prompts)
}

func newCatalog(list []Prompt) (*Catalog, error) {
	catalog := &Catalog{prompts: make(map[string]Prompt, len(list))}
	for _, prompt := range list {
		prompt.ID = strings.TrimSpace(prompt.ID)
		prompt.Name = strings.TrimSpace(prompt.Name)
		if prompt.ID == "" {
			return nil, services.Wrap(services.ErrConfiguration, "prompts", "load", "prompt id must not be empty", nil)
		}
		if strings.TrimSpace(prompt.Text) == "" {
			return nil, services.Wrap(services.ErrConfiguration, "prompts", "load", fmt.Sprintf("prompt %s has empty text", prompt.ID), nil)
		}
		if _, exists := catalog.prompts[prompt.ID]; exists {
			return nil, services.Wrap(services.ErrConfiguration, "prompts", "load", fmt.Sprintf("duplicate prompt id %s", prompt.ID), nil)
		}
		if prompt.Name == "" {
			prompt.Name = prompt.ID
		}
		catalog.prompts[prompt.ID] = prompt
		catalog.order = append(catalog.order, prompt.ID)
	}
	return catalog, nil
}

// Get returns the prompt with the given identifier.
func (c *Catalog) Get(id string) (Prompt, bool) {
	prompt, ok := c.prompts[id]
	return prompt, ok
}

// Select resolves a set of prompt identifiers, failing on unknown ids.
func (c *Catalog) Select(ids []string) ([]Prompt, error) {
	selected := make([]Prompt, 0, len(ids))
	for _, id := range ids {
		prompt, ok := c.prompts[id]
		if !ok {
			return nil, services.Wrap(services.ErrNotFound, "prompts", "select", fmt.Sprintf("unknown prompt id %s", id), nil)
		}
		selected = append(selected, prompt)
	}
	return selected, nil
}

// All returns the catalog prompts in definition order.
func (c *Catalog) All() []Prompt {
	out := make([]Prompt, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.prompts[id])
	}
	return out
}

// IDs returns the prompt identifiers in definition order.
func (c *Catalog) IDs() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}
