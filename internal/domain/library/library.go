package library

import (
	_ "embed"
	"fmt"
	"math/rand"
	"os"
	"readalong/internal/domain/story"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var presetsYAML []byte

// StoryLibrary represents a collection of stories from one source
type StoryLibrary struct {
	Name    string       `yaml:"name"`
	Stories []story.Item `yaml:"stories"`
}

// Presets returns the catalog bundled with the binary.
func Presets() (*StoryLibrary, error) {
	lib, err := decode(presetsYAML)
	if err != nil {
		return nil, fmt.Errorf("failed to decode bundled presets: %w", err)
	}
	lib.Name = "Preset Stories"
	return lib, nil
}

// LoadFile reads a user catalog from disk.
func LoadFile(path string) (*StoryLibrary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	lib, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode catalog file %s: %w", path, err)
	}
	if lib.Name == "" {
		lib.Name = path
	}

	logrus.WithFields(logrus.Fields{
		"stories": len(lib.Stories),
		"file":    path,
	}).Info("Loaded story catalog")

	return lib, nil
}

func decode(data []byte) (*StoryLibrary, error) {
	var lib StoryLibrary
	if err := yaml.Unmarshal(data, &lib); err != nil {
		return nil, err
	}

	for i, s := range lib.Stories {
		if strings.TrimSpace(s.ID) == "" {
			return nil, fmt.Errorf("story %d has no id", i)
		}
		if strings.TrimSpace(s.Content) == "" {
			return nil, fmt.Errorf("story %q has no content", s.ID)
		}
	}
	return &lib, nil
}

// Catalog merges libraries; later libraries shadow earlier stories with the same ID.
type Catalog struct {
	libraries []StoryLibrary
}

func NewCatalog(libs ...*StoryLibrary) *Catalog {
	c := &Catalog{}
	for _, l := range libs {
		if l != nil {
			c.libraries = append(c.libraries, *l)
		}
	}
	return c
}

func (c *Catalog) Libraries() []StoryLibrary {
	return c.libraries
}

// Stories lists every story, optionally restricted to a category.
func (c *Catalog) Stories(category string) []story.Item {
	seen := make(map[string]int)
	var all []story.Item
	for _, lib := range c.libraries {
		for _, s := range lib.Stories {
			if category != "" && !strings.EqualFold(string(s.Category), category) {
				continue
			}
			if i, ok := seen[s.ID]; ok {
				all[i] = s
				continue
			}
			seen[s.ID] = len(all)
			all = append(all, s)
		}
	}
	return all
}

func (c *Catalog) Find(id string) (story.Item, bool) {
	for _, s := range c.Stories("") {
		if s.ID == id {
			return s, true
		}
	}
	return story.Item{}, false
}

func (c *Catalog) Random() (story.Item, bool) {
	all := c.Stories("")
	if len(all) == 0 {
		return story.Item{}, false
	}
	return all[rand.Intn(len(all))], true
}
