// Package skilldir implements the skills port over a directory of skill
// bundles. Each bundle is a subdirectory whose skill.yaml manifest names the
// instruction files it carries.
package skilldir

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/hiveworks/hive/internal/domain"
	"github.com/hiveworks/hive/internal/domain/skill"
)

// manifest is the skill.yaml shape inside a bundle directory.
type manifest struct {
	Name  string `yaml:"name"`
	Files []struct {
		Type string `yaml:"type"`
		Path string `yaml:"path"`
	} `yaml:"files"`
}

// Service loads skill bundles from a directory tree.
type Service struct {
	root string
}

// NewService creates a skills service rooted at dir.
func NewService(dir string) *Service {
	return &Service{root: dir}
}

// GetSkill loads the bundle whose directory name matches id.
func (s *Service) GetSkill(ctx context.Context, id string) (*skill.Skill, error) {
	dir := filepath.Join(s.root, id)
	data, err := os.ReadFile(filepath.Join(dir, "skill.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("skill %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("read skill manifest %s: %w", id, err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse skill manifest %s: %w", id, err)
	}

	sk := &skill.Skill{ID: id, Name: m.Name}
	if sk.Name == "" {
		sk.Name = id
	}
	for _, f := range m.Files {
		content, err := os.ReadFile(filepath.Join(dir, f.Path))
		if err != nil {
			return nil, fmt.Errorf("read skill file %s/%s: %w", id, f.Path, err)
		}
		ft := f.Type
		if ft == "" {
			ft = skill.FileTypeInstructions
		}
		sk.Files = append(sk.Files, skill.File{Type: ft, Content: string(content)})
	}
	return sk, nil
}

// List returns the ids of all bundles under the root directory.
func (s *Service) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read skills dir: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, e.Name(), "skill.yaml")); err == nil {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}
