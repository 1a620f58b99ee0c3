package engine

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hiveworks/hive/internal/domain/agent"
	"github.com/hiveworks/hive/internal/domain/permission"
)

// projectConfig is the optional per-project .hive.yaml. Values fill gaps in
// a create request; explicit request fields always win.
type projectConfig struct {
	Provider       string   `yaml:"provider"`
	Model          string   `yaml:"model"`
	PermissionMode string   `yaml:"permission_mode"`
	SystemPrompt   string   `yaml:"system_prompt"`
	Skills         []string `yaml:"skills"`
}

// mergeProjectConfig merges .hive.yaml from the project directory into req.
// A missing or unreadable file is ignored.
func (e *Engine) mergeProjectConfig(req *agent.CreateRequest) {
	if req.ProjectPath == "" {
		return
	}
	path := filepath.Join(req.ProjectPath, ".hive.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	var pc projectConfig
	if err := yaml.Unmarshal(data, &pc); err != nil {
		slog.Warn("parse project config", "path", path, "error", err)
		return
	}

	if req.Provider == "" {
		req.Provider = pc.Provider
	}
	if req.Model == "" {
		req.Model = pc.Model
	}
	if req.PermissionMode == "" && pc.PermissionMode != "" {
		req.PermissionMode = permission.Mode(pc.PermissionMode)
	}
	if pc.SystemPrompt != "" {
		if req.SystemPrompt == "" {
			req.SystemPrompt = pc.SystemPrompt
		} else {
			req.SystemPrompt = strings.TrimSpace(pc.SystemPrompt) + "\n\n" + req.SystemPrompt
		}
	}
	for _, s := range pc.Skills {
		if !contains(req.SkillIDs, s) {
			req.SkillIDs = append(req.SkillIDs, s)
		}
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
