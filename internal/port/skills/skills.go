// Package skills defines the port for fetching skill bundles.
package skills

import (
	"context"

	"github.com/hiveworks/hive/internal/domain/skill"
)

// Service resolves skill ids to bundles.
type Service interface {
	// GetSkill returns the bundle for the given id, or domain.ErrNotFound.
	GetSkill(ctx context.Context, id string) (*skill.Skill, error)
}
