// Package skill defines skill bundles: named sets of instruction files that
// are appended to an agent's system context when applied.
package skill

// FileTypeInstructions marks a file whose content becomes a system message.
const FileTypeInstructions = "instructions"

// File is a single file inside a skill bundle.
type File struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Skill is a reusable bundle of instruction files.
type Skill struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Files []File `json:"files"`
}
