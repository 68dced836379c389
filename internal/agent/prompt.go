package agent

import (
	"embed"
	"os"
	"path/filepath"
	"strings"
)

//go:embed prompts/*.md
var defaultPromptFS embed.FS

// promptSections defines the section names and their assembly order.
// Each name corresponds to a file "{name}.md" in the embedded prompts/ directory.
var promptSections = []string{
	"identity",
	"policy",
	"tools",
	"communication",
	"errors",
}

// loadSystemPrompt assembles the system prompt from embedded defaults and
// user overrides. Override paths, lowest priority first:
//
//	~/.config/itaccess/prompts/{section}.md
//	{cwd}/.itaccess/prompts/{section}.md
//
// A file named _extra.md in any override directory is appended after all
// sections.
func loadSystemPrompt(cwd string) string {
	overrideDirs := promptOverrideDirs(cwd)

	var sections []string
	for _, name := range promptSections {
		if content := loadPromptSection(name, overrideDirs); content != "" {
			sections = append(sections, content)
		}
	}
	result := strings.Join(sections, "\n\n")

	for _, dir := range overrideDirs {
		if extra := readFileString(filepath.Join(dir, "_extra.md")); extra != "" {
			result += "\n\n" + extra
		}
	}
	return result
}

// loadPromptSection returns the highest-priority override of a section,
// falling back to the embedded default.
func loadPromptSection(name string, overrideDirs []string) string {
	filename := name + ".md"
	for i := len(overrideDirs) - 1; i >= 0; i-- {
		if content := readFileString(filepath.Join(overrideDirs[i], filename)); content != "" {
			return content
		}
	}
	data, err := defaultPromptFS.ReadFile("prompts/" + filename)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// promptOverrideDirs returns the existing override directories, lowest
// priority first.
func promptOverrideDirs(cwd string) []string {
	seen := make(map[string]bool)
	var dirs []string

	add := func(dir string) {
		abs, err := filepath.Abs(dir)
		if err != nil || seen[abs] {
			return
		}
		if info, err := os.Stat(abs); err != nil || !info.IsDir() {
			return
		}
		seen[abs] = true
		dirs = append(dirs, abs)
	}

	if home, err := os.UserHomeDir(); err == nil {
		add(filepath.Join(home, ".config", "itaccess", "prompts"))
	}
	if cwd != "" {
		add(filepath.Join(cwd, ".itaccess", "prompts"))
	}
	return dirs
}

func readFileString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
