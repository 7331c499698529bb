// Package prompt builds the initializer and coding prompts.
package prompt

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	InitializerFile = "initializer_prompt.md"
	CodingFile      = "coding_prompt.md"
	AppSpecFile     = "app_spec.txt"
)

//go:embed templates/*.md
var templates embed.FS

// Loader reads prompt templates. The zero value uses the embedded templates
// and <project-dir>/app_spec.txt.
type Loader struct {
	// Dir holds template overrides. A template missing from Dir falls back
	// to the embedded one.
	Dir string
	// AppSpecPath overrides the application specification file.
	AppSpecPath string
}

// Initializer returns the initializer prompt for projectDir.
func Initializer(projectDir string) (string, error) {
	return Loader{}.Initializer(projectDir)
}

// Coding returns the coding prompt for projectDir.
func Coding(projectDir string) (string, error) {
	return Loader{}.Coding(projectDir)
}

// Initializer returns the initializer prompt with the application
// specification and project directory substituted.
func (l Loader) Initializer(projectDir string) (string, error) {
	tmpl, err := l.template(InitializerFile)
	if err != nil {
		return "", err
	}
	spec, err := l.appSpec(projectDir)
	if err != nil {
		return "", err
	}
	out := strings.ReplaceAll(tmpl, "{{APP_SPEC}}", spec)
	return strings.ReplaceAll(out, "{{PROJECT_DIR}}", projectDir), nil
}

// Coding returns the coding prompt with the project directory substituted.
func (l Loader) Coding(projectDir string) (string, error) {
	tmpl, err := l.template(CodingFile)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(tmpl, "{{PROJECT_DIR}}", projectDir), nil
}

func (l Loader) template(name string) (string, error) {
	if l.Dir != "" {
		data, err := os.ReadFile(filepath.Join(l.Dir, name))
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("prompt: read %s: %w", name, err)
		}
	}
	data, err := templates.ReadFile("templates/" + name)
	if err != nil {
		return "", fmt.Errorf("prompt: embedded %s: %w", name, err)
	}
	return string(data), nil
}

// ResolveAppSpec resolves where the application specification is read from:
// the explicit path, then the prompts directory, then the project directory.
func (l Loader) ResolveAppSpec(projectDir string) string {
	if l.AppSpecPath != "" {
		return l.AppSpecPath
	}
	if l.Dir != "" {
		p := filepath.Join(l.Dir, AppSpecFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(projectDir, AppSpecFile)
}

func (l Loader) appSpec(projectDir string) (string, error) {
	path := l.ResolveAppSpec(projectDir)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("prompt: app spec: %w", err)
	}
	return string(data), nil
}
