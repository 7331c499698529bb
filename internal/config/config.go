// Package config resolves loopwatch settings from flags, the optional
// project file, dotenv files and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/loopwatch/internal/agent"
)

// FileName is the optional per-project settings file.
const FileName = ".loopwatch.yaml"

const (
	EnvLinearAPIKey = "LINEAR_API_KEY"
	EnvClaudeBin    = "LOOPWATCH_CLAUDE_BIN"
)

// DefaultMaxIterations bounds a run when nothing else is configured.
const DefaultMaxIterations = 100

// RequiredEnv lists variables that must be set before any session starts.
var RequiredEnv = []string{EnvLinearAPIKey}

// File mirrors .loopwatch.yaml. Zero values mean "not set".
type File struct {
	Model         string `yaml:"model"`
	MaxIterations int    `yaml:"max_iterations"`
	GateFile      string `yaml:"gate_file"`
	PromptsDir    string `yaml:"prompts_dir"`
	AppSpec       string `yaml:"app_spec"`
	LinearMCPURL  string `yaml:"linear_mcp_url"`
	ClaudeBin     string `yaml:"claude_bin"`
}

// Config is the resolved configuration of one run.
type Config struct {
	ProjectDir    string
	Model         string
	MaxIterations int
	InitOnly      bool
	SkipInit      bool

	GateFile     string
	PromptsDir   string
	AppSpec      string
	LinearMCPURL string
	ClaudeBin    string
	LinearAPIKey string
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		ProjectDir:    ".",
		Model:         agent.DefaultModel,
		MaxIterations: DefaultMaxIterations,
		LinearMCPURL:  agent.DefaultLinearMCPURL,
		ClaudeBin:     "claude",
	}
}

// LoadFile reads <projectDir>/.loopwatch.yaml. A missing file is not an
// error and yields the zero File.
func LoadFile(projectDir string) (File, error) {
	var f File
	data, err := os.ReadFile(filepath.Join(projectDir, FileName))
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return f, fmt.Errorf("config: read %s: %w", FileName, err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("config: parse %s: %w", FileName, err)
	}
	return f, nil
}

// Merge fills c from f for every setting whose flag was not set explicitly.
// flagSet reports whether the flag with the given name was set.
func (c *Config) Merge(f File, flagSet func(name string) bool) {
	if f.Model != "" && !flagSet("model") {
		c.Model = f.Model
	}
	if f.MaxIterations != 0 && !flagSet("max-iterations") {
		c.MaxIterations = f.MaxIterations
	}
	if f.GateFile != "" && !flagSet("gate") {
		c.GateFile = f.GateFile
	}
	if f.PromptsDir != "" && !flagSet("prompts-dir") {
		c.PromptsDir = f.PromptsDir
	}
	if f.AppSpec != "" && !flagSet("app-spec") {
		c.AppSpec = f.AppSpec
	}
	if f.LinearMCPURL != "" {
		c.LinearMCPURL = f.LinearMCPURL
	}
	if f.ClaudeBin != "" {
		c.ClaudeBin = f.ClaudeBin
	}
}

// ApplyEnv reads credentials and overrides from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	c.LinearAPIKey = getenv(EnvLinearAPIKey)
	if bin := getenv(EnvClaudeBin); bin != "" {
		c.ClaudeBin = bin
	}
}

// Resolve makes ProjectDir absolute and resolves the file settings relative
// to it.
func (c *Config) Resolve() error {
	abs, err := filepath.Abs(c.ProjectDir)
	if err != nil {
		return fmt.Errorf("config: resolve project dir: %w", err)
	}
	c.ProjectDir = abs
	c.GateFile = c.relative(c.GateFile)
	c.PromptsDir = c.relative(c.PromptsDir)
	c.AppSpec = c.relative(c.AppSpec)
	return nil
}

func (c *Config) relative(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.ProjectDir, p)
}

// Validate checks everything that must hold before a session starts.
func (c Config) Validate() error {
	info, err := os.Stat(c.ProjectDir)
	if err != nil {
		return fmt.Errorf("project directory does not exist: %s", c.ProjectDir)
	}
	if !info.IsDir() {
		return fmt.Errorf("project directory is not a directory: %s", c.ProjectDir)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max iterations must be positive, got %d", c.MaxIterations)
	}
	if c.InitOnly && c.SkipInit {
		return errors.New("--init-only and --skip-init cannot be combined")
	}
	return nil
}

// LoadDotEnv loads .env from each directory that has one. Variables already
// in the environment are kept. It returns the files loaded.
func LoadDotEnv(dirs ...string) ([]string, error) {
	var loaded []string
	seen := map[string]bool{}
	for _, dir := range dirs {
		path, err := filepath.Abs(filepath.Join(dir, ".env"))
		if err != nil || seen[path] {
			continue
		}
		seen[path] = true
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return loaded, fmt.Errorf("config: load %s: %w", path, err)
		}
		loaded = append(loaded, path)
	}
	return loaded, nil
}

// MissingEnv returns the required variables that are unset or empty.
func MissingEnv(getenv func(string) string) []string {
	var missing []string
	for _, v := range RequiredEnv {
		if getenv(v) == "" {
			missing = append(missing, v)
		}
	}
	return missing
}

// MissingEnvMessage explains how to set the missing variables.
func MissingEnvMessage(missing []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error: Missing required environment variables: %s\n", strings.Join(missing, ", "))
	b.WriteString("\nSet these in your environment or .env file:\n")
	for _, v := range missing {
		fmt.Fprintf(&b, "  export %s=your-value\n", v)
	}
	return b.String()
}
