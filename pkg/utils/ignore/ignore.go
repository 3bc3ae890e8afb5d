package ignore

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/m-mizutani/goerr/v2"

	"github.com/chiliseed/chiliseed-cli/pkg/domain/types"
)

const (
	// FileName is the ignore file read from the working tree root
	FileName = ".gitignore"

	// DefaultStagingDir is the staging directory name excluded by default
	DefaultStagingDir = "_build"
)

// Matcher decides which paths of a working tree are excluded from a build package.
// A Matcher is immutable once compiled.
type Matcher struct {
	rules []string
	globs []glob.Glob
}

type config struct {
	stagingDir string
}

// Option configures Compile and Load
type Option func(*config)

// WithStagingDir sets the staging directory name excluded by the built-in rules
func WithStagingDir(name string) Option {
	return func(c *config) {
		c.stagingDir = name
	}
}

// builtinRules are always appended, whatever the ignore file says
func builtinRules(stagingDir string) []string {
	return []string{
		"*.pem",
		".git/*",
		filepath.ToSlash(stagingDir) + "/*",
		"*.tar.gz",
	}
}

// Load reads the ignore file at the root of the working tree and compiles it.
// A missing ignore file leaves only the built-in rules.
func Load(root string, opts ...Option) (*Matcher, error) {
	lines, err := readLines(filepath.Join(root, FileName))
	if err != nil {
		return nil, err
	}
	return Compile(root, lines, opts...)
}

// Compile normalizes raw ignore lines plus the built-in rules and compiles them.
// Directories are looked up relative to root.
func Compile(root string, rawLines []string, opts ...Option) (*Matcher, error) {
	cfg := &config{stagingDir: DefaultStagingDir}
	for _, opt := range opts {
		opt(cfg)
	}

	var lines []string
	for _, line := range rawLines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	lines = append(lines, builtinRules(cfg.stagingDir)...)

	m := &Matcher{}
	for _, line := range lines {
		rule := normalize(root, line)
		g, err := glob.Compile(rule)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to compile ignore pattern",
				goerr.T(types.ErrTagPatternCompile),
				goerr.V("pattern", line),
				goerr.V("rule", rule),
			)
		}
		m.rules = append(m.rules, rule)
		m.globs = append(m.globs, g)
	}

	return m, nil
}

// normalize rewrites a rule to start with "./" and widens directories to "dir/*"
func normalize(root, line string) string {
	rule := line
	switch {
	case strings.HasPrefix(rule, "/"):
		rule = "." + rule
	case !strings.HasPrefix(rule, "./"):
		rule = "./" + rule
	}

	trimmed := strings.TrimRight(rule, "/")
	if trimmed == "." {
		return rule
	}
	if info, err := os.Stat(filepath.Join(root, filepath.FromSlash(trimmed))); err == nil && info.IsDir() {
		return trimmed + "/*"
	}
	return rule
}

// Match reports whether path is excluded. path is relative to the working tree root,
// with or without a leading "./".
func (m *Matcher) Match(path string) bool {
	path = filepath.ToSlash(path)
	if !strings.HasPrefix(path, "./") {
		path = "./" + path
	}
	for _, g := range m.globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// Rules returns the compiled rule strings
func (m *Matcher) Rules() []string {
	rules := make([]string, len(m.rules))
	copy(rules, m.rules)
	return rules
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to open ignore file",
			goerr.T(types.ErrTagFilesystem),
			goerr.V("path", path),
		)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to read ignore file",
			goerr.T(types.ErrTagFilesystem),
			goerr.V("path", path),
		)
	}
	return lines, nil
}
