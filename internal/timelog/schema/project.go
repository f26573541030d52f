package schema

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"
)

// ProjectFileExt is the extension of project files.
const ProjectFileExt = ".md"

const frontMatterDelim = "---"

// StringList accepts either a YAML sequence or a comma separated scalar.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*l = NormalizeTags(items)
	case yaml.ScalarNode:
		*l = NormalizeTags(strings.Split(node.Value, ","))
	default:
		return fmt.Errorf("line %d: expected a list or a string", node.Line)
	}
	return nil
}

// ProjectFile is a project description stored in projects/*.md as YAML
// front matter followed by a free text body.
type ProjectFile struct {
	Name       string     `yaml:"name"`
	Goals      StringList `yaml:"goals,omitempty"`
	Directions StringList `yaml:"directions,omitempty"`
	Tags       StringList `yaml:"tags,omitempty"`
	Status     string     `yaml:"status,omitempty"`
	StartDate  string     `yaml:"start_date,omitempty"`
	Summary    string     `yaml:"summary,omitempty"`

	Body string `yaml:"-"`
	Path string `yaml:"-"`
}

// Validate checks if the ProjectFile has valid field values.
func (p *ProjectFile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if p.StartDate != "" {
		if _, err := time.Parse(DateLayout, p.StartDate); err != nil {
			return fmt.Errorf("start_date %q must be YYYY-MM-DD", p.StartDate)
		}
	}
	return nil
}

// Filename returns the canonical filename for this project: {slug}.md
func (p *ProjectFile) Filename() string {
	return Slugify(p.Name) + ProjectFileExt
}

// ParseProjectFile parses project file content. Field level problems are
// returned as warnings and the affected field is cleared; only unreadable
// YAML is an error.
func ParseProjectFile(path string, data []byte) (*ProjectFile, []string, error) {
	var warnings []string
	p := &ProjectFile{Path: path}

	meta, body, ok := splitFrontMatter(data)
	if !ok {
		warnings = append(warnings, "no front matter; project name taken from file name")
		p.Body = string(data)
	} else {
		if err := yaml.Unmarshal(meta, p); err != nil {
			return nil, nil, fmt.Errorf("failed to parse front matter of %s: %w", path, err)
		}
		p.Body = strings.TrimLeft(string(body), "\n")
	}

	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if ok {
			warnings = append(warnings, "missing name; using file name")
		}
	}
	if p.StartDate != "" {
		if _, err := time.Parse(DateLayout, p.StartDate); err != nil {
			warnings = append(warnings, fmt.Sprintf("ignoring start_date %q: want YYYY-MM-DD", p.StartDate))
			p.StartDate = ""
		}
	}

	return p, warnings, nil
}

// ReadProjectFile reads and parses a project file from the given path.
func ReadProjectFile(path string) (*ProjectFile, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read project file %s: %w", path, err)
	}
	return ParseProjectFile(path, data)
}

// Marshal renders the project file with its front matter.
func (p *ProjectFile) Marshal() ([]byte, error) {
	meta, err := yaml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal project %s: %w", p.Name, err)
	}

	var buf bytes.Buffer
	buf.WriteString(frontMatterDelim + "\n")
	buf.Write(meta)
	buf.WriteString(frontMatterDelim + "\n")
	if p.Body != "" {
		buf.WriteString("\n")
		buf.WriteString(strings.TrimRight(p.Body, "\n"))
		buf.WriteString("\n")
	}
	return buf.Bytes(), nil
}

// WriteProjectFile writes a ProjectFile to dir/{slug}.md. It refuses to
// overwrite an existing file.
func WriteProjectFile(dir string, p *ProjectFile) (string, error) {
	if err := p.Validate(); err != nil {
		return "", fmt.Errorf("cannot write invalid project: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create projects directory: %w", err)
	}

	data, err := p.Marshal()
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, p.Filename())
	if err := writeExclusive(path, data); err != nil {
		return "", err
	}

	p.Path = path
	return path, nil
}

// ListProjectFiles returns the project file paths in dir, sorted by name.
// A missing directory has no project files.
func ListProjectFiles(dir string) ([]string, error) {
	return listFiles(dir, ProjectFileExt)
}

// FindProject returns the project file whose name matches name
// (case-insensitive), or nil. Unparseable files are ignored.
func FindProject(dir, name string) (*ProjectFile, error) {
	paths, err := ListProjectFiles(dir)
	if err != nil {
		return nil, err
	}
	for _, path := range paths {
		p, _, err := ReadProjectFile(path)
		if err != nil {
			continue
		}
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return nil, nil
}

// EnsureProjectFile creates an auto-generated project file for name unless
// one already exists. It returns the project and whether it was created.
func EnsureProjectFile(dir, name string, started time.Time) (*ProjectFile, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, Validationf("project name is required")
	}

	existing, err := FindProject(dir, name)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	p := &ProjectFile{
		Name:      name,
		Status:    "active",
		StartDate: started.Format(DateLayout),
		Summary:   "Created automatically when time was first logged.",
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, false, fmt.Errorf("failed to create projects directory: %w", err)
	}
	data, err := p.Marshal()
	if err != nil {
		return nil, false, err
	}

	// Another project may already own the slug; retry with a numeric suffix.
	base := Slugify(name)
	for i := 1; i < 100; i++ {
		slug := base
		if i > 1 {
			slug = fmt.Sprintf("%s-%d", base, i)
		}
		path := filepath.Join(dir, slug+ProjectFileExt)
		err := writeExclusive(path, data)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		p.Path = path
		return p, true, nil
	}
	return nil, false, fmt.Errorf("no free file name for project %q", name)
}

// Slugify turns a project name into a file name stem.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if slug == "" {
		return "project"
	}
	return slug
}

func splitFrontMatter(data []byte) (meta, body []byte, ok bool) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(text, frontMatterDelim+"\n") {
		return nil, nil, false
	}

	lines := strings.SplitAfter(text[len(frontMatterDelim)+1:], "\n")
	var m strings.Builder
	for i, line := range lines {
		if strings.TrimRight(line, "\n") == frontMatterDelim {
			return []byte(m.String()), []byte(strings.Join(lines[i+1:], "")), true
		}
		m.WriteString(line)
	}
	return nil, nil, false
}

func writeExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

func listFiles(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ext) {
			continue
		}
		// Editor swap and lock files.
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
