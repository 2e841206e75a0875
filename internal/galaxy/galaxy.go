// Package galaxy reads and edits the version of a collection's galaxy.yml.
package galaxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

const (
	FileName        = "galaxy.yml"
	DefaultTimezone = "America/Chicago"
)

var (
	ErrNoVersion = errors.New("no version in galaxy.yml")
	ErrNotNewer  = errors.New("current version is not greater than base version")
)

// File is a parsed galaxy.yml. Edits go through the YAML node tree so
// comments and key order survive a save.
type File struct {
	Path string
	doc  yaml.Node
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	f.Path = path
	return f, nil
}

func Parse(data []byte) (*File, error) {
	f := &File{}
	if err := yaml.Unmarshal(data, &f.doc); err != nil {
		return nil, err
	}
	if f.root() == nil {
		return nil, errors.New("not a mapping")
	}
	return f, nil
}

func (f *File) root() *yaml.Node {
	if f.doc.Kind != yaml.DocumentNode || len(f.doc.Content) == 0 {
		return nil
	}
	if m := f.doc.Content[0]; m.Kind == yaml.MappingNode {
		return m
	}
	return nil
}

func (f *File) versionNode() *yaml.Node {
	m := f.root()
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == "version" {
			return m.Content[i+1]
		}
	}
	return nil
}

func (f *File) Version() (string, error) {
	n := f.versionNode()
	if n == nil || strings.TrimSpace(n.Value) == "" {
		return "", ErrNoVersion
	}
	return n.Value, nil
}

// SetVersion replaces or appends the version key and returns the previous
// value, "" if there was none.
func (f *File) SetVersion(v string) string {
	if n := f.versionNode(); n != nil {
		prev := n.Value
		n.Kind, n.Tag, n.Style, n.Value = yaml.ScalarNode, "!!str", 0, v
		return prev
	}
	m := f.root()
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "version"},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v},
	)
	return ""
}

func (f *File) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&f.doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the file back to Path.
func (f *File) Save() error {
	data, err := f.Bytes()
	if err != nil {
		return err
	}
	mode := os.FileMode(0o644)
	if st, err := os.Stat(f.Path); err == nil {
		mode = st.Mode().Perm()
	}
	return os.WriteFile(f.Path, data, mode)
}

// CheckNewer fails unless current is strictly greater than base. Both must
// be full MAJOR.MINOR.PATCH versions without a "v" prefix.
func CheckNewer(current, base string) error {
	cur, err := semver.StrictNewVersion(current)
	if err != nil {
		return fmt.Errorf("parse current version %q: %w", current, err)
	}
	b, err := semver.StrictNewVersion(base)
	if err != nil {
		return fmt.Errorf("parse base version %q: %w", base, err)
	}
	if !cur.GreaterThan(b) {
		return fmt.Errorf("%w: %s <= %s", ErrNotNewer, cur, b)
	}
	return nil
}

// CalendarVersion formats t in loc as YEAR.MMDD.HHMM with leading zeros
// dropped from each part, e.g. 2024.105.930 for 5 Jan 09:30.
func CalendarVersion(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return fmt.Sprintf("%d.%d.%d", t.Year(), int(t.Month())*100+t.Day(), t.Hour()*100+t.Minute())
}

func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	return loc, nil
}

// ShowAtRef returns the content of path at a git ref, e.g. origin/main.
func ShowAtRef(ctx context.Context, ref, path string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", "show", ref+":"+path)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git show %s:%s: %w: %s", ref, path, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}
