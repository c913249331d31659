package file

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"text/template"

	"github.com/custodia-labs/kb/internal/core/ports/driven"
)

var _ driven.PromptStore = (*PromptStore)(nil)

// PromptStore reads system prompts from <dir>/<name>.txt. Files are
// seeded from driven.DefaultPrompts on first use and never overwritten
// afterwards, so user edits stick. Deleting a file restores the default
// on the next Reload.
type PromptStore struct {
	dir string

	mu      sync.Mutex
	seeded  bool
	seedErr error
	cache   map[string]string
}

// NewPromptStore creates a prompt store rooted at dir, or ~/.kb/prompts
// when dir is empty. Nothing is written until the first Load.
func NewPromptStore(dir string) (*PromptStore, error) {
	if dir == "" {
		root, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(root, "prompts")
	}
	return &PromptStore{dir: dir, cache: map[string]string{}}, nil
}

// Dir returns the prompt directory.
func (s *PromptStore) Dir() string {
	return s.dir
}

// Load returns the prompt called name. Blank or unreadable files fall back
// to the built-in text; only names with no built-in text can fail.
func (s *PromptStore) Load(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.seeded {
		s.seedErr = s.seed()
		s.seeded = true
	}
	if prompt, ok := s.cache[name]; ok {
		return prompt, nil
	}

	data, readErr := os.ReadFile(filepath.Join(s.dir, name+".txt"))
	prompt := strings.TrimSpace(string(data))
	if readErr != nil || prompt == "" {
		def, ok := driven.DefaultPrompts[name]
		if !ok {
			return "", fmt.Errorf("load prompt %q: %w", name, errors.Join(readErr, s.seedErr))
		}
		prompt = def
	}

	s.cache[name] = prompt
	return prompt, nil
}

// Reload drops cached prompts. The next Load re-reads every file and
// recreates deleted defaults.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = map[string]string{}
	s.seeded = false
}

// seed writes any default prompt and the README that are missing.
func (s *PromptStore) seed() error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create prompt directory: %w", err)
	}

	names := make([]string, 0, len(driven.DefaultPrompts))
	for name := range driven.DefaultPrompts {
		names = append(names, name)
	}
	slices.Sort(names)

	var errs []error
	for _, name := range names {
		errs = append(errs, writeIfMissing(filepath.Join(s.dir, name+".txt"), []byte(driven.DefaultPrompts[name]+"\n")))
	}

	var readme bytes.Buffer
	if err := readmeTemplate.Execute(&readme, names); err != nil {
		return fmt.Errorf("render prompt readme: %w", err)
	}
	errs = append(errs, writeIfMissing(filepath.Join(s.dir, "README.md"), readme.Bytes()))

	return errors.Join(errs...)
}

// writeIfMissing creates path with data unless something already exists there.
func writeIfMissing(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, fs.ErrExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

var readmeTemplate = template.Must(template.New("readme").Parse(`# kb prompts

System prompts used when answering questions. Edit a file to change how
answers are phrased; delete it to get the default back the next time kb
starts.
{{range .}}
- ` + "`{{.}}.txt`" + `{{end}}

Passages are numbered [1], [2], ... after the system prompt, so keep the
instruction to cite them by number.
`))
