package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/moonwalker/verdict/pkg/mime"
	"github.com/moonwalker/verdict/pkg/rules"
)

var ruleFileExts = []string{".json", ".yaml", ".yml"}

type diskRuleSetRepo struct {
	root string
}

// NewDiskRuleSetRepo stores one file per rule-set directly under root, named
// after the rule-set.
func NewDiskRuleSetRepo(root string) RuleSetRepo {
	return &diskRuleSetRepo{root}
}

// RuleSetName returns the rule-set stored in file, false when file is not a
// rule-set file.
func RuleSetName(file string) (string, bool) {
	base := filepath.Base(file)
	if strings.HasPrefix(base, ".") {
		return "", false
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, e := range ruleFileExts {
		if ext == e {
			return strings.TrimSuffix(base, filepath.Ext(base)), true
		}
	}
	return "", false
}

func (s *diskRuleSetRepo) Name() string {
	return "disk"
}

func (s *diskRuleSetRepo) Root() string {
	return s.root
}

func (s *diskRuleSetRepo) find(name string) (string, bool) {
	for _, ext := range ruleFileExts {
		path := filepath.Join(s.root, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

func (s *diskRuleSetRepo) Get(name string) ([]*rules.Rule, error) {
	path, ok := s.find(name)
	if !ok {
		return nil, rulesetNotFound(name)
	}
	return s.read(path)
}

func (s *diskRuleSetRepo) read(path string) ([]*rules.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rs, err := decode(path, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return rs, nil
}

// Save keeps the format of an existing file, new rule-sets are written as json.
func (s *diskRuleSetRepo) Save(name string, rs []*rules.Rule) error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return err
	}

	path, ok := s.find(name)
	if !ok {
		path = filepath.Join(s.root, name+mime.Extension(mime.FormatJSON))
	}

	data, err := encode(name, rs)
	if err != nil {
		return err
	}
	if format := mime.Format(path, nil); format == mime.FormatYAML {
		doc, err := rules.DecodeRuleSet("", data)
		if err != nil {
			return err
		}
		data, err = rules.EncodeRuleSet(doc, format)
		if err != nil {
			return err
		}
	}

	return writeFile(path, data)
}

// writeFile replaces path atomically so watchers never read a partial file.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".verdict-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *diskRuleSetRepo) Remove(name string) error {
	for _, ext := range ruleFileExts {
		err := os.Remove(filepath.Join(s.root, name+ext))
		if err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (s *diskRuleSetRepo) files() (map[string]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	res := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name, ok := RuleSetName(e.Name()); ok {
			if _, dup := res[name]; !dup {
				res[name] = filepath.Join(s.root, e.Name())
			}
		}
	}
	return res, nil
}

func (s *diskRuleSetRepo) Count() int {
	files, _ := s.files()
	return len(files)
}

func (s *diskRuleSetRepo) Each(fn func(name string, rs []*rules.Rule) error) error {
	files, err := s.files()
	if err != nil {
		return err
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rs, err := s.read(files[name])
		if skipMalformed(s.Name(), name, err) {
			continue
		}
		if err != nil {
			return err
		}
		if err := fn(name, rs); err != nil {
			return err
		}
	}
	return nil
}

func (s *diskRuleSetRepo) Close() {
	// no op
}
