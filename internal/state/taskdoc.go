package state

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"go.yaml.in/yaml/v3"
)

// TaskDocument is a task record held as a YAML node tree so that single
// field edits keep key order and comments of the rest of the file.
type TaskDocument struct {
	path string
	root yaml.Node
}

// OpenTaskDocument loads <iter>/tasks/<task>.yaml for editing.
func (s *Store) OpenTaskDocument(iter, taskID string) (*TaskDocument, error) {
	if err := ValidateSafeID(iter, "iteration-id"); err != nil {
		return nil, err
	}
	if err := ValidateSafeID(taskID, "task-id"); err != nil {
		return nil, err
	}
	return LoadTaskDocument(s.TaskPath(iter, taskID))
}

// LoadTaskDocument parses the YAML file at path.
func LoadTaskDocument(path string) (*TaskDocument, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc := &TaskDocument{path: path}
	if err := yaml.Unmarshal(data, &doc.root); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrMalformed, err)
	}
	if _, err := doc.mapping(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Path returns the file the document was loaded from.
func (d *TaskDocument) Path() string {
	return d.path
}

func (d *TaskDocument) mapping() (*yaml.Node, error) {
	if d.root.Kind == 0 {
		d.root = yaml.Node{Kind: yaml.DocumentNode}
	}
	if len(d.root.Content) == 0 {
		d.root.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
	}
	m := d.root.Content[0]
	if m.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s: %w: top level is not a mapping", d.path, ErrMalformed)
	}
	return m, nil
}

// Map decodes the document into a generic record.
func (d *TaskDocument) Map() (map[string]any, error) {
	m, err := d.mapping()
	if err != nil {
		return nil, err
	}
	out := make(map[string]any)
	if err := m.Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", d.path, ErrMalformed, err)
	}
	return out, nil
}

// Set replaces the value of key, appending the key when it is absent.
func (d *TaskDocument) Set(key string, value any) error {
	m, err := d.mapping()
	if err != nil {
		return err
	}
	var vn yaml.Node
	if err := vn.Encode(value); err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			vn.HeadComment = m.Content[i+1].HeadComment
			vn.LineComment = m.Content[i+1].LineComment
			m.Content[i+1] = &vn
			return nil
		}
	}
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, &vn)
	return nil
}

// Apply sets every key of record whose value differs from the document.
func (d *TaskDocument) Apply(record map[string]any) error {
	current, err := d.Map()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(record))
	for key := range record {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := record[key]
		if prev, ok := current[key]; ok && fmt.Sprint(prev) == fmt.Sprint(value) {
			continue
		}
		if err := d.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}

// Save writes the document back atomically with two-space indentation.
func (d *TaskDocument) Save() error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&d.root); err != nil {
		return fmt.Errorf("encode %s: %w", d.path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode %s: %w", d.path, err)
	}
	if err := writeFileAtomic(d.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", d.path, err)
	}
	return nil
}
