package fsbus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/matrixbuilderops/solominerd/model"
	"github.com/matrixbuilderops/solominerd/utils"
)

// TemplateHandoff is the file delivery mode for templates when distributor
// and worker do not share a process.  The distributor publishes atomically;
// the worker consumes and removes.
type TemplateHandoff struct {
	path string
}

// NewTemplateHandoff returns a handoff backed by path.
func NewTemplateHandoff(path string) *TemplateHandoff {
	return &TemplateHandoff{path: path}
}

// Publish writes the template through a unique temporary file and a rename
// so the worker never loads a mixed state.
func (h *TemplateHandoff) Publish(t *model.Template) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}

	tmp := filepath.Join(filepath.Dir(h.path),
		fmt.Sprintf(".template_%s.tmp", utils.UniqueSuffix()))
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, h.path)
}

// Consume loads and removes the pending template.  It returns (nil, nil)
// when no handoff is pending.  A malformed handoff is removed and reported;
// the worker stays on its current template.
func (h *TemplateHandoff) Consume() (*model.Template, error) {
	data, err := os.ReadFile(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var t model.Template
	if err := json.Unmarshal(data, &t); err != nil {
		log.Warnf("Discarding malformed template handoff at %s: %v", h.path, err)
		_ = os.Remove(h.path)
		return nil, err
	}

	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return &t, nil
}
