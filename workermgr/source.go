package workermgr

import (
	"github.com/matrixbuilderops/solominerd/model"
	"github.com/matrixbuilderops/solominerd/templatemgr"
	"github.com/matrixbuilderops/solominerd/utils"
)

// ManagerSource adapts an in-process template manager to a TemplateSource.
// Workers receive the manager-owned template by reference, so an atomic
// hot-swap in the manager is visible at the worker's next poll.
type ManagerSource struct {
	mgr       *templatemgr.TemplateManager
	lastToken utils.Hash
}

// NewManagerSource returns a source tracking mgr's current template.
func NewManagerSource(mgr *templatemgr.TemplateManager) *ManagerSource {
	return &ManagerSource{mgr: mgr}
}

// Poll returns the manager's current template the first time its content
// token changes, and (nil, nil) otherwise.
func (s *ManagerSource) Poll() (*model.Template, error) {
	t := s.mgr.Current()
	if t == nil {
		return nil, nil
	}
	token := t.ContentToken()
	if token == s.lastToken {
		return nil, nil
	}
	s.lastToken = token
	return t, nil
}
