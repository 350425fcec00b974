package file

import (
	"github.com/dukex/drafts/pkg/models"
)

type snapshot struct {
	Parents      map[string]*models.ParentRecord         `json:"parents"`
	ParentStates map[string]*models.ParentState          `json:"parent_states"`
	Drafts       map[string]*models.Draft                `json:"drafts"`
	Records      map[string]*models.Record               `json:"records"`
	Identifiers  map[string]*models.PersistentIdentifier `json:"identifiers"`
}

func newSnapshot() *snapshot {
	s := &snapshot{}
	s.ensure()

	return s
}

func (s *snapshot) ensure() {
	if s.Parents == nil {
		s.Parents = map[string]*models.ParentRecord{}
	}

	if s.ParentStates == nil {
		s.ParentStates = map[string]*models.ParentState{}
	}

	if s.Drafts == nil {
		s.Drafts = map[string]*models.Draft{}
	}

	if s.Records == nil {
		s.Records = map[string]*models.Record{}
	}

	if s.Identifiers == nil {
		s.Identifiers = map[string]*models.PersistentIdentifier{}
	}
}

func (s *snapshot) clone() *snapshot {
	c := &snapshot{
		Parents:      make(map[string]*models.ParentRecord, len(s.Parents)),
		ParentStates: make(map[string]*models.ParentState, len(s.ParentStates)),
		Drafts:       make(map[string]*models.Draft, len(s.Drafts)),
		Records:      make(map[string]*models.Record, len(s.Records)),
		Identifiers:  make(map[string]*models.PersistentIdentifier, len(s.Identifiers)),
	}

	for k, v := range s.Parents {
		c.Parents[k] = v.Clone()
	}

	for k, v := range s.ParentStates {
		c.ParentStates[k] = v.Clone()
	}

	for k, v := range s.Drafts {
		c.Drafts[k] = v.Clone()
	}

	for k, v := range s.Records {
		c.Records[k] = v.Clone()
	}

	for k, v := range s.Identifiers {
		c.Identifiers[k] = v.Clone()
	}

	return c
}

func identifierKey(pidType models.PIDType, value string) string {
	return string(pidType) + ":" + value
}
