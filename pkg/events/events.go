// Package events defines the lifecycle notifications emitted after a workflow commit.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const Topic = "drafts.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	DraftCreatedEvent    EventType = "draft.created"
	DraftUpdatedEvent    EventType = "draft.updated"
	DraftEditedEvent     EventType = "draft.edited"
	DraftPublishedEvent  EventType = "draft.published"
	DraftNewVersionEvent EventType = "draft.new_version"
	DraftDeletedEvent    EventType = "draft.deleted"
)

// BaseEvent carries what every lifecycle event has in common. Affected lists the UUIDs
// whose index entries the operation changed.
type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RecordID  string         `json:"record_id"`
	PID       string         `json:"pid"`
	ParentID  string         `json:"parent_id"`
	Actor     string         `json:"actor,omitempty"`
	Affected  []string       `json:"affected"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (b BaseEvent) AffectedIDs() []string {
	return b.Affected
}

type DraftCreated struct {
	BaseEvent

	ValidationErrors int `json:"validation_errors"`
}

func (e DraftCreated) GetType() EventType {
	return DraftCreatedEvent
}

type DraftUpdated struct {
	BaseEvent

	RevisionID int `json:"revision_id"`
}

func (e DraftUpdated) GetType() EventType {
	return DraftUpdatedEvent
}

type DraftEdited struct {
	BaseEvent

	ForkVersionID int `json:"fork_version_id"`
}

func (e DraftEdited) GetType() EventType {
	return DraftEditedEvent
}

type DraftPublished struct {
	BaseEvent

	RevisionID   int  `json:"revision_id"`
	VersionIndex int  `json:"version_index"`
	FirstPublish bool `json:"first_publish"`
}

func (e DraftPublished) GetType() EventType {
	return DraftPublishedEvent
}

// DraftNewVersion is emitted when a lineage gets its next-version draft.
type DraftNewVersion struct {
	BaseEvent

	SourceRecordID string `json:"source_record_id"`
	VersionIndex   int    `json:"version_index"`
}

func (e DraftNewVersion) GetType() EventType {
	return DraftNewVersionEvent
}

type DraftDeleted struct {
	BaseEvent

	Hard          bool `json:"hard"`
	ParentRemoved bool `json:"parent_removed"`
}

func (e DraftDeleted) GetType() EventType {
	return DraftDeletedEvent
}

func NewBaseEvent(eventType EventType, recordID, pid, parentID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		RecordID:  recordID,
		PID:       pid,
		ParentID:  parentID,
		Metadata:  make(map[string]any),
	}
}
