package postgresql

import "github.com/dukex/drafts/pkg/persistence/sqlbase"

func migrations() []sqlbase.Migration {
	return []sqlbase.Migration{
		{Version: 1, Name: "lineage, drafts and records", SQL: `
			CREATE TABLE parents (
				id UUID PRIMARY KEY,
				version_counter INTEGER NOT NULL DEFAULT 1,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE parent_states (
				parent_id UUID PRIMARY KEY REFERENCES parents(id) ON DELETE CASCADE,
				latest_id UUID,
				next_draft_id UUID,
				count INTEGER NOT NULL DEFAULT 0,
				current_index INTEGER NOT NULL DEFAULT 0
			);

			CREATE TABLE drafts (
				id UUID PRIMARY KEY,
				parent_id UUID NOT NULL REFERENCES parents(id),
				version_index INTEGER NOT NULL,
				revision_id INTEGER NOT NULL DEFAULT 0,
				fork_version_id INTEGER,
				expires_at TIMESTAMP WITH TIME ZONE,
				created_by VARCHAR(255) NOT NULL,
				data JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_drafts_parent_id ON drafts(parent_id);
			CREATE INDEX idx_drafts_expires_at ON drafts(expires_at) WHERE deleted_at IS NULL;

			CREATE TABLE records (
				id UUID PRIMARY KEY,
				parent_id UUID NOT NULL REFERENCES parents(id),
				version_index INTEGER NOT NULL,
				revision_id INTEGER NOT NULL DEFAULT 0,
				created_by VARCHAR(255) NOT NULL,
				data JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_records_parent_id ON records(parent_id);
		`},
		{Version: 2, Name: "persistent identifiers", SQL: `
			CREATE TABLE identifiers (
				pid_type VARCHAR(32) NOT NULL,
				pid_value VARCHAR(255) NOT NULL,
				status CHAR(1) NOT NULL CHECK (status IN ('N', 'R')),
				target_id UUID NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (pid_type, pid_value)
			);

			CREATE INDEX idx_identifiers_target ON identifiers(pid_type, target_id);
		`},
	}
}
