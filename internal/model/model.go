// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/and161185/sitecfg/internal/diff"
	"github.com/and161185/sitecfg/internal/tree"
)

// Action labels why a revision was written.
type Action string

// Revision actions.
const (
	ActionUpdate  Action = "update"
	ActionRestore Action = "restore"
)

// Actor identifies who made a change. Every field is optional.
type Actor struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
}

// CommitMeta is the audit metadata attached to a commit.
type CommitMeta struct {
	Actor      Actor
	SourcePath string `validate:"max=2048"`
	Note       string `validate:"max=4096"`
	Action     Action `validate:"omitempty,oneof=update restore"` // empty means ActionUpdate
}

// Document is the current value stored under a configuration key.
type Document struct {
	Key       string
	Value     *tree.Node
	UpdatedAt time.Time
}

// Revision is an immutable audit record of one committed change.
type Revision struct {
	ID            int64           `json:"id"`
	Key           string          `json:"key"`
	Value         *tree.Node      `json:"value"`
	PreviousValue *tree.Node      `json:"previousValue"` // nil for the first revision of a key
	Diff          []diff.ChangeOp `json:"diff"`
	Action        Action          `json:"action"`
	Actor         Actor           `json:"actor"`
	SourcePath    string          `json:"sourcePath,omitempty"`
	Note          string          `json:"note,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// CommitMode tells how a commit was persisted.
type CommitMode string

// Commit modes.
const (
	// ModeTransactional: document and revision were written in one transaction.
	ModeTransactional CommitMode = "transactional"
	// ModeDegraded: document was written to local storage without an audit record.
	ModeDegraded CommitMode = "degraded"
)

// CommitResult reports the outcome of a commit. Revision is nil when the
// commit changed nothing or ran in degraded mode.
type CommitResult struct {
	Mode     CommitMode `json:"mode"`
	Revision *Revision  `json:"revision"`
}

// ChainBreak reports two consecutive revisions of a key whose values do not line up.
type ChainBreak struct {
	RevisionID     int64  `json:"revisionId"`
	PreviousID     int64  `json:"previousId"`
	ExpectedDigest string `json:"expectedDigest"`
	ActualDigest   string `json:"actualDigest"`
}
