// Package analytics defines the Analytics-manager contract (spec.md §6):
// an external collaborator that executes named workflows over a set of
// variables and returns a Display. APPLY is the only executor that talks to
// it (spec.md §4.3.10).
package analytics

import (
	"context"

	"github.com/raymundl/kestrel-lang/internal/display"
	"github.com/raymundl/kestrel-lang/internal/statement"
	"github.com/raymundl/kestrel-lang/internal/symtable"
)

// Manager is the contract APPLY consumes.
type Manager interface {
	// Execute runs workflowURI over inputs with params, scoped to
	// sessionID, and returns the workflow's display artifact.
	Execute(
		ctx context.Context,
		workflowURI string,
		inputs []symtable.VarStruct,
		sessionID string,
		params []statement.Parameter,
	) (display.Display, error)
}
