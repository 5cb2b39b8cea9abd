package execution

import (
	"github.com/klokku/ritual/pkg/interaction"
	"github.com/klokku/ritual/pkg/progress"
)

// ExecutionState is the interaction state of one routine on one date. Only
// State is persisted; routine id and date are part of the storage key.
type ExecutionState struct {
	RoutineId string
	Date      string
	State     interaction.State
	Progress  progress.Progress
}
