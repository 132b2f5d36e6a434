package pipeline

import (
	"fmt"
	"strings"

	"stockcast/pkg/model"
)

// Stage is one step of the pipeline. Stages run in declaration order.
type Stage int

const (
	Fetch Stage = iota
	Preprocess
	Merge
	Train
	Predict
	Done
)

var stageNames = [...]string{"fetch", "preprocess", "merge", "train", "predict", "done"}

func (s Stage) String() string {
	if s < Fetch || s > Done {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// ParseStage converts a stage name
func ParseStage(name string) (Stage, error) {
	for i, n := range stageNames {
		if strings.EqualFold(name, n) {
			return Stage(i), nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

// StageError wraps a fatal error with the stage, and category if any, that
// raised it
type StageError struct {
	Stage    Stage
	Category model.Category
	Err      error
}

func (e *StageError) Error() string {
	if e.Category == "" {
		return e.Stage.String() + ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Category, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
