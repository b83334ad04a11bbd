package pipeline

import "fmt"

// State is a session's position in the dubbing workflow
type State int

const (
	StateUploaded State = iota
	StateAudioExtracted
	StateTranscribed
	StateTranslated
	StateSynthesized
	StateMerged
)

var stateNames = map[State]string{
	StateUploaded:       "uploaded",
	StateAudioExtracted: "audio_extracted",
	StateTranscribed:    "transcribed",
	StateTranslated:     "translated",
	StateSynthesized:    "synthesized",
	StateMerged:         "merged",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state by name for JSON and YAML
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseState is the inverse of State.String
func ParseState(name string) (State, error) {
	for s, n := range stateNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown pipeline state %q", name)
}

// Stage identifies one orchestrator operation
type Stage string

const (
	StageExtract    Stage = "extract"
	StageTranslate  Stage = "translate"
	StageSynthesize Stage = "synthesize"
	StageMerge      Stage = "merge"
	StageRetrieve   Stage = "retrieve"
)

// Requires returns the minimum session state a stage may run from
func (s Stage) Requires() State {
	switch s {
	case StageTranslate:
		return StateTranscribed
	case StageSynthesize:
		return StateTranslated
	case StageMerge:
		return StateSynthesized
	default:
		return StateUploaded
	}
}

// Produces returns the state a session reaches when the stage succeeds
func (s Stage) Produces() State {
	switch s {
	case StageExtract:
		return StateTranscribed
	case StageTranslate:
		return StateTranslated
	case StageSynthesize:
		return StateSynthesized
	case StageMerge:
		return StateMerged
	default:
		return StateUploaded
	}
}
