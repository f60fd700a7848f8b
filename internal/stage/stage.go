package stage

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"storyreel/internal/movie"
)

// Stage is one of the six ordered pipeline phases.
type Stage int

const (
	Characters Stage = iota
	Scenes
	Shots
	Keyframes
	Transitions
	Final
)

var stageNames = [...]string{"characters", "scenes", "shots", "keyframes", "transitions", "final"}

// All lists the stages in pipeline order.
func All() []Stage {
	return []Stage{Characters, Scenes, Shots, Keyframes, Transitions, Final}
}

func (s Stage) String() string {
	if s < Characters || s > Final {
		return "unknown"
	}
	return stageNames[s]
}

// Label returns the title-cased display name ("Keyframes").
func (s Stage) Label() string {
	return cases.Title(language.English).String(s.String())
}

// Parse maps a stage name or index back to a Stage.
func Parse(value string) (Stage, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, s := range All() {
		if s.String() == value || strconv.Itoa(int(s)) == value {
			return s, true
		}
	}
	return Characters, false
}

// Snapshot is the immutable view of pipeline data that stage derivation and
// the gates read.
type Snapshot struct {
	CharacterCount  int
	AllHaveAvatars  bool
	HasScript       bool
	SceneCount      int
	ShotCount       int
	AllKeyframed    bool
	TransitionCount int
}

// SnapshotOf derives a Snapshot from loaded entities. A nil script means the
// chapter has not been broken into scenes yet.
func SnapshotOf(characters []movie.Character, script *movie.Script, transitions []movie.Transition) Snapshot {
	shots := movie.FlattenShots(script)
	snap := Snapshot{
		CharacterCount:  len(characters),
		AllHaveAvatars:  movie.AllHaveAvatars(characters),
		HasScript:       script != nil,
		ShotCount:       len(shots),
		AllKeyframed:    movie.AllKeyframed(shots),
		TransitionCount: len(transitions),
	}
	if script != nil {
		snap.SceneCount = len(script.Scenes)
	}
	return snap
}

// Determine returns the current stage. Conditions are evaluated in pipeline
// order and the first unmet one wins.
func Determine(s Snapshot) Stage {
	switch {
	case !s.HasScript:
		return Characters
	case s.SceneCount == 0:
		return Scenes
	case s.ShotCount == 0:
		return Shots
	case !s.AllKeyframed:
		return Keyframes
	case s.TransitionCount == 0:
		return Transitions
	default:
		return Final
	}
}
