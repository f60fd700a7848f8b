package stage

// CanExtractScenes requires at least one character.
func CanExtractScenes(s Snapshot) bool { return s.CharacterCount > 0 }

// CanExtractShots requires a script with at least one scene.
func CanExtractShots(s Snapshot) bool { return s.SceneCount > 0 }

// CanGenerateKeyframes requires shots and an avatar for every character.
func CanGenerateKeyframes(s Snapshot) bool { return s.ShotCount > 0 && s.AllHaveAvatars }

// CanCreateTransitions requires every shot to carry a keyframe. Like the
// avatar check it holds vacuously when there are no shots.
func CanCreateTransitions(s Snapshot) bool { return s.AllKeyframed }

// CanGenerateTransitionVideos requires at least one transition.
func CanGenerateTransitionVideos(s Snapshot) bool { return s.TransitionCount > 0 }

// Gate summarizes whether a stage action is unlocked.
type Gate struct {
	Name   string
	Open   bool
	Detail string
}

func open(name string) Gate {
	return Gate{Name: name, Open: true}
}

func closed(name, detail string) Gate {
	return Gate{Name: name, Open: false, Detail: detail}
}

// Gates evaluates every gate against s, in pipeline order.
func Gates(s Snapshot) []Gate {
	gates := make([]Gate, 0, 5)

	if CanExtractScenes(s) {
		gates = append(gates, open("extract_scenes"))
	} else {
		gates = append(gates, closed("extract_scenes", "extract characters first"))
	}

	if CanExtractShots(s) {
		gates = append(gates, open("extract_shots"))
	} else {
		gates = append(gates, closed("extract_shots", "script has no scenes"))
	}

	switch {
	case CanGenerateKeyframes(s):
		gates = append(gates, open("generate_keyframes"))
	case s.ShotCount == 0:
		gates = append(gates, closed("generate_keyframes", "no shots extracted"))
	default:
		gates = append(gates, closed("generate_keyframes", "some characters have no avatar"))
	}

	if CanCreateTransitions(s) {
		gates = append(gates, open("create_transitions"))
	} else {
		gates = append(gates, closed("create_transitions", "some shots have no keyframe"))
	}

	if CanGenerateTransitionVideos(s) {
		gates = append(gates, open("generate_transition_videos"))
	} else {
		gates = append(gates, closed("generate_transition_videos", "no transitions created"))
	}
	return gates
}
