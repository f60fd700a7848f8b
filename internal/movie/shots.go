package movie

import "sort"

// FlatShot is a shot annotated with its parent scene. It is a derived view and
// never sent back to the backend.
type FlatShot struct {
	Shot
	SceneID string
}

// FlattenShots returns every shot of the script annotated with its scene id,
// stably sorted ascending by OrderIndex. A nil script yields no shots.
func FlattenShots(script *Script) []FlatShot {
	if script == nil {
		return nil
	}
	var out []FlatShot
	for _, scene := range script.Scenes {
		for _, shot := range scene.Shots {
			out = append(out, FlatShot{Shot: shot, SceneID: scene.ID})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OrderIndex < out[j].OrderIndex
	})
	return out
}

// AllKeyframed reports whether every shot has a keyframe. It is vacuously true
// for an empty slice.
func AllKeyframed(shots []FlatShot) bool {
	for _, shot := range shots {
		if !shot.HasKeyframe() {
			return false
		}
	}
	return true
}

// AllHaveAvatars reports whether every character has an avatar. It is
// vacuously true for an empty slice.
func AllHaveAvatars(characters []Character) bool {
	for _, c := range characters {
		if !c.HasAvatar() {
			return false
		}
	}
	return true
}

// FindScene returns the scene with the given id.
func (s *Script) FindScene(id string) (Scene, bool) {
	if s == nil {
		return Scene{}, false
	}
	for _, scene := range s.Scenes {
		if scene.ID == id {
			return scene, true
		}
	}
	return Scene{}, false
}
