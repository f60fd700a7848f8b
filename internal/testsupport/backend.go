package testsupport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"storyreel/internal/movie"
)

// State is the mutable entity data served by FakeBackend.
type State struct {
	Characters  []movie.Character
	Script      *movie.Script
	Transitions []movie.Transition
}

// Effect mutates backend state when a task resolves successfully (or
// immediately for synchronous submissions).
type Effect func(state *State, target string)

// Call records one backend invocation.
type Call struct {
	Method string
	Target string
	Params movie.GenerationParams
}

type fakeTask struct {
	method  string
	target  string
	records []movie.TaskRecord
	queries int
	hold    chan struct{}
	applied bool
}

// FakeBackend is an in-memory movie.Backend with scriptable task outcomes.
// Submissions create tasks that resolve SUCCESS on the first query unless a
// sequence was configured with Respond.
type FakeBackend struct {
	mu sync.Mutex

	state     State
	errs      map[string][]error
	sticky    map[string]error
	sequences map[string][]movie.TaskRecord
	effects   map[string]Effect
	sync      map[string]bool
	holds     map[string]chan struct{}
	tasks     map[string]*fakeTask
	calls     []Call
	nextID    int
}

var _ movie.Backend = (*FakeBackend)(nil)

// NewFakeBackend returns a backend seeded with state.
func NewFakeBackend(state State) *FakeBackend {
	return &FakeBackend{
		state:     cloneState(state),
		errs:      make(map[string][]error),
		sticky:    make(map[string]error),
		sequences: make(map[string][]movie.TaskRecord),
		effects:   make(map[string]Effect),
		sync:      make(map[string]bool),
		holds:     make(map[string]chan struct{}),
		tasks:     make(map[string]*fakeTask),
	}
}

// Respond sets the status sequence returned for tasks submitted by method.
// The last record repeats once the sequence is exhausted.
func (f *FakeBackend) Respond(method string, records ...movie.TaskRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sequences[method] = records
}

// OnSuccess registers the state change applied when a task from method
// succeeds.
func (f *FakeBackend) OnSuccess(method string, effect Effect) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.effects[method] = effect
}

// Synchronous makes method return an empty task handle and apply its effect
// immediately.
func (f *FakeBackend) Synchronous(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sync[method] = true
}

// FailNext queues errors returned by the next calls to method, one per call.
func (f *FakeBackend) FailNext(method string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[method] = append(f.errs[method], errs...)
}

// Fail makes every call to method return err. A nil err clears it.
func (f *FakeBackend) Fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.sticky, method)
		return
	}
	f.sticky[method] = err
}

// Hold keeps tasks targeting target PENDING until the returned release is
// called.
func (f *FakeBackend) Hold(target string) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.holds[target] = ch
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Calls returns every recorded call.
func (f *FakeBackend) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallCount returns how many times method was called.
func (f *FakeBackend) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Queries returns how many times the task was polled.
func (f *FakeBackend) Queries(taskID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tasks[taskID]; ok {
		return t.queries
	}
	return 0
}

// Snapshot returns a copy of the current state.
func (f *FakeBackend) Snapshot() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneState(f.state)
}

// Mutate applies fn to the state under the lock.
func (f *FakeBackend) Mutate(fn func(state *State)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(&f.state)
}

func (f *FakeBackend) record(method, target string, params movie.GenerationParams) error {
	f.calls = append(f.calls, Call{Method: method, Target: target, Params: params})
	if queued := f.errs[method]; len(queued) > 0 {
		f.errs[method] = queued[1:]
		return queued[0]
	}
	return f.sticky[method]
}

func (f *FakeBackend) submit(method, target string, params movie.GenerationParams) (movie.TaskHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(method, target, params); err != nil {
		return movie.TaskHandle{}, err
	}
	if f.sync[method] {
		if effect := f.effects[method]; effect != nil {
			effect(&f.state, target)
		}
		return movie.TaskHandle{}, nil
	}
	f.nextID++
	id := fmt.Sprintf("task-%d", f.nextID)
	records := f.sequences[method]
	if len(records) == 0 {
		records = []movie.TaskRecord{{Status: movie.TaskSuccess, Result: json.RawMessage(`{}`)}}
	}
	f.tasks[id] = &fakeTask{method: method, target: target, records: records, hold: f.holds[target]}
	return movie.TaskHandle{TaskID: id, Message: "queued"}, nil
}

func notFound(path string) error {
	return &movie.APIError{Method: http.MethodGet, Path: path, Status: http.StatusNotFound, Message: "requested resource does not exist"}
}

// GetTask implements movie.TaskSource.
func (f *FakeBackend) GetTask(_ context.Context, taskID string) (movie.TaskRecord, error) {
	f.mu.Lock()
	task, ok := f.tasks[taskID]
	if err := f.record("GetTask", taskID, movie.GenerationParams{}); err != nil {
		if ok {
			task.queries++
		}
		f.mu.Unlock()
		return movie.TaskRecord{}, err
	}
	if !ok {
		f.mu.Unlock()
		return movie.TaskRecord{}, notFound("/tasks/" + taskID)
	}
	task.queries++
	hold := task.hold
	f.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		default:
			return movie.TaskRecord{Status: movie.TaskPending}, nil
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	idx := task.queries - 1
	if idx >= len(task.records) {
		idx = len(task.records) - 1
	}
	record := task.records[idx]
	if record.Status == movie.TaskSuccess && !task.applied {
		task.applied = true
		if effect := f.effects[task.method]; effect != nil {
			effect(&f.state, task.target)
		}
	}
	return record, nil
}

func (f *FakeBackend) ListCharacters(_ context.Context, projectID string) ([]movie.Character, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListCharacters", projectID, movie.GenerationParams{}); err != nil {
		return nil, err
	}
	return append([]movie.Character(nil), f.state.Characters...), nil
}

func (f *FakeBackend) ExtractCharacters(_ context.Context, chapterID string, params movie.GenerationParams) (movie.TaskHandle, error) {
	return f.submit("ExtractCharacters", chapterID, params)
}

func (f *FakeBackend) GenerateAvatar(_ context.Context, characterID string, params movie.AvatarParams) (movie.TaskHandle, error) {
	return f.submit("GenerateAvatar", characterID, params.GenerationParams)
}

func (f *FakeBackend) BatchGenerateAvatars(_ context.Context, projectID string, params movie.GenerationParams) (movie.TaskHandle, error) {
	return f.submit("BatchGenerateAvatars", projectID, params)
}

func (f *FakeBackend) DeleteCharacter(_ context.Context, characterID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteCharacter", characterID, movie.GenerationParams{}); err != nil {
		return err
	}
	for i, c := range f.state.Characters {
		if c.ID == characterID {
			f.state.Characters = append(f.state.Characters[:i], f.state.Characters[i+1:]...)
			return nil
		}
	}
	return notFound("/movie/characters/" + characterID)
}

func (f *FakeBackend) UploadReferenceImage(_ context.Context, characterID, filename string, content io.Reader) error {
	if _, err := io.Copy(io.Discard, content); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UploadReferenceImage", characterID, movie.GenerationParams{}); err != nil {
		return err
	}
	for i := range f.state.Characters {
		if f.state.Characters[i].ID == characterID {
			f.state.Characters[i].ReferenceImages = append(f.state.Characters[i].ReferenceImages, "/uploads/"+filename)
			return nil
		}
	}
	return notFound("/movie/characters/" + characterID)
}

func (f *FakeBackend) DeleteReferenceImage(_ context.Context, characterID string, index int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteReferenceImage", characterID, movie.GenerationParams{}); err != nil {
		return err
	}
	for i := range f.state.Characters {
		c := &f.state.Characters[i]
		if c.ID != characterID {
			continue
		}
		if index < 0 || index >= len(c.ReferenceImages) {
			return &movie.APIError{Method: http.MethodDelete, Status: http.StatusBadRequest, Message: "invalid reference image index"}
		}
		c.ReferenceImages = append(c.ReferenceImages[:index], c.ReferenceImages[index+1:]...)
		return nil
	}
	return notFound("/movie/characters/" + characterID)
}

func (f *FakeBackend) GetScript(_ context.Context, chapterID string) (*movie.Script, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetScript", chapterID, movie.GenerationParams{}); err != nil {
		return nil, err
	}
	return cloneScript(f.state.Script), nil
}

func (f *FakeBackend) ExtractScenes(_ context.Context, chapterID string, params movie.GenerationParams) (movie.TaskHandle, error) {
	return f.submit("ExtractScenes", chapterID, params)
}

func (f *FakeBackend) GenerateSceneImages(_ context.Context, scriptID string, params movie.GenerationParams) (movie.TaskHandle, error) {
	return f.submit("GenerateSceneImages", scriptID, params)
}

func (f *FakeBackend) GenerateSceneImage(_ context.Context, sceneID string, params movie.GenerationParams) (movie.TaskHandle, error) {
	return f.submit("GenerateSceneImage", sceneID, params)
}

func (f *FakeBackend) RegenerateSceneImage(_ context.Context, sceneID string, params movie.GenerationParams) (movie.TaskHandle, error) {
	return f.submit("RegenerateSceneImage", sceneID, params)
}

func (f *FakeBackend) ExtractShots(_ context.Context, scriptID string, params movie.GenerationParams) (movie.TaskHandle, error) {
	return f.submit("ExtractShots", scriptID, params)
}

func (f *FakeBackend) ExtractSceneShots(_ context.Context, sceneID string, params movie.GenerationParams) (movie.TaskHandle, error) {
	return f.submit("ExtractSceneShots", sceneID, params)
}

func (f *FakeBackend) UpdateShot(_ context.Context, shotID string, update movie.ShotUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UpdateShot", shotID, movie.GenerationParams{}); err != nil {
		return err
	}
	if f.state.Script != nil {
		for si := range f.state.Script.Scenes {
			shots := f.state.Script.Scenes[si].Shots
			for i := range shots {
				if shots[i].ID != shotID {
					continue
				}
				if update.Shot != nil {
					shots[i].Shot = *update.Shot
				}
				if update.Dialogue != nil {
					shots[i].Dialogue = *update.Dialogue
				}
				if update.Characters != nil {
					shots[i].Characters = append([]string(nil), update.Characters...)
				}
				return nil
			}
		}
	}
	return notFound("/movie/shots/" + shotID)
}

func (f *FakeBackend) GenerateKeyframe(_ context.Context, shotID string, params movie.GenerationParams) (movie.TaskHandle, error) {
	return f.submit("GenerateKeyframe", shotID, params)
}

func (f *FakeBackend) GenerateKeyframes(_ context.Context, scriptID string, params movie.GenerationParams) (movie.TaskHandle, error) {
	return f.submit("GenerateKeyframes", scriptID, params)
}

func (f *FakeBackend) ListTransitions(_ context.Context, scriptID string) ([]movie.Transition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListTransitions", scriptID, movie.GenerationParams{}); err != nil {
		return nil, err
	}
	return append([]movie.Transition(nil), f.state.Transitions...), nil
}

func (f *FakeBackend) GetTransition(_ context.Context, transitionID string) (movie.Transition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetTransition", transitionID, movie.GenerationParams{}); err != nil {
		return movie.Transition{}, err
	}
	for _, tr := range f.state.Transitions {
		if tr.ID == transitionID {
			return tr, nil
		}
	}
	return movie.Transition{}, notFound("/movie/transitions/" + transitionID)
}

func (f *FakeBackend) CreateTransitions(_ context.Context, scriptID string, params movie.GenerationParams) (movie.TaskHandle, error) {
	return f.submit("CreateTransitions", scriptID, params)
}

func (f *FakeBackend) GenerateTransitionVideos(_ context.Context, scriptID string, params movie.GenerationParams) (movie.TaskHandle, error) {
	return f.submit("GenerateTransitionVideos", scriptID, params)
}

func (f *FakeBackend) GenerateTransitionVideo(_ context.Context, transitionID string, params movie.GenerationParams) (movie.TaskHandle, error) {
	return f.submit("GenerateTransitionVideo", transitionID, params)
}

func (f *FakeBackend) UpdateTransitionPrompt(_ context.Context, transitionID, prompt string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UpdateTransitionPrompt", transitionID, movie.GenerationParams{}); err != nil {
		return err
	}
	for i := range f.state.Transitions {
		if f.state.Transitions[i].ID == transitionID {
			f.state.Transitions[i].VideoPrompt = prompt
			return nil
		}
	}
	return notFound("/movie/transitions/" + transitionID)
}

func (f *FakeBackend) DeleteTransition(_ context.Context, transitionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteTransition", transitionID, movie.GenerationParams{}); err != nil {
		return err
	}
	for i, tr := range f.state.Transitions {
		if tr.ID == transitionID {
			f.state.Transitions = append(f.state.Transitions[:i], f.state.Transitions[i+1:]...)
			return nil
		}
	}
	return notFound("/movie/transitions/" + transitionID)
}

func cloneState(s State) State {
	return State{
		Characters:  append([]movie.Character(nil), s.Characters...),
		Script:      cloneScript(s.Script),
		Transitions: append([]movie.Transition(nil), s.Transitions...),
	}
}

func cloneScript(s *movie.Script) *movie.Script {
	if s == nil {
		return nil
	}
	out := *s
	out.Scenes = make([]movie.Scene, len(s.Scenes))
	for i, scene := range s.Scenes {
		scene.Shots = append([]movie.Shot(nil), scene.Shots...)
		out.Scenes[i] = scene
	}
	return &out
}
