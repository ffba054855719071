package progress_test

import (
	"testing"
	"time"

	"github.com/p-n-ai/pai-lms/internal/attempt"
	"github.com/p-n-ai/pai-lms/internal/content"
	"github.com/p-n-ai/pai-lms/internal/gate"
	"github.com/p-n-ai/pai-lms/internal/progress"
)

var t0 = time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)

// testTree: l1 (t1: q1 | t2: q2, q3 | t3: q4), l2 (t4: q5).
func testTree() *content.Tree {
	course := content.Course{ID: "c1", Title: "Certificate III in Business", Category: "business"}
	lessons := []content.Lesson{
		{ID: "l1", CourseID: "c1", Order: 0},
		{ID: "l2", CourseID: "c1", Order: 1},
	}
	topics := map[string][]content.Topic{
		"l1": {
			{ID: "t1", LessonID: "l1", Order: 0},
			{ID: "t2", LessonID: "l1", Order: 1},
			{ID: "t3", LessonID: "l1", Order: 2},
		},
		"l2": {{ID: "t4", LessonID: "l2", Order: 0}},
	}
	quizzes := map[string][]content.Quiz{
		"t1": {{ID: "q1", TopicID: "t1"}},
		"t2": {{ID: "q2", TopicID: "t2", Order: 0}, {ID: "q3", TopicID: "t2", Order: 1}},
		"t3": {{ID: "q4", TopicID: "t3"}},
		"t4": {{ID: "q5", TopicID: "t4"}},
	}
	return content.NewTree(course, lessons, topics, quizzes)
}

func status(state gate.State) gate.Status {
	return gate.Status{Decisions: []gate.Decision{{Kind: gate.KindLLND, State: state}}}
}

func evaluated(id, quizID string, s attempt.Status) *attempt.Attempt {
	return &attempt.Attempt{
		ID:           id,
		StudentID:    "s1",
		QuizID:       quizID,
		Number:       1,
		Status:       s,
		SystemResult: attempt.ResultEvaluated,
		CreatedAt:    t0,
		UpdatedAt:    t0,
	}
}

func build(tree *content.Tree, latest map[string]*attempt.Attempt, st gate.Status) *progress.Ledger {
	l := progress.New("s1", "c1")
	l.Reconcile(tree, latest)
	progress.Recompute(l, tree, st)
	return l
}

func TestUnlocker_NoLedgerDataFailsClosed(t *testing.T) {
	tree := testTree()
	first := progress.NewFirstTopic(tree, gate.StateNotRequired)

	for _, ledger := range []*progress.Ledger{nil, progress.New("s1", "c1")} {
		u := progress.NewUnlocker(tree, ledger, first)
		for _, tp := range tree.Sequence() {
			if u.TopicAllowed(tp.ID) {
				t.Errorf("TopicAllowed(%s) = true without ledger data", tp.ID)
			}
		}
		if u.LessonAllowed("l1") {
			t.Error("LessonAllowed(l1) = true without ledger data")
		}
	}
}

func TestUnlocker_FirstTopicFollowsGate(t *testing.T) {
	tests := []struct {
		state    gate.State
		want     bool
		wantNext bool
	}{
		{gate.StateRequiredPending, false, false},
		{gate.StateSatisfied, true, true},
		// Exempt courses resolve the first topic through its own quizzes.
		{gate.StateNotRequired, true, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			tree := testTree()
			l := build(tree, nil, status(tt.state))
			if got := l.Topics["t1"].Allowed; got != tt.want {
				t.Errorf("t1 allowed = %v, want %v", got, tt.want)
			}
			if got := l.Lessons["l1"].Allowed; got != tt.want {
				t.Errorf("l1 allowed = %v, want %v", got, tt.want)
			}
			if got := l.Topics["t2"].Allowed; got != tt.wantNext {
				t.Errorf("t2 allowed = %v, want %v", got, tt.wantNext)
			}
		})
	}
}

func TestUnlocker_ExemptFirstTopicUsesOwnWork(t *testing.T) {
	tree := testTree()
	st := status(gate.StateNotRequired)

	l := build(tree, nil, st)
	if l.Topics["t2"].Allowed {
		t.Error("t2 allowed before t1 is resolved")
	}

	l = build(tree, map[string]*attempt.Attempt{
		"q1": evaluated("a1", "q1", attempt.StatusFail),
	}, st)
	if !l.Topics["t2"].Allowed {
		t.Error("t2 locked after t1's only quiz was handed in")
	}

	l = build(tree, map[string]*attempt.Attempt{
		"q1": evaluated("a1", "q1", attempt.StatusSatisfactory),
	}, st)
	if !l.Topics["t1"].Completed || !l.Topics["t2"].Allowed {
		t.Errorf("t1 completed = %v, t2 allowed = %v, want both true", l.Topics["t1"].Completed, l.Topics["t2"].Allowed)
	}
}

func TestUnlocker_Sequential(t *testing.T) {
	tree := testTree()
	st := status(gate.StateSatisfied)

	l := build(tree, nil, st)
	if l.Topics["t3"].Allowed {
		t.Error("t3 allowed before t2 is resolved")
	}

	// Both quizzes of t2 handed in and failed: exhausted topic resolves.
	l = build(tree, map[string]*attempt.Attempt{
		"q2": evaluated("a2", "q2", attempt.StatusFail),
		"q3": evaluated("a3", "q3", attempt.StatusNotSatisfactory),
	}, st)
	t2 := l.Topics["t2"]
	if t2.Quizzes.Count != 2 || t2.Quizzes.Attempted != 2 || t2.Quizzes.Passed != 0 {
		t.Fatalf("t2 tally = %+v, want count 2 attempted 2 passed 0", t2.Quizzes)
	}
	if t2.Completed {
		t.Error("t2 completed without passing")
	}
	if !l.Topics["t3"].Allowed {
		t.Error("t3 not allowed after t2 attempts were exhausted")
	}

	// A live attempt does not resolve the predecessor.
	live := evaluated("a4", "q4", attempt.StatusAttempting)
	live.SystemResult = attempt.ResultInProgress
	l = build(tree, map[string]*attempt.Attempt{
		"q2": evaluated("a2", "q2", attempt.StatusSatisfactory),
		"q3": evaluated("a3", "q3", attempt.StatusSatisfactory),
		"q4": live,
	}, st)
	if l.Topics["t4"].Allowed {
		t.Error("t4 allowed while t3 is still in progress")
	}
	if l.Lessons["l2"].Allowed {
		t.Error("l2 allowed while its first topic is not")
	}
}

func TestUnlocker_MarkResolvesPredecessor(t *testing.T) {
	tree := testTree()
	l := progress.New("s1", "c1")
	l.Reconcile(tree, nil)
	if err := l.Mark(progress.EntityTopic, "t2", t0); err != nil {
		t.Fatalf("Mark() error = %v", err)
	}
	progress.Recompute(l, tree, status(gate.StateSatisfied))

	if !l.Topics["t3"].Allowed {
		t.Error("t3 not allowed after t2 was marked")
	}
}

func TestGoGreen(t *testing.T) {
	tree := testTree()
	st := status(gate.StateSatisfied)

	l := build(tree, nil, st)
	if l.Lessons["l1"].GoGreen {
		t.Error("first lesson must never go green")
	}
	if l.Lessons["l2"].GoGreen {
		t.Error("l2 green while it is not allowed")
	}

	l = build(tree, map[string]*attempt.Attempt{
		"q2": evaluated("a2", "q2", attempt.StatusFail),
		"q3": evaluated("a3", "q3", attempt.StatusFail),
		"q4": evaluated("a4", "q4", attempt.StatusSatisfactory),
	}, st)
	if !l.Lessons["l2"].Allowed {
		t.Fatal("l2 should be allowed")
	}
	if !l.Lessons["l2"].GoGreen {
		t.Error("l2 should go green once t3 is completed and submitted")
	}

	l = build(tree, map[string]*attempt.Attempt{
		"q2": evaluated("a2", "q2", attempt.StatusFail),
		"q3": evaluated("a3", "q3", attempt.StatusFail),
		"q4": evaluated("a4", "q4", attempt.StatusReturned),
	}, st)
	if !l.Lessons["l2"].Allowed || l.Lessons["l2"].GoGreen {
		t.Errorf("l2 allowed=%v green=%v, want allowed and not green",
			l.Lessons["l2"].Allowed, l.Lessons["l2"].GoGreen)
	}
}

func TestPercentage(t *testing.T) {
	tree := testTree()
	passed := map[string]*attempt.Attempt{
		"q1": evaluated("a1", "q1", attempt.StatusSatisfactory),
	}

	tests := []struct {
		name   string
		latest map[string]*attempt.Attempt
		state  gate.State
		want   float64
		total  int
	}{
		// 2 lessons + 4 topics + 5 quizzes, prerequisite not counted.
		{"exempt nothing done", nil, gate.StateNotRequired, 0, 11},
		{"exempt one quiz", passed, gate.StateNotRequired, 18.18, 11},
		{"pending counts prerequisite", passed, gate.StateRequiredPending, 16.67, 12},
		// prerequisite node + t1 via the gate + q1.
		{"satisfied", passed, gate.StateSatisfied, 25, 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := build(tree, tt.latest, status(tt.state))
			if l.Percentage != tt.want {
				t.Errorf("Percentage = %v, want %v", l.Percentage, tt.want)
			}
			if got := l.Snapshot().Total; got != tt.total {
				t.Errorf("Total = %d, want %d", got, tt.total)
			}
			if l.LessonCount != 2 || l.TopicCount != 4 || l.QuizCount != 5 {
				t.Errorf("counts = %d/%d/%d, want 2/4/5", l.LessonCount, l.TopicCount, l.QuizCount)
			}
		})
	}
}

func TestPercentage_EmptyCourse(t *testing.T) {
	tree := content.NewTree(content.Course{ID: "c0"}, nil, nil, nil)
	l := build(tree, nil, status(gate.StateNotRequired))
	if l.Percentage != 0 {
		t.Errorf("Percentage = %v, want 0", l.Percentage)
	}
	if progress.Percentage(progress.New("s1", "c0")) != 0 {
		t.Error("Percentage of an empty ledger should be 0")
	}
}

func TestPercentage_MonotonicUnderMarks(t *testing.T) {
	tree := testTree()
	l := progress.New("s1", "c1")
	l.Reconcile(tree, nil)
	st := status(gate.StateRequiredPending)
	progress.Recompute(l, tree, st)

	marks := []struct {
		entity progress.EntityType
		id     string
	}{
		{progress.EntityQuiz, "q2"},
		{progress.EntityTopic, "t3"},
		{progress.EntityLesson, "l2"},
		{progress.EntityQuiz, "q2"},
		{progress.EntityTopic, "t1"},
		{progress.EntityQuiz, "q1"},
		{progress.EntityQuiz, "q3"},
		{progress.EntityTopic, "t2"},
		{progress.EntityQuiz, "q4"},
		{progress.EntityQuiz, "q5"},
		{progress.EntityTopic, "t4"},
		{progress.EntityLesson, "l1"},
	}

	prev := l.Percentage
	for _, m := range marks {
		if err := l.Mark(m.entity, m.id, t0); err != nil {
			t.Fatalf("Mark(%s %s) error = %v", m.entity, m.id, err)
		}
		progress.Recompute(l, tree, st)
		if l.Percentage < prev {
			t.Fatalf("after marking %s %s percentage dropped %v -> %v", m.entity, m.id, prev, l.Percentage)
		}
		prev = l.Percentage
	}
	// Everything but the pending prerequisite node.
	if l.Percentage != 91.67 {
		t.Errorf("final Percentage = %v, want 91.67", l.Percentage)
	}
}

func TestMark(t *testing.T) {
	tree := testTree()
	l := progress.New("s1", "c1")
	l.Reconcile(tree, nil)

	if err := l.Mark(progress.EntityQuiz, "q1", t0); err != nil {
		t.Fatalf("Mark() error = %v", err)
	}
	if err := l.Mark(progress.EntityQuiz, "q1", t0.Add(time.Hour)); err != nil {
		t.Fatalf("second Mark() error = %v", err)
	}
	if got := *l.Quizzes["q1"].MarkedAt; !got.Equal(t0) {
		t.Errorf("MarkedAt = %v, want first mark time %v", got, t0)
	}

	if err := l.Mark(progress.EntityTopic, "nope", t0); err == nil {
		t.Error("expected error marking an unknown topic")
	}
	if err := l.Mark("chapter", "t1", t0); err == nil {
		t.Error("expected error for unknown entity type")
	}
}

func TestReconcile_TracksStructureAndAttempts(t *testing.T) {
	tree := testTree()
	l := progress.New("s1", "c1")
	l.Topics["gone"] = &progress.TopicEntry{}

	a := evaluated("a1", "q1", attempt.StatusSubmitted)
	if n := l.Reconcile(tree, map[string]*attempt.Attempt{"q1": a}); n != 1 {
		t.Errorf("first Reconcile refreshed %d quizzes, want 1", n)
	}
	if _, ok := l.Topics["gone"]; ok {
		t.Error("topic removed from the course is still in the ledger")
	}
	if len(l.Lessons) != 2 || len(l.Topics) != 4 || len(l.Quizzes) != 5 {
		t.Errorf("ledger has %d/%d/%d nodes, want 2/4/5", len(l.Lessons), len(l.Topics), len(l.Quizzes))
	}

	if n := l.Reconcile(tree, map[string]*attempt.Attempt{"q1": a}); n != 0 {
		t.Errorf("unchanged Reconcile refreshed %d quizzes, want 0", n)
	}

	b := *a
	b.Status = attempt.StatusSatisfactory
	b.UpdatedAt = t0.Add(time.Minute)
	if n := l.Reconcile(tree, map[string]*attempt.Attempt{"q1": &b}); n != 1 {
		t.Errorf("Reconcile after evaluation refreshed %d quizzes, want 1", n)
	}
	if l.Quizzes["q1"].AttemptStatus != attempt.StatusSatisfactory {
		t.Errorf("cached status = %q", l.Quizzes["q1"].AttemptStatus)
	}

	if n := l.Reconcile(tree, nil); n != 1 {
		t.Errorf("Reconcile after soft delete refreshed %d quizzes, want 1", n)
	}
	if l.Quizzes["q1"].AttemptID != "" {
		t.Error("deleted attempt still cached")
	}
}

func TestParseEntityType(t *testing.T) {
	for _, s := range []string{"lesson", "topic", "quiz"} {
		if _, err := progress.ParseEntityType(s); err != nil {
			t.Errorf("ParseEntityType(%q) error = %v", s, err)
		}
	}
	if _, err := progress.ParseEntityType("question"); err == nil {
		t.Error("ParseEntityType(question) should fail")
	}
}
