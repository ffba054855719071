package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/p-n-ai/pai-lms/internal/attempt"
	"github.com/p-n-ai/pai-lms/internal/content"
	"github.com/p-n-ai/pai-lms/internal/enrolment"
	"github.com/p-n-ai/pai-lms/internal/events"
	"github.com/p-n-ai/pai-lms/internal/gate"
	"github.com/p-n-ai/pai-lms/internal/httpapi"
	"github.com/p-n-ai/pai-lms/internal/learning"
	"github.com/p-n-ai/pai-lms/internal/platform/clock"
	"github.com/p-n-ai/pai-lms/internal/progress"
)

type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
	Action string `json:"action"`
}

// newTestServer serves course c1 = l1 (t1: q1 | t2: q2) with the LLND gate
// on quiz "llnd" and student s1 enrolled.
func newTestServer(t *testing.T, ready func(context.Context) error) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	start := time.Date(2024, 9, 2, 0, 0, 0, 0, time.UTC)

	reader := content.NewMemoryReader()
	err := reader.AddCourse(content.CourseDoc{
		Course: content.Course{ID: "c1", Title: "Certificate III in Business", Category: "business"},
		Lessons: []content.LessonDoc{{
			Lesson: content.Lesson{ID: "l1", Title: "Lesson 1"},
			Topics: []content.TopicDoc{
				{Topic: content.Topic{ID: "t1", Title: "Topic 1"}, Quizzes: []content.Quiz{{ID: "q1"}}},
				{Topic: content.Topic{ID: "t2", Title: "Topic 2"}, Quizzes: []content.Quiz{{ID: "q2"}}},
			},
		}},
	})
	if err != nil {
		t.Fatalf("AddCourse() error = %v", err)
	}
	reader.AddQuiz(content.Quiz{ID: "llnd", Title: "LLND assessment"})

	enrolments := enrolment.NewMemoryStore()
	if _, err := enrolments.Create(ctx, enrolment.Enrolment{
		StudentID:      "s1",
		CourseID:       "c1",
		CourseTitle:    "Certificate III in Business",
		CourseCategory: "business",
		Status:         enrolment.StatusEnrolled,
		CourseStartAt:  start,
		CreatedAt:      start,
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	clk := clock.NewFixed(start.Add(time.Hour))
	attempts := attempt.NewMemoryStore()
	logger := events.NewMemoryLogger()
	broker := events.NewMemoryBroker()
	gates := gate.NewSet(enrolments, clk, gate.New(gate.KindLLND, gate.Config{
		Enforcement: true,
		QuizID:      "llnd",
		Strictness:  gate.StrictSatisfactory,
	}, attempts))
	synchronizer := progress.NewSynchronizer(progress.SynchronizerConfig{
		Content:  reader,
		Attempts: attempts,
		Gates:    gates,
		Ledgers:  progress.NewMemoryStore(),
		Events:   logger,
		Broker:   broker,
		Clock:    clk,
	})
	svc := learning.NewService(learning.Config{
		Content:    reader,
		Attempts:   attempts,
		Enrolments: enrolments,
		Gates:      gates,
		Sync:       synchronizer,
		Events:     logger,
		Clock:      clk,
	})

	srv := httptest.NewServer(httpapi.New(httpapi.Config{
		Learning: svc,
		Broker:   broker,
		History:  logger,
		Ready:    ready,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string, header http.Header) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, func(context.Context) error { return errors.New("database down") })

	if resp := do(t, "GET", srv.URL+"/healthz", "", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", resp.StatusCode)
	}
	if resp := do(t, "GET", srv.URL+"/readyz", "", nil); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("readyz status = %d, want 503", resp.StatusCode)
	}
}

func TestCourseView_ETag(t *testing.T) {
	srv := newTestServer(t, nil)
	url := srv.URL + "/v1/students/s1/courses/c1"

	resp := do(t, "GET", url, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatal("ETag header missing")
	}
	view := decode[learning.CourseView](t, resp)
	if view.PrerequisiteStatus != gate.StateRequiredPending {
		t.Errorf("prerequisite_status = %q, want REQUIRED_PENDING", view.PrerequisiteStatus)
	}

	resp = do(t, "GET", url, "", http.Header{"If-None-Match": {etag}})
	if resp.StatusCode != http.StatusNotModified {
		t.Errorf("conditional status = %d, want 304", resp.StatusCode)
	}

	resp = do(t, "GET", srv.URL+"/v1/students/s2/courses/c1", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("not enrolled status = %d, want 404", resp.StatusCode)
	}
}

func TestPrerequisiteFlow(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := do(t, "GET", srv.URL+"/v1/students/s1/topics/t1", "", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("topic status = %d, want 403", resp.StatusCode)
	}
	body := decode[errorBody](t, resp)
	if body.Error != "access_denied" || !strings.Contains(body.Reason, "LLND") || body.Action != "/quizzes/llnd" {
		t.Errorf("error body = %+v", body)
	}

	if resp := do(t, "GET", srv.URL+"/v1/students/s1/prerequisites/llnd", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("prerequisite view status = %d, want 200", resp.StatusCode)
	}

	resp = do(t, "POST", srv.URL+"/v1/students/s1/quizzes/llnd/attempts", "", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start status = %d, want 201", resp.StatusCode)
	}
	started := decode[learning.AttemptView](t, resp)

	resp = do(t, "POST", srv.URL+"/v1/students/s1/quizzes/llnd/attempts", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("resume status = %d, want 200", resp.StatusCode)
	}

	id := started.Attempt.ID
	if resp := do(t, "POST", srv.URL+"/v1/students/s1/attempts/"+id+"/submit", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("submit status = %d, want 200", resp.StatusCode)
	}
	resp = do(t, "POST", srv.URL+"/v1/attempts/"+id+"/evaluate", `{"status":"SATISFACTORY"}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("evaluate status = %d, want 200", resp.StatusCode)
	}

	if resp := do(t, "GET", srv.URL+"/v1/students/s1/topics/t1", "", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("topic after LLND status = %d, want 200", resp.StatusCode)
	}

	resp = do(t, "GET", srv.URL+"/v1/students/s1/prerequisites/llnd", "", nil)
	if resp.StatusCode != http.StatusLocked {
		t.Errorf("satisfied prerequisite status = %d, want 423", resp.StatusCode)
	}
	if body := decode[errorBody](t, resp); body.Error != "not_required" {
		t.Errorf("error = %q, want not_required", body.Error)
	}
}

func TestEvaluate_BadRequest(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, body := range []string{"", "not json", `{}`} {
		resp := do(t, "POST", srv.URL+"/v1/attempts/a1/evaluate", body, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestMarkComplete(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := do(t, "POST", srv.URL+"/v1/students/s1/complete/chapter/t2", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown entity type status = %d, want 404", resp.StatusCode)
	}

	resp = do(t, "POST", srv.URL+"/v1/students/s1/complete/topic/t2", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mark status = %d, want 200", resp.StatusCode)
	}
	snap := decode[progress.Snapshot](t, resp)
	// t2 out of lesson, 2 topics, 2 quizzes and the prerequisite.
	if snap.Completed != 1 || snap.Total != 6 {
		t.Errorf("snapshot = %+v, want 1 of 6", snap)
	}

	resp = do(t, "GET", srv.URL+"/v1/students/s1/courses/c1/events?limit=10", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("events status = %d, want 200", resp.StatusCode)
	}
	list := decode[[]events.Event](t, resp)
	found := false
	for _, e := range list {
		if e.Type == events.TypeMarkedComplete {
			found = true
		}
	}
	if !found {
		t.Errorf("events = %+v, want a marked_complete event", list)
	}

	if resp := do(t, "GET", srv.URL+"/v1/students/s1/courses/c1/events?limit=-1", "", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", resp.StatusCode)
	}
}

func TestExport(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := do(t, "GET", srv.URL+"/v1/students/s1/courses/c1/report.xlsx", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("Content-Type = %q", ct)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.HasPrefix(string(data), "PK") {
		t.Error("body is not a zip archive")
	}

	resp = do(t, "GET", srv.URL+"/v1/students/s1/courses/missing/report.xlsx", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing course status = %d, want 404", resp.StatusCode)
	}
}

func TestStream(t *testing.T) {
	srv := newTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/students/s1/courses/c1/stream"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.CloseNow()

	read := func() progress.Snapshot {
		t.Helper()
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		var snap progress.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		return snap
	}

	first := read()
	if first.CourseID != "c1" || first.Completed != 0 {
		t.Errorf("first frame = %+v, want empty progress for c1", first)
	}

	if resp := do(t, "POST", srv.URL+"/v1/students/s1/complete/topic/t2", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("mark status = %d", resp.StatusCode)
	}

	next := read()
	if next.Completed != 1 || next.Fingerprint == first.Fingerprint {
		t.Errorf("pushed frame = %+v, want one completed node", next)
	}

	conn.Close(websocket.StatusNormalClosure, "")
}

func TestStream_NotEnrolled(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := do(t, "GET", srv.URL+"/v1/students/s2/courses/c1/stream", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
