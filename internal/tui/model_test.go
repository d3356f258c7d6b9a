package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/seqrecall/internal/model"
	"github.com/verte-zerg/seqrecall/internal/stimulus"
	"github.com/verte-zerg/seqrecall/internal/trial"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

type fakeUploader struct {
	resp     model.UploadResponse
	err      error
	received []model.TrialRecord
}

func (u *fakeUploader) Upload(_ context.Context, records []model.TrialRecord) (model.UploadResponse, error) {
	u.received = records
	return u.resp, u.err
}

type fakeStore struct {
	summary  model.SessionSummary
	records  []model.TrialRecord
	uploaded string
}

func (s *fakeStore) InsertSession(_ context.Context, summary model.SessionSummary, records []model.TrialRecord) error {
	s.summary = summary
	s.records = records
	return nil
}

func (s *fakeStore) MarkUploaded(_ context.Context, _ string, filename string) error {
	s.uploaded = filename
	return nil
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

var (
	enterKey = tea.KeyMsg{Type: tea.KeyEnter}
	ctrlC    = tea.KeyMsg{Type: tea.KeyCtrlC}
)

func send(m *Model, msg tea.Msg) tea.Cmd {
	_, cmd := m.Update(msg)
	return cmd
}

func newTestModel(t *testing.T, up *fakeUploader, st *fakeStore) (*Model, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Unix(5000, 0)}
	m := NewModel(Options{
		Session:  model.SessionContext{SessionID: "sess-1", ParticipantNumber: 4},
		Stimuli:  []model.Stimulus{stimulus.Tag("ABABABC"), stimulus.Tag("QZTRPNL")},
		Practice: true,
		Uploader: up,
		Store:    st,
		Now:      clock.Now,
	})
	return m, clock
}

func showAndArm(t *testing.T, m *Model) {
	t.Helper()
	if m.phase != phaseDisplay {
		t.Fatalf("expected display phase, got %d", m.phase)
	}
	send(m, displayDoneMsg{trial: m.engine.Current()})
	if m.phase != phaseRecall {
		t.Fatalf("expected recall phase, got %d", m.phase)
	}
}

// runToEnd drives a session through practice, two trials and the strategy survey.
func runToEnd(t *testing.T, m *Model, clock *testClock) {
	t.Helper()
	send(m, key(" ABC123 "))
	send(m, enterKey)
	if m.phase != phaseOverview {
		t.Fatalf("expected overview after identifier, got %d", m.phase)
	}
	send(m, enterKey)
	send(m, enterKey)

	showAndArm(t, m)
	send(m, key("abcabca"))
	send(m, enterKey)
	if m.phase != phasePracticeDone {
		t.Fatalf("expected practice complete, got %d", m.phase)
	}
	if completed, _ := m.engine.Progress(); completed != 0 {
		t.Fatalf("practice must not count as a trial")
	}
	send(m, enterKey)

	showAndArm(t, m)
	id := m.engine.Current().Countdown().ID()
	send(m, key("qw"))
	for i := 0; i < 10; i++ {
		clock.now = clock.now.Add(time.Second)
		send(m, tickMsg{timerID: id})
	}
	showAndArm(t, m)
	send(m, key("qztrpnl"))
	send(m, enterKey)
	if m.phase != phaseStrategy {
		t.Fatalf("expected strategy survey, got %d", m.phase)
	}
	send(m, key("chunking"))
	send(m, enterKey)
	if m.phase != phaseEnd {
		t.Fatalf("expected end screen, got %d", m.phase)
	}
}

func TestIdentifierRequired(t *testing.T) {
	m, _ := newTestModel(t, &fakeUploader{}, &fakeStore{})
	send(m, key("   "))
	send(m, enterKey)
	if m.phase != phaseIdentifier {
		t.Fatalf("expected to stay on identifier screen")
	}
	if !strings.Contains(m.View(), "Please enter your identifier.") {
		t.Fatalf("expected validation message")
	}
}

func TestFullSessionStoresAndUploads(t *testing.T) {
	up := &fakeUploader{resp: model.UploadResponse{Status: model.StatusSuccess, Filename: "p4_abc123_memory.csv", Trials: 2, Saved: true}}
	st := &fakeStore{}
	m, clock := newTestModel(t, up, st)
	runToEnd(t, m, clock)

	if len(st.records) != 2 {
		t.Fatalf("expected 2 stored records, got %d", len(st.records))
	}
	timedOut := st.records[0]
	if !timedOut.TimedOut || timedOut.Recall != "QW" || timedOut.RTSeconds != 10 {
		t.Fatalf("unexpected timed-out record: %+v", timedOut)
	}
	if st.records[1].CorrectCount != 7 || st.records[1].TimedOut {
		t.Fatalf("unexpected submitted record: %+v", st.records[1])
	}
	for _, r := range st.records {
		if r.Identifier != "abc123" || r.Strategy != "chunking" || r.ParticipantNumber != 4 || r.SessionID != "sess-1" {
			t.Fatalf("expected stamped context, got %+v", r)
		}
	}
	if st.summary.Strategy != "chunking" {
		t.Fatalf("expected strategy on summary")
	}

	send(m, enterKey)
	if m.phase != phaseUploading {
		t.Fatalf("expected uploading phase")
	}
	send(m, m.uploadCmd()())
	if m.phase != phaseResult || !m.uploaded {
		t.Fatalf("expected successful result")
	}
	if len(up.received) != 2 {
		t.Fatalf("expected uploader to receive 2 records")
	}
	if st.uploaded != "p4_abc123_memory.csv" {
		t.Fatalf("expected session marked uploaded, got %q", st.uploaded)
	}
	if !strings.Contains(m.View(), "Data Submitted Successfully") {
		t.Fatalf("expected success screen")
	}
	res := m.Result()
	if !res.Completed || !res.Stored || !res.Uploaded || res.MirrorWarn {
		t.Fatalf("unexpected result: %+v", res)
	}

	cmd := send(m, ctrlC)
	if cmd == nil {
		t.Fatalf("expected quit once data is submitted")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected quit message")
	}
}

func TestUnsavedGuardRequiresSecondPress(t *testing.T) {
	up := &fakeUploader{err: errors.New("connection refused")}
	m, clock := newTestModel(t, up, &fakeStore{})
	runToEnd(t, m, clock)

	if cmd := send(m, ctrlC); cmd != nil {
		t.Fatalf("expected first ctrl+c to be held back")
	}
	if !strings.Contains(m.View(), "Press ctrl+c again") {
		t.Fatalf("expected quit warning")
	}

	send(m, enterKey)
	if m.confirmQuit {
		t.Fatalf("expected another key to clear the quit warning")
	}
	send(m, m.uploadCmd()())
	if m.uploaded || m.Result().UploadErr == nil {
		t.Fatalf("expected failed upload")
	}
	view := m.View()
	if !strings.Contains(view, "Submission Failed") || !strings.Contains(view, "connection refused") {
		t.Fatalf("expected blocking failure screen, got %q", view)
	}

	if cmd := send(m, enterKey); cmd != nil {
		t.Fatalf("enter must not dismiss a failed upload")
	}
	if cmd := send(m, ctrlC); cmd != nil {
		t.Fatalf("expected guard after failed upload")
	}
	if cmd := send(m, ctrlC); cmd == nil {
		t.Fatalf("expected second ctrl+c to quit")
	}
}

func TestManualRetryAfterFailure(t *testing.T) {
	up := &fakeUploader{err: errors.New("503")}
	m, clock := newTestModel(t, up, &fakeStore{})
	runToEnd(t, m, clock)
	send(m, enterKey)
	send(m, m.uploadCmd()())

	up.err = nil
	up.resp = model.UploadResponse{Status: model.StatusSuccess, Filename: "f.csv", Saved: true}
	if cmd := send(m, key("r")); cmd == nil {
		t.Fatalf("expected retry to start an upload")
	}
	if m.phase != phaseUploading {
		t.Fatalf("expected uploading phase on retry")
	}
	send(m, m.uploadCmd()())
	if !m.uploaded {
		t.Fatalf("expected retry to succeed")
	}
}

func TestMirrorFailureWarnsWithoutBlocking(t *testing.T) {
	mirrored := false
	up := &fakeUploader{resp: model.UploadResponse{Status: model.StatusSuccess, Filename: "f.csv", Saved: true, Mirrored: &mirrored}}
	m, clock := newTestModel(t, up, &fakeStore{})
	runToEnd(t, m, clock)
	send(m, enterKey)
	send(m, m.uploadCmd()())

	if !strings.Contains(m.View(), "backup copy of your data failed") {
		t.Fatalf("expected mirror warning")
	}
	if !m.Result().MirrorWarn {
		t.Fatalf("expected mirror warning in result")
	}
	if cmd := send(m, enterKey); cmd == nil {
		t.Fatalf("expected enter to finish")
	}
}

func TestQuitBeforeTrialsIsImmediate(t *testing.T) {
	m, _ := newTestModel(t, &fakeUploader{}, &fakeStore{})
	if cmd := send(m, ctrlC); cmd == nil {
		t.Fatalf("expected immediate quit without data")
	}
}

func TestStaleTimersIgnored(t *testing.T) {
	m, _ := newTestModel(t, &fakeUploader{}, &fakeStore{})
	send(m, key("abc"))
	send(m, enterKey)
	send(m, enterKey)
	send(m, enterKey)

	practice := m.engine.Current()
	showAndArm(t, m)
	send(m, enterKey)
	send(m, enterKey)

	// A late display timer for the practice trial must not arm the next trial.
	send(m, displayDoneMsg{trial: practice})
	if m.phase != phaseDisplay {
		t.Fatalf("expected display phase to survive a stale timer, got %d", m.phase)
	}
	showAndArm(t, m)
	if cmd := send(m, tickMsg{timerID: 999}); cmd != nil {
		t.Fatalf("expected stale tick to be dropped")
	}
	if m.remaining != trial.DefaultRecallSeconds {
		t.Fatalf("expected countdown untouched, got %d", m.remaining)
	}
}

func TestAltEnterKeepsStrategyOpen(t *testing.T) {
	m, _ := newTestModel(t, &fakeUploader{}, &fakeStore{})
	m.engine = trial.NewEngine(m.session, nil)
	m.enterStrategy()
	send(m, tea.KeyMsg{Type: tea.KeyEnter, Alt: true})
	if m.phase != phaseStrategy {
		t.Fatalf("expected alt+enter to keep the survey open")
	}
}

func TestDisplayShowsSpacedStimulus(t *testing.T) {
	m, _ := newTestModel(t, &fakeUploader{}, &fakeStore{})
	send(m, key("abc"))
	send(m, enterKey)
	send(m, enterKey)
	send(m, enterKey)
	if !strings.Contains(m.View(), "A B C A B C A") {
		t.Fatalf("expected practice sequence on screen, got %q", m.View())
	}
}

func TestRenderFooterFormats(t *testing.T) {
	m, _ := newTestModel(t, &fakeUploader{}, &fakeStore{})
	out := m.renderFooter()
	if !strings.Contains(out, "Participant 4") {
		t.Fatalf("footer missing participant: %s", out)
	}
	m.engine = trial.NewEngine(m.session, []model.Stimulus{stimulus.Tag("ABCDEFG"), stimulus.Tag("QZTRPNL")})
	out = m.renderFooter()
	if !strings.Contains(out, "Trial 0/2") {
		t.Fatalf("footer missing trial progress: %s", out)
	}
}
