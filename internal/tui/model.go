// Package tui provides the Bubble Tea experiment interface.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/seqrecall/internal/model"
	"github.com/verte-zerg/seqrecall/internal/stimulus"
	"github.com/verte-zerg/seqrecall/internal/trial"
	"github.com/verte-zerg/seqrecall/internal/upload"
)

const (
	maxRecallRunes = 32
	uploadTimeout  = time.Minute
)

// Uploader sends a finished session to the backend.
type Uploader interface {
	Upload(ctx context.Context, records []model.TrialRecord) (model.UploadResponse, error)
}

// SessionStore keeps finished sessions locally.
type SessionStore interface {
	InsertSession(ctx context.Context, summary model.SessionSummary, records []model.TrialRecord) error
	MarkUploaded(ctx context.Context, sessionID, filename string) error
}

type phase int

const (
	phaseIdentifier phase = iota
	phaseOverview
	phaseInstructions
	phaseDisplay
	phaseRecall
	phasePracticeDone
	phaseStrategy
	phaseEnd
	phaseUploading
	phaseResult
)

type displayDoneMsg struct {
	trial *trial.Trial
}

type tickMsg struct {
	timerID uint64
}

type uploadDoneMsg struct {
	resp model.UploadResponse
	err  error
}

// Options configures a Model.
type Options struct {
	Session  model.SessionContext
	Stimuli  []model.Stimulus
	Timing   trial.Timing
	Practice bool
	Uploader Uploader
	Store    SessionStore
	Logger   *slog.Logger
	Now      func() time.Time
}

// Result describes how the experiment ended.
type Result struct {
	SessionID  string
	Completed  bool
	Stored     bool
	Uploaded   bool
	Filename   string
	MirrorWarn bool
	UploadErr  error
}

// Model implements the Bubble Tea experiment UI.
type Model struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	width  int
	height int

	phase   phase
	session model.SessionContext
	engine  *trial.Engine

	identifier textinput.Model
	strategy   textarea.Model
	spinner    spinner.Model
	progress   progress.Model

	inputErr  string
	input     []rune
	remaining int

	startedAt   time.Time
	records     []model.TrialRecord
	stored      bool
	uploaded    bool
	uploadResp  model.UploadResponse
	uploadErr   error
	confirmQuit bool
}

var (
	textStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	emphasisStyle = textStyle.Copy().Bold(true)
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	stimulusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	inputStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cursorStyle   = pendingStyle.Copy().Underline(true)
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F")).Bold(true)
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A")).Bold(true)
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
)

// NewModel constructs the experiment TUI model.
func NewModel(opts Options) *Model {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Timing == (trial.Timing{}) {
		opts.Timing = trial.DefaultTiming()
	}
	if opts.Timing.RecallSeconds <= 0 {
		opts.Timing.RecallSeconds = trial.DefaultRecallSeconds
	}

	ti := textinput.New()
	ti.Placeholder = "your identifier"
	ti.CharLimit = 64
	ti.Width = 30
	ti.Focus()

	ta := textarea.New()
	ta.Placeholder = "Briefly describe how you tried to remember the sequences"
	ta.ShowLineNumbers = false
	ta.SetWidth(60)
	ta.SetHeight(5)
	ta.KeyMap.InsertNewline.SetKeys("alt+enter")

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	bar := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	bar.Width = 40

	return &Model{
		opts:       opts,
		logger:     opts.Logger,
		now:        opts.Now,
		phase:      phaseIdentifier,
		session:    opts.Session,
		identifier: ti,
		strategy:   ta,
		spinner:    sp,
		progress:   bar,
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

// Result reports the final state once the program exits.
func (m *Model) Result() Result {
	return Result{
		SessionID:  m.session.SessionID,
		Completed:  m.records != nil,
		Stored:     m.stored,
		Uploaded:   m.uploaded,
		Filename:   m.uploadResp.Filename,
		MirrorWarn: m.uploaded && upload.MirrorFailed(m.uploadResp),
		UploadErr:  m.uploadErr,
	}
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case displayDoneMsg:
		return m, m.handleDisplayDone(msg)
	case tickMsg:
		return m, m.handleTick(msg)
	case uploadDoneMsg:
		return m, m.handleUploadDone(msg)
	case spinner.TickMsg:
		if m.phase != phaseUploading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, m.handleQuit()
		}
		m.confirmQuit = false
		return m, m.handleKey(msg)
	default:
		return m, nil
	}
}

// handleQuit guards against losing trial data that has not reached the backend.
func (m *Model) handleQuit() tea.Cmd {
	if !m.unsaved() || m.confirmQuit {
		if m.unsaved() {
			m.logger.Warn("quit with unsubmitted data", "session_id", m.session.SessionID, "stored", m.stored)
		}
		return tea.Quit
	}
	m.confirmQuit = true
	return nil
}

func (m *Model) unsaved() bool {
	if m.uploaded || m.engine == nil {
		return false
	}
	completed, _ := m.engine.Progress()
	return completed > 0
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch m.phase {
	case phaseIdentifier:
		if msg.Type == tea.KeyEnter {
			return m.submitIdentifier()
		}
		var cmd tea.Cmd
		m.identifier, cmd = m.identifier.Update(msg)
		return cmd
	case phaseOverview:
		if msg.Type == tea.KeyEnter {
			m.phase = phaseInstructions
		}
		return nil
	case phaseInstructions, phasePracticeDone:
		if msg.Type == tea.KeyEnter {
			return m.startTrial()
		}
		return nil
	case phaseRecall:
		return m.handleRecallKey(msg)
	case phaseStrategy:
		if msg.Type == tea.KeyEnter && !msg.Alt {
			m.finishSession()
			return nil
		}
		var cmd tea.Cmd
		m.strategy, cmd = m.strategy.Update(msg)
		return cmd
	case phaseEnd:
		if msg.Type == tea.KeyEnter {
			return m.beginUpload()
		}
		return nil
	case phaseResult:
		switch {
		case m.uploadErr != nil && msg.String() == "r":
			return m.beginUpload()
		case m.uploadErr == nil && (msg.Type == tea.KeyEnter || msg.Type == tea.KeyEsc || msg.String() == "q"):
			return tea.Quit
		}
		return nil
	default:
		return nil
	}
}

func (m *Model) submitIdentifier() tea.Cmd {
	id := model.NormalizeIdentifier(m.identifier.Value())
	if id == "" {
		m.inputErr = "Please enter your identifier."
		return nil
	}
	m.inputErr = ""
	m.session.Identifier = id
	m.identifier.Blur()

	var opts []trial.Option
	opts = append(opts, trial.WithTiming(m.opts.Timing), trial.WithClock(m.now))
	if m.opts.Practice {
		opts = append(opts, trial.WithPractice(stimulus.Tag(stimulus.PracticeSequence)))
	}
	m.engine = trial.NewEngine(m.session, m.opts.Stimuli, opts...)
	m.startedAt = m.now()
	m.phase = phaseOverview
	m.logger.Info("session started",
		"session_id", m.session.SessionID,
		"participant", m.session.ParticipantNumber,
		"identifier", id,
		"trials", len(m.opts.Stimuli),
	)
	return nil
}

func (m *Model) startTrial() tea.Cmd {
	t, err := m.engine.Start()
	if err != nil {
		if errors.Is(err, trial.ErrFinished) {
			m.enterStrategy()
			return nil
		}
		m.logger.Error("failed to start trial", "error", err)
		return nil
	}
	m.phase = phaseDisplay
	m.input = nil
	return tea.Tick(m.engine.Timing().Display, func(time.Time) tea.Msg {
		return displayDoneMsg{trial: t}
	})
}

func (m *Model) handleDisplayDone(msg displayDoneMsg) tea.Cmd {
	if m.engine == nil {
		return nil
	}
	cd, err := m.engine.DisplayElapsed(msg.trial)
	if err != nil {
		m.logger.Debug("ignored display timer", "error", err)
		return nil
	}
	m.phase = phaseRecall
	m.input = nil
	m.remaining = cd.Remaining()
	return tickCmd(cd.ID())
}

func tickCmd(id uint64) tea.Cmd {
	return tea.Tick(trial.TickInterval, func(time.Time) tea.Msg {
		return tickMsg{timerID: id}
	})
}

func (m *Model) handleTick(msg tickMsg) tea.Cmd {
	if m.engine == nil {
		return nil
	}
	out, err := m.engine.Tick(msg.timerID, string(m.input))
	if err != nil {
		return nil
	}
	if !out.Scored {
		m.remaining = out.Remaining
		return tickCmd(msg.timerID)
	}
	return m.afterScore(out)
}

func (m *Model) handleRecallKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEnter:
		out, err := m.engine.Submit(string(m.input))
		if err != nil {
			m.logger.Error("failed to submit recall", "error", err)
			return nil
		}
		return m.afterScore(out)
	case tea.KeyBackspace, tea.KeyDelete:
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
	case tea.KeySpace:
		m.appendInput([]rune{' '})
	case tea.KeyRunes:
		m.appendInput(msg.Runes)
	}
	return nil
}

func (m *Model) appendInput(runes []rune) {
	for _, r := range runes {
		if len(m.input) >= maxRecallRunes {
			return
		}
		m.input = append(m.input, r)
	}
}

func (m *Model) afterScore(out trial.Outcome) tea.Cmd {
	m.input = nil
	m.logger.Debug("trial scored",
		"trial", out.Record.TrialIndex,
		"pattern", out.Record.PatternType,
		"correct", out.Record.CorrectCount,
		"timed_out", out.TimedOut,
		"practice", out.Practice,
	)
	if out.Practice {
		m.phase = phasePracticeDone
		return nil
	}
	if m.engine.Done() {
		m.enterStrategy()
		return textarea.Blink
	}
	return m.startTrial()
}

func (m *Model) enterStrategy() {
	m.phase = phaseStrategy
	m.strategy.Focus()
}

// finishSession stamps the session context onto every record and keeps the
// session in the local store before any upload is attempted.
func (m *Model) finishSession() {
	m.session.Strategy = strings.TrimSpace(m.strategy.Value())
	m.strategy.Blur()
	m.records = model.StampContext(m.engine.Records(), m.session)
	m.phase = phaseEnd

	if m.opts.Store == nil {
		return
	}
	summary := model.SessionSummary{
		ID:                m.session.SessionID,
		ParticipantNumber: m.session.ParticipantNumber,
		Identifier:        m.session.Identifier,
		Strategy:          m.session.Strategy,
		StartedAt:         m.startedAt,
		EndedAt:           m.now(),
	}
	if err := m.opts.Store.InsertSession(context.Background(), summary, m.records); err != nil {
		m.logger.Error("failed to store session", "session_id", summary.ID, "error", err)
		return
	}
	m.stored = true
}

func (m *Model) beginUpload() tea.Cmd {
	m.phase = phaseUploading
	m.uploadErr = nil
	return tea.Batch(m.spinner.Tick, m.uploadCmd())
}

func (m *Model) uploadCmd() tea.Cmd {
	records := m.records
	uploader := m.opts.Uploader
	return func() tea.Msg {
		if uploader == nil {
			return uploadDoneMsg{err: errors.New("no server configured")}
		}
		ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
		defer cancel()
		resp, err := uploader.Upload(ctx, records)
		return uploadDoneMsg{resp: resp, err: err}
	}
}

func (m *Model) handleUploadDone(msg uploadDoneMsg) tea.Cmd {
	m.phase = phaseResult
	m.uploadResp = msg.resp
	if msg.err != nil {
		m.uploadErr = msg.err
		m.logger.Error("upload failed", "session_id", m.session.SessionID, "error", msg.err)
		return nil
	}
	m.uploadErr = nil
	m.uploaded = true
	m.logger.Info("upload complete",
		"session_id", m.session.SessionID,
		"file", msg.resp.Filename,
		"saved", msg.resp.Saved,
		"mirror_failed", upload.MirrorFailed(msg.resp),
	)
	if m.stored {
		if err := m.opts.Store.MarkUploaded(context.Background(), m.session.SessionID, msg.resp.Filename); err != nil {
			m.logger.Error("failed to mark session uploaded", "session_id", m.session.SessionID, "error", err)
		}
	}
	return nil
}

// View implements tea.Model.
func (m *Model) View() string {
	content := m.renderBody()
	if m.confirmQuit {
		content += "\n\n" + warnStyle.Render("Your data has not been submitted. Press ctrl+c again to quit anyway.")
	}
	if m.width == 0 || m.height == 0 {
		return content
	}
	footer := m.renderFooter()
	if footer == "" || m.height < 3 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
	}
	body := lipgloss.Place(m.width, m.height-1, lipgloss.Center, lipgloss.Center, content)
	footerLine := lipgloss.Place(m.width, 1, lipgloss.Center, lipgloss.Center, footer)
	return body + "\n" + footerLine
}

func (m *Model) contentWidth() int {
	if m.width == 0 {
		return 60
	}
	w := int(float64(m.width) * 0.70)
	if w < 1 {
		w = 1
	}
	return w
}

func (m *Model) renderBody() string {
	width := m.contentWidth()
	seconds := m.opts.Timing.RecallSeconds
	switch m.phase {
	case phaseIdentifier:
		out := titleStyle.Render("Welcome") + "\n\n" +
			wrapParagraphs([][]styledRune{paragraph(plain("Please enter your identifier and press "), bold("Enter"), plain("."))}, width) +
			"\n\n" + m.identifier.View()
		if m.inputErr != "" {
			out += "\n\n" + warnStyle.Render(m.inputErr)
		}
		return out
	case phaseOverview:
		paras := [][]styledRune{
			paragraph(plain("You will see a short sequence of "), bold(fmt.Sprintf("%d letters", stimulus.SequenceLength)), plain(".")),
			paragraph(plain("You will then have "), bold(fmt.Sprintf("%d seconds", seconds)), plain(" to type what you remember.")),
			paragraph(plain("You may press "), bold("Enter"), plain(" to submit early.")),
		}
		if m.opts.Practice {
			paras = append(paras, paragraph(plain("First, you will complete one practice trial.")))
		}
		return titleStyle.Render("What You Will Be Doing") + "\n\n" + wrapParagraphs(paras, width) + "\n\n" + footerStyle.Render("Press Enter to continue")
	case phaseInstructions:
		next := "Press Enter to begin"
		if m.opts.Practice {
			next = "Press Enter to begin the practice trial"
		}
		paras := [][]styledRune{
			paragraph(plain("You will have "), bold(fmt.Sprintf("%d seconds", seconds)), plain(" for each recall.")),
			paragraph(plain("You may press "), bold("Enter"), plain(" to submit early.")),
			paragraph(plain("Letters are scored by position, so type them in the order you saw them.")),
		}
		return titleStyle.Render("Memory Task Instructions") + "\n\n" + wrapParagraphs(paras, width) + "\n\n" + footerStyle.Render(next)
	case phaseDisplay:
		t := m.engine.Current()
		if t == nil {
			return ""
		}
		return stimulusStyle.Render(spaced(t.Stimulus.Sequence))
	case phaseRecall:
		field := renderStyledRunes(buildRecallRunes(m.input, stimulus.SequenceLength, true))
		return textStyle.Render("Type what you remember. Press Enter to submit:") + "\n\n" +
			titleStyle.Render(fmt.Sprintf("%d", m.remaining)) + "\n\n" + field
	case phasePracticeDone:
		_, total := m.engine.Progress()
		paras := [][]styledRune{
			paragraph(plain("You will now complete "), bold(fmt.Sprintf("%d real trials", total)), plain(".")),
		}
		return titleStyle.Render("Practice Complete") + "\n\n" + wrapParagraphs(paras, width) + "\n\n" + footerStyle.Render("Press Enter when you are ready")
	case phaseStrategy:
		return titleStyle.Render("One last question") + "\n\n" +
			textStyle.Render("Briefly describe how you tried to remember the sequences:") + "\n\n" +
			m.strategy.View() + "\n\n" + footerStyle.Render("Enter to submit · alt+enter for a new line")
	case phaseEnd:
		paras := [][]styledRune{
			paragraph(plain("Thank you for participating.")),
			paragraph(bold("You must press Enter to submit your data.")),
		}
		return titleStyle.Render("Task Complete") + "\n\n" + wrapParagraphs(paras, width)
	case phaseUploading:
		return m.spinner.View() + " " + textStyle.Render("Submitting your data...")
	case phaseResult:
		return m.renderResult(width)
	default:
		return ""
	}
}

func (m *Model) renderResult(width int) string {
	if m.uploadErr != nil {
		paras := [][]styledRune{
			paragraph(plain("Your data could not be submitted: "+m.uploadErr.Error())),
			paragraph(bold("Please notify the experimenter before closing this window.")),
			paragraph(plain("Press r to try again.")),
		}
		if m.stored {
			paras = append(paras, paragraph(plain("A local copy was kept as session "+m.session.SessionID+".")))
		}
		return warnStyle.Render("Submission Failed") + "\n\n" + wrapParagraphs(paras, width)
	}
	out := okStyle.Render("Data Submitted Successfully") + "\n\n" +
		wrapParagraphs([][]styledRune{paragraph(plain("Your responses have been recorded."))}, width)
	if upload.MirrorFailed(m.uploadResp) {
		out += "\n\n" + warnStyle.Render(wrapStyledRunes(paragraph(plain("The backup copy of your data failed. Please notify the experimenter.")), width))
	}
	return out + "\n\n" + footerStyle.Render("Press Enter to exit")
}

func (m *Model) renderFooter() string {
	segments := []string{fmt.Sprintf("Participant %d", m.session.ParticipantNumber)}
	if m.engine != nil {
		completed, total := m.engine.Progress()
		if total > 0 {
			percent := float64(completed) / float64(total)
			segments = append(segments,
				fmt.Sprintf("Trial %d/%d", completed, total),
				m.progress.ViewAs(percent),
			)
		}
	}
	return footerStyle.Render(strings.Join(segments, "  "))
}

func spaced(seq string) string {
	return strings.Join(strings.Split(seq, ""), " ")
}
