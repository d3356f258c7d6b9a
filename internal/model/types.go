// Package model defines shared data structures.
package model

import (
	"strconv"
	"strings"
	"time"
)

// Category names a compressibility pattern.
type Category string

// Compressibility categories in classification order.
const (
	CategoryRepeat Category = "REPEAT"
	CategoryGroup  Category = "GROUP"
	CategoryRun    Category = "RUN"
	CategoryMirror Category = "MIRROR"
	CategoryRandom Category = "RANDOM"
)

// Categories lists every category in classification order.
var Categories = []Category{CategoryRepeat, CategoryGroup, CategoryRun, CategoryMirror, CategoryRandom}

// Compressibility is the classifier output for a sequence.
type Compressibility struct {
	Category Category
	Score    int
}

// Stimulus is a pool sequence tagged with its compressibility.
type Stimulus struct {
	Sequence        string
	Compressibility Compressibility
}

// Config defines experiment settings.
type Config struct {
	DisplayMs     int
	RecallSeconds int
	ServerURL     string
	PoolsPath     string
	Practice      bool
}

// ServerConfig defines backend settings.
type ServerConfig struct {
	Addr      string
	DataDir   string
	StaticDir string
	Columns   string
	GitHub    GitHubConfig
	SMTP      SMTPConfig
}

// GitHubConfig configures the GitHub contents mirror.
type GitHubConfig struct {
	Token  string
	Repo   string
	Branch string
	Dir    string
}

// Enabled reports whether the mirror has enough settings to run.
func (c GitHubConfig) Enabled() bool {
	return c.Token != "" && c.Repo != ""
}

// SMTPConfig configures the e-mail mirror.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// Enabled reports whether the mirror has enough settings to run.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != "" && len(c.To) > 0
}

// StatsConfig defines filters and options for stats output.
type StatsConfig struct {
	Identifier  string
	Since       *time.Time
	Last        int
	CurveWindow int
}

// SessionContext is attached to every record a session emits.
type SessionContext struct {
	SessionID         string
	ParticipantNumber int
	Identifier        string
	Strategy          string
}

// NormalizeIdentifier trims and lower-cases a free-text identifier.
func NormalizeIdentifier(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// TrialRecord is one scored recall step.
type TrialRecord struct {
	ParticipantNumber int      `json:"participant_number"`
	Identifier        string   `json:"netid"`
	SessionID         string   `json:"session_id"`
	TrialIndex        int      `json:"trial_index"`
	Sequence          string   `json:"sequence"`
	Recall            string   `json:"recall"`
	CorrectCount      int      `json:"correct_count"`
	TotalLetters      int      `json:"total_letters"`
	Accuracy          float64  `json:"accuracy"`
	Compressibility   int      `json:"compressibility"`
	PatternType       Category `json:"pattern_type"`
	RTSeconds         float64  `json:"rt_seconds"`
	TimedOut          bool     `json:"timed_out"`
	Strategy          string   `json:"strategy"`
}

// Row is a flat upload row keyed by column name.
type Row map[string]any

// Row converts the record to its wire row.
func (r TrialRecord) Row() Row {
	return Row{
		"participant_number": strconv.Itoa(r.ParticipantNumber),
		"netid":              r.Identifier,
		"session_id":         r.SessionID,
		"trial_index":        strconv.Itoa(r.TrialIndex),
		"sequence":           r.Sequence,
		"recall":             r.Recall,
		"correct_count":      strconv.Itoa(r.CorrectCount),
		"total_letters":      strconv.Itoa(r.TotalLetters),
		"accuracy":           strconv.FormatFloat(r.Accuracy, 'f', -1, 64),
		"compressibility":    strconv.Itoa(r.Compressibility),
		"pattern_type":       string(r.PatternType),
		"rt_seconds":         strconv.FormatFloat(r.RTSeconds, 'f', -1, 64),
		"timed_out":          strconv.FormatBool(r.TimedOut),
		"strategy":           r.Strategy,
	}
}

// StampContext copies session metadata onto every record.
func StampContext(records []TrialRecord, sc SessionContext) []TrialRecord {
	out := make([]TrialRecord, len(records))
	for i, r := range records {
		r.SessionID = sc.SessionID
		r.ParticipantNumber = sc.ParticipantNumber
		r.Identifier = sc.Identifier
		r.Strategy = sc.Strategy
		out[i] = r
	}
	return out
}

// UploadResponse is the body returned by the save endpoint.
type UploadResponse struct {
	Status   string `json:"status"`
	Filename string `json:"filename,omitempty"`
	Trials   int    `json:"trials"`
	Saved    bool   `json:"saved"`
	Mirrored *bool  `json:"mirrored,omitempty"`
	Error    string `json:"error,omitempty"`
}

// StatusSuccess marks a successful upload response.
const StatusSuccess = "success"

// StatusError marks a failed upload response.
const StatusError = "error"

// SessionSummary captures a completed session in the local store.
type SessionSummary struct {
	ID                string
	ParticipantNumber int
	Identifier        string
	Strategy          string
	StartedAt         time.Time
	EndedAt           time.Time
	Uploaded          bool
	UploadFilename    string
	Correct           int
	Total             int
}

// CategoryAggregate aggregates trial results for one category.
type CategoryAggregate struct {
	Category     Category
	Trials       int
	Correct      int
	Total        int
	TimedOut     int
	RTSumSeconds float64
}
