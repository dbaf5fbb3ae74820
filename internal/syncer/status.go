package syncer

import "time"

// StatusView is the JSON form of Status.
type StatusView struct {
	State      string      `json:"state"`
	Last       string      `json:"last,omitempty"`
	LastPassID string      `json:"last_pass_id,omitempty"`
	LastRun    *time.Time  `json:"last_run,omitempty"`
	Checkpoint *time.Time  `json:"checkpoint,omitempty"`
	Progress   *Progress   `json:"progress,omitempty"`
	Summary    *ResultView `json:"summary,omitempty"`
}

// Progress counts documents handled by the write phase.
type Progress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// ResultView summarizes the last successful pass.
type ResultView struct {
	Full           bool   `json:"full"`
	Fetched        int    `json:"fetched"`
	Documents      int    `json:"documents"`
	Highlights     int    `json:"highlights"`
	Created        int    `json:"created"`
	Updated        int    `json:"updated"`
	Unchanged      int    `json:"unchanged"`
	Renamed        int    `json:"renamed"`
	Flagged        int    `json:"flagged"`
	Trashed        int    `json:"trashed"`
	Failed         int    `json:"failed"`
	RenderFailures int    `json:"render_failures"`
	Duration       string `json:"duration"`
}

// View converts a Status snapshot for JSON consumers.
func (s Status) View() StatusView {
	v := StatusView{
		State:      s.State.String(),
		Last:       s.Last,
		LastPassID: s.LastPassID,
		Checkpoint: s.Checkpoint,
	}
	if !s.LastRun.IsZero() {
		t := s.LastRun
		v.LastRun = &t
	}
	if s.State == Syncing && s.Total > 0 {
		v.Progress = &Progress{Done: s.Done, Total: s.Total}
	}
	if r := s.Result; r != nil {
		v.Summary = &ResultView{
			Full:           r.Full,
			Fetched:        r.Fetched,
			Documents:      r.Documents,
			Highlights:     r.Highlights,
			Created:        r.Report.Created,
			Updated:        r.Report.Updated,
			Unchanged:      r.Report.Unchanged,
			Renamed:        r.Report.Renamed,
			Flagged:        r.Report.Flagged,
			Trashed:        r.Report.Trashed,
			Failed:         len(r.Report.Failures),
			RenderFailures: len(r.RenderFailures),
			Duration:       r.Duration.Round(time.Millisecond).String(),
		}
	}
	return v
}
