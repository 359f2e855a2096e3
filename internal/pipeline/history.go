package pipeline

import "sync"

// ReportLog keeps the most recent pass reports in memory for the status
// server.
type ReportLog struct {
	mu      sync.Mutex
	limit   int
	reports []PassReport
}

// NewReportLog keeps at most limit reports.
func NewReportLog(limit int) *ReportLog {
	if limit < 1 {
		limit = 1
	}
	return &ReportLog{limit: limit}
}

// Add records a finished pass.
func (l *ReportLog) Add(r PassReport) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reports = append(l.reports, r)
	if over := len(l.reports) - l.limit; over > 0 {
		l.reports = append([]PassReport(nil), l.reports[over:]...)
	}
}

// RecentPasses returns the kept reports, newest first.
func (l *ReportLog) RecentPasses() []PassReport {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]PassReport, len(l.reports))
	for i, r := range l.reports {
		out[len(out)-1-i] = r
	}
	return out
}
