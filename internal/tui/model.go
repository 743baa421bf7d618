// Package tui renders a scan campaign's live progress, following
// superapple8x-GoNetWatch's bubbletea/bubbles/lipgloss tick-driven model
// (internal/tui/model.go's AnalysisModel) adapted from a traffic-analysis
// dashboard to a probe-completion counter.
package tui

import (
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Progress is updated by cmd/netrecon once a scan returns (one Record call
// per merged verdict) and polled by the TUI on each tick; its counters are
// atomic, so the updating and polling goroutines never block each other.
type Progress struct {
	completed int64
	open      int64
	closed    int64
	filtered  int64
}

func (p *Progress) Completed() int64 { return atomic.LoadInt64(&p.completed) }
func (p *Progress) Open() int64      { return atomic.LoadInt64(&p.open) }
func (p *Progress) Closed() int64    { return atomic.LoadInt64(&p.closed) }
func (p *Progress) Filtered() int64  { return atomic.LoadInt64(&p.filtered) }

// RecordOpen/RecordClosed/RecordFiltered each count one completed probe;
// cmd/netrecon's tallyProgress calls them for every verdict in the
// finished ScanResults.
func (p *Progress) RecordOpen()     { atomic.AddInt64(&p.completed, 1); atomic.AddInt64(&p.open, 1) }
func (p *Progress) RecordClosed()   { atomic.AddInt64(&p.completed, 1); atomic.AddInt64(&p.closed, 1) }
func (p *Progress) RecordFiltered() { atomic.AddInt64(&p.completed, 1); atomic.AddInt64(&p.filtered, 1) }

// ProgressModel is the bubbletea model for a live scan-progress view.
type ProgressModel struct {
	progress      *Progress
	total         int
	interfaceName string
	method        string
	width         int
	done          bool
}

// NewProgressModel builds a model that polls progress until it reports
// total completed probes.
func NewProgressModel(progress *Progress, total int, iface, method string) ProgressModel {
	return ProgressModel{
		progress:      progress,
		total:         total,
		interfaceName: iface,
		method:        method,
	}
}

// TickMsg drives the periodic re-render; Init schedules the first one and
// Update reschedules after each.
type TickMsg time.Time

func (m ProgressModel) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(150*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
