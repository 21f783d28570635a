package analytics

import (
	"sort"
	"time"

	"github.com/therealutkarshpriyadarshi/logscope/pkg/types"
)

const (
	DefaultDDoSThreshold = 100
	DefaultDDoSWindow    = 5 * time.Minute
)

// Traffic patterns assigned to each source IP
const (
	PatternNormal      = "Normal"
	PatternHighVolume  = "High volume traffic"
	PatternBurst       = "Burst attack"
	PatternDistributed = "Distributed attack"
)

// DDoSConfig tunes flood detection
type DDoSConfig struct {
	// Threshold is requests per minute
	Threshold int
	Window    time.Duration
	// TargetIP restricts the analysis to one client when set
	TargetIP string
}

// WindowRate is the request rate of one time window
type WindowRate struct {
	Start             time.Time `json:"start"`
	Requests          int       `json:"requests"`
	RequestsPerMinute float64   `json:"requestsPerMinute"`
	UniqueIPs         int       `json:"uniqueIps"`
}

// Attacker is per-IP traffic over the whole log
type Attacker struct {
	IP        string    `json:"ip"`
	Requests  int       `json:"requests"`
	Windows   int       `json:"windows"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
	Pattern   string    `json:"pattern"`
}

// DDoSReport is the result of DetectDDoS
type DDoSReport struct {
	Detected     bool         `json:"detected"`
	PeakRate     int          `json:"peakRate"`
	AttackStart  time.Time    `json:"attackStart,omitempty"`
	AttackEnd    time.Time    `json:"attackEnd,omitempty"`
	Duration     int          `json:"durationMinutes"`
	TotalIPs     int          `json:"totalIps"`
	AffectedIPs  []string     `json:"affectedIps"`
	Traffic      []WindowRate `json:"traffic"`
	TopAttackers []Attacker   `json:"topAttackers"`
}

// DetectDDoS buckets requests into fixed windows and flags any window whose
// per-minute rate exceeds the threshold. The attack spans from the first
// window that set a new peak to the end of the peak window.
func DetectDDoS(records []*types.LogRecord, cfg DDoSConfig) DDoSReport {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultDDoSThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultDDoSWindow
	}
	minutes := cfg.Window.Minutes()

	type window struct {
		total int
		ips   map[string]struct{}
	}
	windows := make(map[int64]*window)
	attackers := make(map[string]*Attacker)
	attackerWindows := make(map[string]map[int64]struct{})

	for _, r := range records {
		if cfg.TargetIP != "" && r.IP != cfg.TargetIP {
			continue
		}
		start := r.Timestamp.Truncate(cfg.Window).UnixMilli()

		w, ok := windows[start]
		if !ok {
			w = &window{ips: make(map[string]struct{})}
			windows[start] = w
		}
		w.total++
		w.ips[r.IP] = struct{}{}

		a, ok := attackers[r.IP]
		if !ok {
			a = &Attacker{IP: r.IP, FirstSeen: r.Timestamp, Pattern: PatternNormal}
			attackers[r.IP] = a
			attackerWindows[r.IP] = make(map[int64]struct{})
		}
		a.Requests++
		a.LastSeen = r.Timestamp
		attackerWindows[r.IP][start] = struct{}{}
	}

	starts := make([]int64, 0, len(windows))
	for s := range windows {
		starts = append(starts, s)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	report := DDoSReport{TotalIPs: len(attackers), Traffic: make([]WindowRate, 0, len(starts))}
	var peak float64
	threshold := float64(cfg.Threshold)

	for _, s := range starts {
		w := windows[s]
		rate := float64(w.total) / minutes
		begin := time.UnixMilli(s).UTC()

		report.Traffic = append(report.Traffic, WindowRate{
			Start:             begin,
			Requests:          w.total,
			RequestsPerMinute: rate,
			UniqueIPs:         len(w.ips),
		})

		if rate > threshold {
			report.Detected = true
			if rate > peak {
				peak = rate
				report.AttackEnd = begin.Add(cfg.Window)
				if report.AttackStart.IsZero() {
					report.AttackStart = begin
				}
			}
		}
	}

	report.PeakRate = int(peak + 0.5)
	if report.Detected {
		report.Duration = int(report.AttackEnd.Sub(report.AttackStart).Minutes() + 0.999999)
	}

	list := make([]Attacker, 0, len(attackers))
	for ip, a := range attackers {
		a.Windows = len(attackerWindows[ip])
		switch {
		case a.Requests > cfg.Threshold:
			a.Pattern = PatternHighVolume
		case a.Windows == 1 && float64(a.Requests) > threshold/2:
			a.Pattern = PatternBurst
		case a.Windows > 5:
			a.Pattern = PatternDistributed
		}
		if float64(a.Requests) > threshold/10 {
			report.AffectedIPs = append(report.AffectedIPs, ip)
		}
		list = append(list, *a)
	}
	sort.Strings(report.AffectedIPs)

	sort.Slice(list, func(i, j int) bool {
		if list[i].Requests != list[j].Requests {
			return list[i].Requests > list[j].Requests
		}
		return list[i].IP < list[j].IP
	})
	if len(list) > 5 {
		list = list[:5]
	}
	report.TopAttackers = list

	return report
}
