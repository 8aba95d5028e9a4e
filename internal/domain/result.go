package domain

import "time"

// SyncType distinguishes a full resync from an incremental one.
type SyncType string

const (
	SyncFull        SyncType = "full"
	SyncIncremental SyncType = "incremental"
)

// StopMessage is reported when a sync ends on a user stop request.
const StopMessage = "Sync stopped by user request"

// SyncResult is the outcome of one sync invocation.
type SyncResult struct {
	ID           int64      `json:"id,omitempty"`
	Success      bool       `json:"success"`
	Created      int        `json:"created"`
	Updated      int        `json:"updated"`
	Skipped      int        `json:"skipped"`
	Errored      int        `json:"errors_count"`
	Errors       []string   `json:"errors"`
	Error        string     `json:"error,omitempty"`
	SyncType     SyncType   `json:"sync_type"`
	DataSource   DataSource `json:"data_source"`
	TotalFetched int        `json:"total_fetched"`
	FilteredFrom int        `json:"filtered_from,omitempty"`
	Stopped      bool       `json:"stopped"`
	StopMessage  string     `json:"stop_message,omitempty"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      time.Time  `json:"end_time"`
	Duration     float64    `json:"duration"`
}

// Processed returns how many records reached a decision.
func (r *SyncResult) Processed() int {
	return r.Created + r.Updated + r.Skipped + r.Errored
}

// FirstSyncNotice is stored briefly after the first successful sync.
type FirstSyncNotice struct {
	Created           int     `json:"created"`
	Duration          float64 `json:"duration"`
	TaxonomiesCreated int     `json:"taxonomies_created"`
}

// SyncStatus is a point-in-time view of the sync subsystem.
type SyncStatus struct {
	LastSync      *time.Time  `json:"last_sync,omitempty"`
	LastResult    *SyncResult `json:"last_result,omitempty"`
	TotalEvents   int         `json:"total_events"`
	IsRunning     bool        `json:"is_running"`
	NextScheduled *time.Time  `json:"next_scheduled,omitempty"`
	SyncInterval  string      `json:"sync_interval"`
}
