package update

import "time"

// Stage is one named phase of an update flow.
type Stage string

const (
	StageChecking    Stage = "checking"
	StageDownloading Stage = "downloading"
	StageInstalling  Stage = "installing"
	StageCompleted   Stage = "completed"
	StageError       Stage = "error"
)

// Order ranks stages along checking -> downloading -> installing -> completed.
// Error has no rank; it may follow any stage.
func (s Stage) Order() int {
	switch s {
	case StageChecking:
		return 0
	case StageDownloading:
		return 1
	case StageInstalling:
		return 2
	case StageCompleted:
		return 3
	default:
		return -1
	}
}

// Progress is a point-in-time status event for an update flow.
type Progress struct {
	Stage    Stage   `json:"stage"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message"`
	Error    string  `json:"error,omitempty"`
}

// VersionInfo is the result of a single resolution. It is never mutated
// after Resolve returns it.
type VersionInfo struct {
	CurrentVersion string     `json:"current_version"`
	LatestVersion  string     `json:"latest_version"`
	HasUpdate      bool       `json:"has_update"`
	DownloadURL    string     `json:"download_url,omitempty"`
	ReleaseNotes   string     `json:"release_notes,omitempty"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
}

// Summary describes how a PerformAutoUpdate call ended when it did not
// hand off to a restart.
type Summary struct {
	Info       VersionInfo `json:"info"`
	Updated    bool        `json:"updated"`
	StagedPath string      `json:"staged_path,omitempty"`
	Message    string      `json:"message"`
}

// Terminal reports whether the stage ends a flow.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageError
}
