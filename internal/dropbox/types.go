package dropbox

import (
	"encoding/json"
	"time"
)

// Write mode tags understood by the files endpoints.
const (
	ModeAdd       = "add"
	ModeOverwrite = "overwrite"
	ModeUpdate    = "update"
)

// WriteMode selects what happens when the destination path already exists.
// Tag is normally one of ModeAdd, ModeOverwrite, ModeUpdate; Rev is only
// meaningful for ModeUpdate.
type WriteMode struct {
	Tag string
	Rev string
}

// AddMode never overwrites; a conflicting name is an error.
func AddMode() WriteMode { return WriteMode{Tag: ModeAdd} }

// OverwriteMode always replaces the existing file.
func OverwriteMode() WriteMode { return WriteMode{Tag: ModeOverwrite} }

// UpdateMode replaces the file only if its current revision is rev.
func UpdateMode(rev string) WriteMode { return WriteMode{Tag: ModeUpdate, Rev: rev} }

// String returns the tag, with the revision for update mode.
func (m WriteMode) String() string {
	if m.Tag == ModeUpdate {
		return ModeUpdate + "(" + m.Rev + ")"
	}

	return m.Tag
}

// MarshalJSON encodes the Dropbox union form: a bare tag string, or
// {".tag":"update","update":rev}.
func (m WriteMode) MarshalJSON() ([]byte, error) {
	if m.Tag == ModeUpdate {
		return json.Marshal(struct {
			Tag    string `json:".tag"`
			Update string `json:"update"`
		}{Tag: ModeUpdate, Update: m.Rev})
	}

	tag := m.Tag
	if tag == "" {
		tag = ModeAdd
	}

	return json.Marshal(tag)
}

// FileMetadata describes an uploaded file, normalized from the API response.
type FileMetadata struct {
	ID             string
	Name           string
	PathDisplay    string
	Rev            string
	Size           int64
	ContentHash    string // hex, see pkg/contenthash
	ServerModified time.Time
}

// fileMetadataResponse is the JSON shape of FileMetadata.
type fileMetadataResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	PathDisplay    string `json:"path_display"`
	Rev            string `json:"rev"`
	Size           int64  `json:"size"`
	ContentHash    string `json:"content_hash"`
	ServerModified string `json:"server_modified"`
}

// Cursor tracks an upload session: its ID and how many bytes the server has
// received so far.
type Cursor struct {
	SessionID string `json:"session_id"`
	Offset    int64  `json:"offset"`
}

// commitInfo is the destination part of upload and finish arguments.
type commitInfo struct {
	Path       string    `json:"path"`
	Mode       WriteMode `json:"mode"`
	Autorename bool      `json:"autorename"`
	Mute       bool      `json:"mute"`
}

type sessionStartArg struct {
	Close bool `json:"close"`
}

type sessionStartResponse struct {
	SessionID string `json:"session_id"`
}

type sessionAppendArg struct {
	Cursor Cursor `json:"cursor"`
	Close  bool   `json:"close"`
}

type sessionFinishArg struct {
	Cursor Cursor     `json:"cursor"`
	Commit commitInfo `json:"commit"`
}
