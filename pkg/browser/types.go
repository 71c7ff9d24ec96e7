package browser

import (
	"time"

	"github.com/entrhq/pagewalker/pkg/tables"
)

// Entry is one addressable element of a snapshot.
type Entry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Href is set for headings wrapped in a link
	Href string `json:"href,omitempty"`
}

// stamp identifies the page state a snapshot was taken on.
type stamp struct {
	ID      string
	TakenAt time.Time
	URL     string
	epoch   uint64
}

// Snapshot is an immutable, ordinal-indexed view of the buttons, fields and
// tables of the top-level document.
type Snapshot struct {
	stamp
	Buttons []Entry
	Fields  []Entry
	Tables  []Entry
}

// HeadingSnapshot lists headings across the top-level document and its frames.
type HeadingSnapshot struct {
	stamp
	Headings []Entry
}

// AuthOutcome reports what the authentication gate concluded.
type AuthOutcome string

const (
	AuthNotRequired AuthOutcome = "not_required"
	AuthRequired    AuthOutcome = "required"
	AuthResolved    AuthOutcome = "resolved"
	AuthFailed      AuthOutcome = "failed"
	AuthAbandoned   AuthOutcome = "abandoned"
)

// ClickMode selects what a button click returns.
type ClickMode int

const (
	// ClickModeStatus returns a confirmation only
	ClickModeStatus ClickMode = iota
	// ClickModeHeadings also enumerates the headings of the resulting page
	ClickModeHeadings
)

// HeadingMode selects what a heading click returns.
type HeadingMode int

const (
	// HeadingModeAck returns the clicked identifier only
	HeadingModeAck HeadingMode = iota
	// HeadingModeTable extracts the resulting table with pagination metadata
	HeadingModeTable
)

// Navigation describes what a click led to.
type Navigation string

const (
	NavigationPopup    Navigation = "popup"
	NavigationSamePage Navigation = "same_page"
)

// Discovery is the result of opening or re-navigating the session.
type Discovery struct {
	SnapshotID string      `json:"snapshot_id"`
	URL        string      `json:"url"`
	Buttons    []Entry     `json:"buttons"`
	Fields     []Entry     `json:"inputs"`
	Tables     []Entry     `json:"tables"`
	Auth       AuthOutcome `json:"auth"`
	Warnings   Warnings    `json:"warnings,omitempty"`
}

// FillResult confirms a field was set.
type FillResult struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Warnings Warnings `json:"warnings,omitempty"`
}

// ClickResult describes a button click.
type ClickResult struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	URL        string     `json:"url"`
	Navigation Navigation `json:"navigation"`
	// Headings is filled in ClickModeHeadings
	Headings []Entry  `json:"headings,omitempty"`
	Warnings Warnings `json:"warnings,omitempty"`
}

// HeadingResult describes a heading click.
type HeadingResult struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Table is filled in HeadingModeTable
	Table    *TablePayload `json:"table,omitempty"`
	Closed   bool          `json:"closed"`
	Warnings Warnings      `json:"warnings,omitempty"`
}

// Control is a pagination control next to a table.
type Control struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TablePayload is an extracted table with pagination metadata.
type TablePayload struct {
	TableName string          `json:"table_name"`
	PageSize  int             `json:"page_size"`
	PageCount string          `json:"page_count"`
	Buttons   []Control       `json:"buttons"`
	Data      []tables.Record `json:"data"`
}

// Extraction is the result of a plain table extraction.
type Extraction struct {
	Rows     int             `json:"rows"`
	Data     []tables.Record `json:"data"`
	Closed   bool            `json:"closed"`
	Warnings Warnings        `json:"warnings,omitempty"`
}

// Status is a read-only view of the session.
type Status struct {
	// RunID names the process run and its log file
	RunID             string      `json:"run_id"`
	Active            bool        `json:"active"`
	URL               string      `json:"url,omitempty"`
	CreatedAt         time.Time   `json:"created_at,omitzero"`
	LastUsedAt        time.Time   `json:"last_used_at,omitzero"`
	Auth              AuthOutcome `json:"auth,omitempty"`
	SnapshotID        string      `json:"snapshot_id,omitempty"`
	HeadingSnapshotID string      `json:"heading_snapshot_id,omitempty"`
}
