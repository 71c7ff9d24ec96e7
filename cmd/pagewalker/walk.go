package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/entrhq/pagewalker/pkg/browser"
	"github.com/entrhq/pagewalker/pkg/logging"
)

// walkOptions describe one scripted pass over a page.
type walkOptions struct {
	URL     string
	Input   string
	Value   string
	Button  string
	Keyword string
	Pause   time.Duration
}

// walkReport is printed as JSON when the walk finishes.
type walkReport struct {
	Discovery  *browser.Discovery     `json:"discovery"`
	Click      *browser.ClickResult   `json:"click,omitempty"`
	Heading    *browser.HeadingResult `json:"heading,omitempty"`
	Extraction *browser.Extraction    `json:"extraction,omitempty"`
}

// walker is the part of the manager a walk needs.
type walker interface {
	Discover(ctx context.Context, url string) (*browser.Discovery, error)
	Fill(id, value string) (*browser.FillResult, error)
	Click(ctx context.Context, id string, mode browser.ClickMode) (*browser.ClickResult, error)
	ClickHeadingByKeyword(ctx context.Context, keyword string) (*browser.HeadingResult, error)
	Extract() (*browser.Extraction, error)
}

func newWalkCmd(a *app) *cobra.Command {
	var opts walkOptions

	cmd := &cobra.Command{
		Use:   "walk",
		Short: "Discover a page, fill and submit its form, open a result and print its table",
		Long: `walk runs one scripted pass without the HTTP interface: it discovers the
page at --url, fills the chosen input with --value, clicks the chosen button,
clicks the first heading containing --keyword and prints the extracted table.
Inputs and buttons default to the first one discovered.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.URL == "" {
				return errors.New("--url is required")
			}
			defer logging.Shutdown()

			manager, err := a.newManager(componentLogger("walk"))
			if err != nil {
				return err
			}
			defer manager.Shutdown()

			report, err := walk(cmd.Context(), manager, opts)
			if report != nil {
				if encErr := writeReport(cmd.OutOrStdout(), report); encErr != nil && err == nil {
					err = encErr
				}
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.URL, "url", "", "page to discover")
	f.StringVar(&opts.Input, "input", "", "input to fill (default: first input)")
	f.StringVar(&opts.Value, "value", "", "value typed into the input")
	f.StringVar(&opts.Button, "button", "", "button to click (default: first button)")
	f.StringVar(&opts.Keyword, "keyword", "", "heading keyword to open; empty stops after the click")
	f.DurationVar(&opts.Pause, "pause", time.Second, "pause between steps")
	return cmd
}

// walk runs the steps in order and returns what it gathered so far when a
// step fails.
func walk(ctx context.Context, w walker, opts walkOptions) (*walkReport, error) {
	discovery, err := w.Discover(ctx, opts.URL)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	report := &walkReport{Discovery: discovery}

	input := opts.Input
	if input == "" && len(discovery.Fields) > 0 {
		input = discovery.Fields[0].ID
	}
	if input != "" && opts.Value != "" {
		if err := browser.Sleep(ctx, opts.Pause); err != nil {
			return report, err
		}
		if _, err := w.Fill(input, opts.Value); err != nil {
			return report, fmt.Errorf("fill %s: %w", input, err)
		}
	}

	button := opts.Button
	if button == "" && len(discovery.Buttons) > 0 {
		button = discovery.Buttons[0].ID
	}
	if button == "" {
		return report, nil
	}
	if err := browser.Sleep(ctx, opts.Pause); err != nil {
		return report, err
	}
	click, err := w.Click(ctx, button, browser.ClickModeHeadings)
	if err != nil {
		return report, fmt.Errorf("click %s: %w", button, err)
	}
	report.Click = click

	if opts.Keyword == "" {
		return report, nil
	}
	if err := browser.Sleep(ctx, opts.Pause); err != nil {
		return report, err
	}
	heading, err := w.ClickHeadingByKeyword(ctx, opts.Keyword)
	if err != nil {
		return report, fmt.Errorf("open heading %q: %w", opts.Keyword, err)
	}
	report.Heading = heading

	if err := browser.Sleep(ctx, opts.Pause); err != nil {
		return report, err
	}
	extraction, err := w.Extract()
	if err != nil {
		return report, fmt.Errorf("extract: %w", err)
	}
	report.Extraction = extraction
	return report, nil
}

func writeReport(out io.Writer, report *walkReport) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
