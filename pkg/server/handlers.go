package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/entrhq/pagewalker/pkg/browser"
	"github.com/entrhq/pagewalker/pkg/tables"
)

const statusOK = "200"

type statusResponse struct {
	Status string `json:"status"`
	Info   string `json:"info"`
	URL    string `json:"url,omitempty"`
	ID     string `json:"id,omitempty"`
}

type itemsResponse struct {
	Buttons  []browser.Entry     `json:"buttons"`
	Inputs   []browser.Entry     `json:"inputs"`
	Tables   []browser.Entry     `json:"tables"`
	Auth     browser.AuthOutcome `json:"auth,omitempty"`
	Warnings []string            `json:"warnings,omitempty"`
}

func (s *Server) handleGetURLItems(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := decodeJSONBody(w, r, &req, false); err != nil {
		s.fail(w, "discover", err)
		return
	}
	if err := required("url", req.URL); err != nil {
		s.fail(w, "discover", err)
		return
	}

	res, err := s.backend.Discover(r.Context(), req.URL)
	if err != nil {
		s.fail(w, "discover", err)
		return
	}
	s.observe("discover", res.Warnings)

	respondJSON(w, itemsResponse{
		Buttons:  res.Buttons,
		Inputs:   res.Fields,
		Tables:   res.Tables,
		Auth:     res.Auth,
		Warnings: res.Warnings,
	})
}

func (s *Server) handleSetInputValue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InputID string `json:"input_id"`
		Value   string `json:"value"`
	}
	if err := decodeJSONBody(w, r, &req, false); err != nil {
		s.fail(w, "fill", err)
		return
	}
	if err := required("input_id", req.InputID); err != nil {
		s.fail(w, "fill", err)
		return
	}

	res, err := s.backend.Fill(req.InputID, req.Value)
	if err != nil {
		s.fail(w, "fill", err)
		return
	}
	respondJSON(w, statusResponse{
		Status: statusOK,
		Info:   fmt.Sprintf("set %s to %q", res.ID, req.Value),
	})
}

func (s *Server) handleClickButton(mode browser.ClickMode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ButtonID string `json:"button_id"`
		}
		if err := decodeJSONBody(w, r, &req, false); err != nil {
			s.fail(w, "click", err)
			return
		}
		if err := required("button_id", req.ButtonID); err != nil {
			s.fail(w, "click", err)
			return
		}

		res, err := s.backend.Click(r.Context(), req.ButtonID, mode)
		if err != nil {
			s.fail(w, "click", err)
			return
		}
		s.observe("click", res.Warnings)

		if mode == browser.ClickModeHeadings {
			respondJSON(w, map[string]any{
				"page_items": map[string]any{"links": res.Headings},
			})
			return
		}
		respondJSON(w, statusResponse{
			Status: statusOK,
			Info:   fmt.Sprintf("clicked %s (%s)", res.ID, res.Navigation),
			URL:    res.URL,
		})
	}
}

func (s *Server) handleClickLink(mode browser.HeadingMode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			LinkID string `json:"link_id"`
		}
		if err := decodeJSONBody(w, r, &req, false); err != nil {
			s.fail(w, "click heading", err)
			return
		}
		if err := required("link_id", req.LinkID); err != nil {
			s.fail(w, "click heading", err)
			return
		}

		res, err := s.backend.ClickHeading(r.Context(), req.LinkID, mode)
		if err != nil {
			s.fail(w, "click heading", err)
			return
		}
		s.observe("click_heading", res.Warnings)

		if mode == browser.HeadingModeTable {
			respondJSON(w, map[string]any{
				"table": []*browser.TablePayload{res.Table},
			})
			return
		}
		respondJSON(w, statusResponse{
			Status: statusOK,
			Info:   fmt.Sprintf("clicked %s", res.ID),
			ID:     res.ID,
		})
	}
}

func (s *Server) handleClickTitleByKeyword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keyword string `json:"keyword"`
	}
	if err := decodeJSONBody(w, r, &req, false); err != nil {
		s.fail(w, "click keyword", err)
		return
	}
	if err := required("keyword", req.Keyword); err != nil {
		s.fail(w, "click keyword", err)
		return
	}

	res, err := s.backend.ClickHeadingByKeyword(r.Context(), req.Keyword)
	if err != nil {
		s.fail(w, "click keyword", err)
		return
	}
	s.observe("click_heading", res.Warnings)

	respondJSON(w, statusResponse{
		Status: statusOK,
		Info:   fmt.Sprintf("clicked %s (%s)", res.ID, res.Name),
		ID:     res.ID,
	})
}

func (s *Server) handleExtractTable(w http.ResponseWriter, r *http.Request) {
	res, err := s.backend.Extract()
	if err != nil {
		s.fail(w, "extract", err)
		return
	}
	data := res.Data
	if data == nil {
		data = []tables.Record{}
	}
	respondJSON(w, struct {
		Rows int             `json:"rows"`
		Data []tables.Record `json:"data"`
	}{Rows: res.Rows, Data: data})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	info := "no active session"
	if s.backend.Close() {
		info = "session closed"
	}
	respondJSON(w, statusResponse{Status: statusOK, Info: info})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.backend.Status())
}

func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	maxLength := 0
	if raw := r.URL.Query().Get("max_length"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.fail(w, "inspect", fmt.Errorf("%w: max_length must be a positive integer", errBadRequest))
			return
		}
		maxLength = n
	}

	out, err := s.backend.Outline(maxLength)
	if err != nil {
		s.fail(w, "inspect", err)
		return
	}
	respondJSON(w, out)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}
