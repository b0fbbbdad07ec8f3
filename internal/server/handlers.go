package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/engine"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
)

// decodeBody decodes an optional JSON body into v.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req engine.Request
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.TenantID == "" {
		req.TenantID = tenantID(r)
	}

	res, err := s.svc.Trigger(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	filter, err := parseAlertFilter(r.URL.Query())
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	list, err := s.svc.ListAlerts(ctx, tenantID(r), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []model.DeviationAlert{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	summary, err := s.svc.Summary(ctx, tenantID(r), r.URL.Query().Get("project_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	alert, err := s.svc.GetAlert(ctx, tenantID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	history, err := s.svc.History(ctx, tenantID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// statusRequest is the body of a status update. AlertID is optional and must
// match the path; Status is accepted as an older spelling of NewStatus.
type statusRequest struct {
	AlertID   string `json:"alert_id"`
	NewStatus string `json:"new_status"`
	Status    string `json:"status"`
	Note      string `json:"note"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body statusRequest
	if err := decodeBody(r, &body); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	if body.AlertID != "" && body.AlertID != id {
		badRequest(w, fmt.Sprintf("alert_id %q does not match the path", body.AlertID))
		return
	}
	requested := body.NewStatus
	if requested == "" {
		requested = body.Status
	}

	// Unknown spellings reach the service as-is and are rejected there.
	to, err := model.ParseAlertStatus(requested)
	if err != nil {
		to = model.AlertStatus(requested)
	}

	alert, err := s.svc.UpdateStatus(r.Context(), tenantID(r), id, to, userID(r), body.Note)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.Purge(r.Context(), tenantID(r), r.URL.Query().Get("project_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"purged": n})
}

func (s *Server) handleGetConfiguration(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	cfg, err := s.svc.GetConfiguration(ctx, tenantID(r), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePutConfiguration(w http.ResponseWriter, r *http.Request) {
	var cfg model.AlertConfiguration
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	cfg.TenantID = tenantID(r)
	cfg.ProjectID = chi.URLParam(r, "id")

	saved, err := s.svc.UpsertConfiguration(r.Context(), &cfg)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	filter, err := parseNotificationFilter(r.URL.Query())
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	list, err := s.svc.ListNotifications(ctx, tenantID(r), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []model.AlertNotification{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.ProcessPending(r.Context(), tenantID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	if user == "" {
		badRequest(w, headerUser+" header is required")
		return
	}

	n, err := s.svc.MarkRead(r.Context(), tenantID(r), chi.URLParam(r, "id"), user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleResend(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.Resend(r.Context(), tenantID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseAlertFilter(q url.Values) (model.AlertFilter, error) {
	f := model.AlertFilter{ProjectID: q.Get("project_id")}

	for _, v := range splitList(q.Get("status")) {
		st, err := model.ParseAlertStatus(v)
		if err != nil {
			return f, err
		}
		f.Statuses = append(f.Statuses, st)
	}
	for _, v := range splitList(q.Get("severity")) {
		sev, err := model.ParseSeverity(v)
		if err != nil {
			return f, err
		}
		f.Severities = append(f.Severities, sev)
	}

	var err error
	if v := q.Get("from"); v != "" {
		if f.From, err = time.Parse(time.RFC3339, v); err != nil {
			return f, fmt.Errorf("invalid from: %w", err)
		}
	}
	if v := q.Get("to"); v != "" {
		if f.To, err = time.Parse(time.RFC3339, v); err != nil {
			return f, fmt.Errorf("invalid to: %w", err)
		}
	}
	if f.Limit, err = parseLimit(q.Get("limit")); err != nil {
		return f, err
	}
	return f, nil
}

func parseNotificationFilter(q url.Values) (model.NotificationFilter, error) {
	f := model.NotificationFilter{
		AlertID:     q.Get("alert_id"),
		RecipientID: q.Get("recipient_id"),
		Status:      model.NotificationStatus(strings.ToUpper(q.Get("status"))),
		Channel:     model.Channel(strings.ToLower(q.Get("channel"))),
	}

	if v := q.Get("unread"); v != "" {
		unread, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("invalid unread: %w", err)
		}
		f.UnreadOnly = unread
	}

	var err error
	if f.Limit, err = parseLimit(q.Get("limit")); err != nil {
		return f, err
	}
	return f, nil
}

func parseLimit(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid limit %q", v)
	}
	return n, nil
}
