package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tazhate/holidaybot/internal/domain"
	"github.com/tazhate/holidaybot/internal/service"
)

// Internal routes take the owner explicitly as user_id. They serve
// back-office automations and the MCP bridge.

// GET /subjects?user_id=
func (s *Server) apiSubjects(w http.ResponseWriter, r *http.Request) {
	owner, err := requireUserID(r.URL.Query().Get("user_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.liffSubjects(w, r, owner)
}

// POST /subjects
func (s *Server) apiImportSubjects(w http.ResponseWriter, r *http.Request) {
	var req importSubjectsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	owner, err := requireUserID(req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	subjects := make([]*domain.Subject, 0, len(req.Subjects))
	for _, p := range req.Subjects {
		subjects = append(subjects, p.subject())
	}
	n, err := s.subjects.Import(r.Context(), owner, subjects)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, importSubjectsResponse{OK: true, Imported: n})
}

// POST /holidays
func (s *Server) apiCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	owner, err := requireUserID(req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.create(w, r, owner, req)
}

// GET /holidays/list?user_id=&from=&to=
func (s *Server) apiList(w http.ResponseWriter, r *http.Request) {
	owner, err := requireUserID(r.URL.Query().Get("user_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.list(w, r, owner)
}

// POST /holidays/delete
func (s *Server) apiDelete(w http.ResponseWriter, r *http.Request) {
	var req idRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	owner, err := requireUserID(req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.delete(w, r, owner, req.ID)
}

// POST /holidays/reminders/set
func (s *Server) apiSetReminders(w http.ResponseWriter, r *http.Request) {
	var req setRemindersRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	owner, err := requireUserID(req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.setReminders(w, r, owner, req)
}

// POST /cancel/query
func (s *Server) apiCancelQuery(w http.ResponseWriter, r *http.Request) {
	var req cancelQueryRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	owner, err := requireUserID(req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	subject := strings.ToUpper(strings.TrimSpace(req.SubjectQuery))
	q := service.CancellationQuery{
		Subject: subject,
		Range:   service.CancellationRange(strings.TrimSpace(req.Range)),
		Date:    req.Date,
	}
	res, err := s.exceptions.ListCancellations(r.Context(), owner, q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	data := make([]CancellationItem, 0, len(res.Items))
	for _, e := range res.Items {
		item := CancellationItem{
			ID:          e.ID,
			Type:        string(e.Kind),
			SubjectCode: e.SubjectRef,
			Date:        e.StartAt.Format("2006-01-02"),
			StartDate:   e.StartAt.Format("2006-01-02"),
			EndDate:     e.EndAt.Format("2006-01-02"),
			StartAt:     stamp(e.StartAt),
			EndAt:       stamp(e.EndAt),
			Title:       e.Title,
			Note:        e.Note,
		}
		if e.SubjectRef != nil {
			if name, ok := res.Subjects[strings.ToUpper(*e.SubjectRef)]; ok && name != "" {
				item.SubjectName = &name
			}
		}
		data = append(data, item)
	}

	resp := cancelQueryResponse{
		OK:   true,
		Type: string(domain.KindCancellation),
		Mode: "list",
		Meta: cancelQueryMeta{Title: cancelQueryTitle(q), Subtitle: cancelQuerySubtitle(subject, res)},
		Data: data,
	}
	switch {
	case len(data) == 0 && subject != "":
		resp.Mode = "status"
		resp.Message = fmt.Sprintf("No cancellations found for %s in this period 😊", subject)
	case len(data) == 0:
		resp.Mode = "status"
		resp.Message = "No cancelled classes in this period 😊✨"
	case subject != "":
		resp.Message = fmt.Sprintf("Found %d cancellation(s) for %s ✨", len(data), subject)
	default:
		resp.Message = fmt.Sprintf("Found %d cancellation(s) ✨", len(data))
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func cancelQueryTitle(q service.CancellationQuery) string {
	if d := strings.TrimSpace(q.Date); d != "" {
		return "Cancelled • " + d
	}
	switch q.Range {
	case service.RangeNextWeek:
		return "Cancelled • next week"
	case service.RangeAll:
		return "Cancelled • all"
	default:
		return "Cancelled • upcoming"
	}
}

func cancelQuerySubtitle(subject string, res *service.CancellationResult) string {
	if subject != "" {
		if name := res.Subjects[subject]; name != "" {
			return "Subject " + subject + " • " + name
		}
		return "Subject " + subject
	}
	return res.From.Format("02/01/2006") + " – " + res.To.Format("02/01/2006")
}
