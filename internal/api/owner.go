package api

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tazhate/holidaybot/internal/calendar"
	"github.com/tazhate/holidaybot/internal/domain"
	"github.com/tazhate/holidaybot/internal/service"
)

// GET /liff/subjects
func (s *Server) liffSubjects(w http.ResponseWriter, r *http.Request, owner string) {
	items, err := s.subjects.List(r.Context(), owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, itemsResponse[SubjectResponse]{OK: true, Items: subjectsToResponse(items)})
}

// POST /liff/holidays/create
func (s *Server) liffCreate(w http.ResponseWriter, r *http.Request, owner string) {
	var req createRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.create(w, r, owner, req)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request, owner string, req createRequest) {
	res, err := s.exceptions.Create(r.Context(), owner, req.input())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, createResponse{
		OK:               true,
		ID:               res.ID,
		AllDay:           res.AllDay,
		Title:            res.Title,
		RemindersCreated: res.RemindersCreated,
		RemindersSkipped: res.RemindersSkipped,
	})
}

// POST /liff/holidays/update
func (s *Server) liffUpdate(w http.ResponseWriter, r *http.Request, owner string) {
	var patch service.Patch
	if err := decodeJSON(r, &patch); err != nil {
		s.writeError(w, r, err)
		return
	}
	if patch.ID <= 0 {
		s.writeError(w, r, domain.Validationf("missing id"))
		return
	}
	res, err := s.exceptions.Update(r.Context(), owner, patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, updateResponse{OK: true, Title: res.Title, AllDay: res.AllDay})
}

// GET /liff/holidays/list?from=&to=
func (s *Server) liffList(w http.ResponseWriter, r *http.Request, owner string) {
	s.list(w, r, owner)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request, owner string) {
	q := r.URL.Query()
	items, err := s.exceptions.List(r.Context(), owner, q.Get("from"), q.Get("to"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, itemsResponse[HolidayResponse]{OK: true, Items: holidaysToResponse(items)})
}

// POST /liff/holidays/batch
func (s *Server) liffBatch(w http.ResponseWriter, r *http.Request, owner string) {
	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	applied, err := s.exceptions.BatchApply(r.Context(), owner, req.Updates, req.Deletes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, batchResponse{OK: true, Applied: applied})
}

// POST /liff/holidays/delete
func (s *Server) liffDelete(w http.ResponseWriter, r *http.Request, owner string) {
	var req idRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.delete(w, r, owner, req.ID)
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request, owner string, id int64) {
	if id <= 0 {
		s.writeError(w, r, domain.Validationf("missing id"))
		return
	}
	if err := s.exceptions.Delete(r.Context(), owner, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, okResponse{OK: true})
}

// GET /liff/holidays/reminders/list?holiday_id=
func (s *Server) liffReminders(w http.ResponseWriter, r *http.Request, owner string) {
	id, err := strconv.ParseInt(r.URL.Query().Get("holiday_id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, r, domain.Validationf("missing holiday_id"))
		return
	}
	items, err := s.reminders.ListFor(r.Context(), owner, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, itemsResponse[ReminderResponse]{OK: true, Items: remindersToResponse(items)})
}

// POST /liff/holidays/reminders/set
func (s *Server) liffSetReminders(w http.ResponseWriter, r *http.Request, owner string) {
	var req setRemindersRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.setReminders(w, r, owner, req)
}

func (s *Server) setReminders(w http.ResponseWriter, r *http.Request, owner string, req setRemindersRequest) {
	if req.HolidayID <= 0 {
		s.writeError(w, r, domain.Validationf("missing holiday_id"))
		return
	}
	res, err := s.reminders.ReplaceAll(r.Context(), owner, req.HolidayID, req.Reminders)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, setRemindersResponse{
		OK:        true,
		HolidayID: req.HolidayID,
		Created:   res.Created,
		Skipped:   res.Skipped,
	})
}

// GET /liff/holidays/calendar.ics?from=&to=
// Without a range the feed covers 30 days back to a year ahead.
func (s *Server) liffCalendar(w http.ResponseWriter, r *http.Request, owner string) {
	q := r.URL.Query()
	from, to := strings.TrimSpace(q.Get("from")), strings.TrimSpace(q.Get("to"))
	today := time.Now().In(s.exceptions.Location())
	if from == "" {
		from = today.AddDate(0, 0, -30).Format("2006-01-02")
	}
	if to == "" {
		to = today.AddDate(1, 0, 0).Format("2006-01-02")
	}

	items, err := s.exceptions.List(r.Context(), owner, from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := calendar.Encode(&buf, calendar.Feed("Holidays & cancelled classes", items, time.Now())); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="holidays.ics"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
