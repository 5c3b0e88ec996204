package api

import (
	"time"

	"github.com/tazhate/holidaybot/internal/domain"
	"github.com/tazhate/holidaybot/internal/service"
)

// Request types

type createRequest struct {
	UserID    string              `json:"user_id,omitempty"`
	Type      string              `json:"type"`
	SubjectID *string             `json:"subject_id"`
	StartAt   string              `json:"start_at"`
	EndAt     string              `json:"end_at"`
	Title     *string             `json:"title"`
	Note      *string             `json:"note"`
	Reminders domain.ReminderSpecs `json:"reminders"`
}

func (r createRequest) input() service.CreateInput {
	return service.CreateInput{
		Kind:       r.Type,
		SubjectRef: r.SubjectID,
		StartAt:    r.StartAt,
		EndAt:      r.EndAt,
		Title:      r.Title,
		Note:       r.Note,
		Reminders:  r.Reminders,
	}
}

type idRequest struct {
	UserID string `json:"user_id,omitempty"`
	ID     int64  `json:"id"`
}

type batchRequest struct {
	Updates []service.Patch `json:"updates"`
	Deletes []int64         `json:"deletes"`
}

type setRemindersRequest struct {
	UserID    string              `json:"user_id,omitempty"`
	HolidayID int64               `json:"holiday_id"`
	Reminders domain.ReminderSpecs `json:"reminders"`
}

type subjectPayload struct {
	Code       string `json:"subject_code"`
	Name       string `json:"subject_name"`
	Day        string `json:"day"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Room       string `json:"room"`
	Section    string `json:"section"`
	Type       string `json:"type"`
	Instructor string `json:"instructor"`
	Semester   string `json:"semester"`
}

type importSubjectsRequest struct {
	UserID   string           `json:"user_id"`
	Subjects []subjectPayload `json:"subjects"`
}

type cancelQueryRequest struct {
	UserID       string `json:"user_id"`
	SubjectQuery string `json:"subject_query"`
	Range        string `json:"range"`
	Date         string `json:"date"`
}

// Response types

type okResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type createResponse struct {
	OK               bool    `json:"ok"`
	ID               int64   `json:"id"`
	AllDay           bool    `json:"all_day"`
	Title            *string `json:"title"`
	RemindersCreated int     `json:"reminders_created"`
	RemindersSkipped int     `json:"reminders_skipped"`
}

type updateResponse struct {
	OK     bool    `json:"ok"`
	Title  *string `json:"title"`
	AllDay bool    `json:"all_day"`
}

type batchResponse struct {
	OK      bool `json:"ok"`
	Applied int  `json:"applied"`
}

type setRemindersResponse struct {
	OK        bool  `json:"ok"`
	HolidayID int64 `json:"holiday_id"`
	Created   int   `json:"created"`
	Skipped   int   `json:"skipped"`
}

type importSubjectsResponse struct {
	OK       bool `json:"ok"`
	Imported int  `json:"imported"`
}

type itemsResponse[T any] struct {
	OK    bool `json:"ok"`
	Items []T  `json:"items"`
}

type HolidayResponse struct {
	ID        int64   `json:"id"`
	Type      string  `json:"type"`
	SubjectID *string `json:"subject_id"`
	AllDay    bool    `json:"all_day"`
	StartAt   string  `json:"start_at"`
	EndAt     string  `json:"end_at"`
	Title     *string `json:"title"`
	Note      *string `json:"note"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

type ReminderResponse struct {
	ID        int64   `json:"id"`
	HolidayID int64   `json:"holiday_id"`
	RemindAt  string  `json:"remind_at"`
	Status    string  `json:"status"`
	CreatedAt string  `json:"created_at"`
	SentAt    *string `json:"sent_at"`
}

type SubjectResponse struct {
	ID         int64  `json:"id"`
	Day        string `json:"day"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Room       string `json:"room"`
	Code       string `json:"subject_code"`
	Name       string `json:"subject_name"`
	Section    string `json:"section"`
	Type       string `json:"type"`
	Instructor string `json:"instructor"`
	Semester   string `json:"semester"`
}

type CancellationItem struct {
	ID          int64   `json:"id"`
	Type        string  `json:"type"`
	SubjectCode *string `json:"subject_code"`
	SubjectName *string `json:"subject_name"`
	Date        string  `json:"date"`
	StartDate   string  `json:"start_date"`
	EndDate     string  `json:"end_date"`
	StartAt     string  `json:"start_at"`
	EndAt       string  `json:"end_at"`
	Title       *string `json:"title"`
	Note        *string `json:"note"`
}

type cancelQueryMeta struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
}

type cancelQueryResponse struct {
	OK      bool               `json:"ok"`
	Type    string             `json:"type"`
	Mode    string             `json:"mode"`
	Meta    cancelQueryMeta    `json:"meta"`
	Data    []CancellationItem `json:"data"`
	Message string             `json:"message"`
}

func stamp(t time.Time) string {
	return t.Format(time.RFC3339)
}

func holidayToResponse(e *domain.Exception) HolidayResponse {
	return HolidayResponse{
		ID:        e.ID,
		Type:      string(e.Kind),
		SubjectID: e.SubjectRef,
		AllDay:    e.AllDay(),
		StartAt:   stamp(e.StartAt),
		EndAt:     stamp(e.EndAt),
		Title:     e.Title,
		Note:      e.Note,
		CreatedAt: stamp(e.CreatedAt),
		UpdatedAt: stamp(e.UpdatedAt),
	}
}

func holidaysToResponse(items []*domain.Exception) []HolidayResponse {
	out := make([]HolidayResponse, 0, len(items))
	for _, e := range items {
		out = append(out, holidayToResponse(e))
	}
	return out
}

func remindersToResponse(items []*domain.Reminder) []ReminderResponse {
	out := make([]ReminderResponse, 0, len(items))
	for _, r := range items {
		resp := ReminderResponse{
			ID:        r.ID,
			HolidayID: r.ExceptionID,
			RemindAt:  stamp(r.FireAt),
			Status:    string(r.Status),
			CreatedAt: stamp(r.CreatedAt),
		}
		if r.SentAt != nil {
			s := stamp(*r.SentAt)
			resp.SentAt = &s
		}
		out = append(out, resp)
	}
	return out
}

func subjectsToResponse(items []*domain.Subject) []SubjectResponse {
	out := make([]SubjectResponse, 0, len(items))
	for _, s := range items {
		out = append(out, SubjectResponse{
			ID:         s.ID,
			Day:        s.Day,
			StartTime:  s.StartTime,
			EndTime:    s.EndTime,
			Room:       s.Room,
			Code:       s.Code,
			Name:       s.Name,
			Section:    s.Section,
			Type:       s.Type,
			Instructor: s.Instructor,
			Semester:   s.Semester,
		})
	}
	return out
}

func (p subjectPayload) subject() *domain.Subject {
	return &domain.Subject{
		Code:       p.Code,
		Name:       p.Name,
		Day:        p.Day,
		StartTime:  p.StartTime,
		EndTime:    p.EndTime,
		Room:       p.Room,
		Section:    p.Section,
		Type:       p.Type,
		Instructor: p.Instructor,
		Semester:   p.Semester,
	}
}
