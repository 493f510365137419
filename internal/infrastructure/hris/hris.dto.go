package hris

import (
	"bytes"
	"encoding/json"
)

const (
	LoginPath     = "/api/v1/auth/hris/login"
	SubmitPath    = "/api/v1/hris/attendance/submit"
	DashboardPath = "/api/v1/hris/dashboard"
)

type LoginRequest struct {
	EmployeeNumber string `json:"employee_number"`
	Password       string `json:"password"`
}

type loginResponse struct {
	Data *struct {
		Token *string `json:"token"`
	} `json:"data"`
}

type dashboardResponse struct {
	Data *struct {
		Attendance *struct {
			TimeIn  json.RawMessage `json:"time_in"`
			TimeOut json.RawMessage `json:"time_out"`
		} `json:"attendance"`
	} `json:"data"`
}

// Attendance is today's attendance record as reported by the dashboard.
// The HRIS returns time_in/time_out as opaque values, null when unset.
type Attendance struct {
	TimeIn  string
	TimeOut string
}

func (a Attendance) HasTimedIn() bool  { return a.TimeIn != "" }
func (a Attendance) HasTimedOut() bool { return a.TimeOut != "" }

func rawValue(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}
	return string(trimmed)
}
