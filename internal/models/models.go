// Package models defines the core data structures for PulseCoach.
//
// It includes types for WHOOP credentials, OAuth link states, daily health
// metrics, and chat history, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// DateLayout is the calendar-day format used for daily metrics keys.
const DateLayout = "2006-01-02"

// Validation constants for input validation
const (
	// MaxChatMessageLength defines the maximum allowed length for stored chat messages
	MaxChatMessageLength = 8192
)

// Error variables for better error handling and testability
var (
	ErrEmptyUserID        = errors.New("user id cannot be empty")
	ErrEmptyAccessToken   = errors.New("access token cannot be empty")
	ErrEmptyStateValue    = errors.New("state value cannot be empty")
	ErrInvalidDate        = errors.New("date must be in YYYY-MM-DD format")
	ErrInvalidChatRole    = errors.New("invalid chat role")
	ErrEmptyChatContent   = errors.New("chat content cannot be empty")
	ErrChatContentTooLong = errors.New("chat content exceeds maximum length")
)

// User represents a Telegram user known to the service.
type User struct {
	ID       string    `json:"id"` // Telegram user ID, stored as string
	Name     string    `json:"name,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}

// Credential holds the WHOOP access/refresh token pair for one user.
// At most one live Credential exists per user; it is overwritten in place on
// every successful refresh. The access token may be invalidated upstream
// without local notification, so staleness is only discovered by a failed
// fetch, never by a local clock.
type Credential struct {
	UserID       string    `json:"user_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"` // absent until first grant
	Scope        string    `json:"scope,omitempty"`         // space-separated capability strings
	UpdatedAt    time.Time `json:"updated_at"`
}

// Validate checks that a Credential has the fields required for persistence.
func (c *Credential) Validate() error {
	if c.UserID == "" {
		return ErrEmptyUserID
	}
	if c.AccessToken == "" {
		return ErrEmptyAccessToken
	}
	return nil
}

// OAuthState is a one-time value correlating an authorization callback with
// the user who initiated linking. It must be consumed at most once; a lookup
// miss means expired, invalid, or already used.
type OAuthState struct {
	Value     string    `json:"value"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks that an OAuthState has the fields required for persistence.
func (s *OAuthState) Validate() error {
	if s.Value == "" {
		return ErrEmptyStateValue
	}
	if s.UserID == "" {
		return ErrEmptyUserID
	}
	return nil
}

// StageSummary breaks a sleep into stage durations, all in milliseconds.
type StageSummary struct {
	TotalInBedTimeMilli         int64 `json:"total_in_bed_time_milli,omitempty"`
	TotalAwakeTimeMilli         int64 `json:"total_awake_time_milli,omitempty"`
	TotalLightSleepTimeMilli    int64 `json:"total_light_sleep_time_milli,omitempty"`
	TotalSlowWaveSleepTimeMilli int64 `json:"total_slow_wave_sleep_time_milli"`
	TotalRemSleepTimeMilli      int64 `json:"total_rem_sleep_time_milli"`
	SleepCycleCount             int   `json:"sleep_cycle_count,omitempty"`
	DisturbanceCount            int   `json:"disturbance_count,omitempty"`
}

// SleepScore is the scored portion of a sleep record.
type SleepScore struct {
	StageSummary               StageSummary `json:"stage_summary"`
	RespiratoryRate            float64      `json:"respiratory_rate,omitempty"`
	SleepPerformancePercentage float64      `json:"sleep_performance_percentage,omitempty"`
	SleepEfficiencyPercentage  float64      `json:"sleep_efficiency_percentage,omitempty"`
}

// SleepRecord is one upstream sleep activity.
type SleepRecord struct {
	ID         string     `json:"id"`
	Start      time.Time  `json:"start"`
	End        time.Time  `json:"end"`
	Nap        bool       `json:"nap,omitempty"`
	ScoreState string     `json:"score_state,omitempty"`
	Score      SleepScore `json:"score"`
}

// RecoveryScore is the scored portion of a recovery record.
type RecoveryScore struct {
	RecoveryScore    float64 `json:"recovery_score"`
	RestingHeartRate float64 `json:"resting_heart_rate,omitempty"`
	HRVRmssdMilli    float64 `json:"hrv_rmssd_milli,omitempty"`
	UserCalibrating  bool    `json:"user_calibrating,omitempty"`
	Spo2Percentage   float64 `json:"spo2_percentage,omitempty"`
	SkinTempCelsius  float64 `json:"skin_temp_celsius,omitempty"`
}

// RecoveryRecord is one upstream recovery reading.
type RecoveryRecord struct {
	CycleID    int64         `json:"cycle_id"`
	SleepID    string        `json:"sleep_id,omitempty"`
	CreatedAt  time.Time     `json:"created_at,omitempty"`
	ScoreState string        `json:"score_state,omitempty"`
	Score      RecoveryScore `json:"score"`
}

// WorkoutScore is the scored portion of a workout record.
type WorkoutScore struct {
	Strain           float64 `json:"strain"`
	Kilojoule        float64 `json:"kilojoule,omitempty"`
	AverageHeartRate int     `json:"average_heart_rate,omitempty"`
	MaxHeartRate     int     `json:"max_heart_rate,omitempty"`
	DistanceMeter    float64 `json:"distance_meter,omitempty"`
}

// WorkoutRecord is one upstream workout activity.
type WorkoutRecord struct {
	ID         string       `json:"id"`
	Start      time.Time    `json:"start"`
	End        time.Time    `json:"end"`
	SportID    int          `json:"sport_id,omitempty"`
	ScoreState string       `json:"score_state,omitempty"`
	Score      WorkoutScore `json:"score"`
}

// Profile is the upstream user profile resource.
type Profile struct {
	UserID    int64  `json:"user_id"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// DailyMetrics is the per-user per-day health record populated by the sync
// sweep. Exactly one record exists per (user, date). A category that failed to
// fetch is stored as an empty sequence, deliberately distinct from "no change".
type DailyMetrics struct {
	UserID          string           `json:"user_id"`
	Date            string           `json:"date"` // YYYY-MM-DD
	SleepRecords    []SleepRecord    `json:"sleep_records"`
	RecoveryRecords []RecoveryRecord `json:"recovery_records"`
	WorkoutRecords  []WorkoutRecord  `json:"workout_records"`
	SyncedAt        time.Time        `json:"synced_at"`
}

// Validate checks the DailyMetrics key fields.
func (d *DailyMetrics) Validate() error {
	if d.UserID == "" {
		return ErrEmptyUserID
	}
	if _, err := time.Parse(DateLayout, d.Date); err != nil {
		return ErrInvalidDate
	}
	return nil
}

// Empty reports whether the record carries no data in any category.
func (d *DailyMetrics) Empty() bool {
	return len(d.SleepRecords) == 0 && len(d.RecoveryRecords) == 0 && len(d.WorkoutRecords) == 0
}

// ChatRole identifies the author of a stored chat message.
type ChatRole string

const (
	// ChatRoleUser marks a message written by the user.
	ChatRoleUser ChatRole = "user"
	// ChatRoleAssistant marks a message written by the coach.
	ChatRoleAssistant ChatRole = "assistant"
)

// IsValidChatRole checks if the given chat role is supported.
func IsValidChatRole(r ChatRole) bool {
	switch r {
	case ChatRoleUser, ChatRoleAssistant:
		return true
	default:
		return false
	}
}

// ChatMessage is one entry of a user's conversation history, ordered by
// timestamp.
type ChatMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate performs validation on a ChatMessage before persistence.
func (m *ChatMessage) Validate() error {
	if m.UserID == "" {
		return ErrEmptyUserID
	}
	if !IsValidChatRole(m.Role) {
		return ErrInvalidChatRole
	}
	if m.Content == "" {
		return ErrEmptyChatContent
	}
	if len(m.Content) > MaxChatMessageLength {
		return ErrChatContentTooLong
	}
	return nil
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
