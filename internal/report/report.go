// Package report renders stored daily metrics as user-facing text.
//
// Output is Telegram HTML: <b> tags for headings, plain text otherwise.
package report

import (
	"fmt"
	"strings"

	"pulsecoach/internal/models"
)

// FormatDuration converts milliseconds to HH:MM.
func FormatDuration(millis int64) string {
	if millis < 0 {
		millis = 0
	}
	totalMinutes := millis / 60000
	return fmt.Sprintf("%02d:%02d", totalMinutes/60, totalMinutes%60)
}

// SleepSummary describes the first sleep record of a day in a few lines.
func SleepSummary(records []models.SleepRecord) string {
	if len(records) == 0 {
		return "No sleep data available."
	}
	stages := records[0].Score.StageSummary
	slowWave := stages.TotalSlowWaveSleepTimeMilli
	rem := stages.TotalRemSleepTimeMilli
	return fmt.Sprintf("Slow Wave: %s\nREM: %s\nTotal (SWS + REM): %s\n",
		FormatDuration(slowWave), FormatDuration(rem), FormatDuration(slowWave+rem))
}

// RecoverySummary describes the first recovery record of a day.
func RecoverySummary(records []models.RecoveryRecord) string {
	if len(records) == 0 {
		return "No recovery data available."
	}
	return fmt.Sprintf("Recovery Score: %g", records[0].Score.RecoveryScore)
}

// WorkoutSummary describes the first workout record of a day.
func WorkoutSummary(records []models.WorkoutRecord) string {
	if len(records) == 0 {
		return "No workout data available."
	}
	score := records[0].Score
	return fmt.Sprintf("Strain: %g\nKilojoules: %g", score.Strain, score.Kilojoule)
}

// Daily renders a day's metrics as an HTML health report.
func Daily(m *models.DailyMetrics) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>Health Report for %s</b>\n\n", m.Date)
	fmt.Fprintf(&sb, "<b>Sleep</b>\n%s\n", SleepSummary(m.SleepRecords))
	fmt.Fprintf(&sb, "<b>Recovery</b>\n%s\n\n", RecoverySummary(m.RecoveryRecords))
	fmt.Fprintf(&sb, "<b>Workout</b>\n%s\n", WorkoutSummary(m.WorkoutRecords))
	return sb.String()
}

// OneLine condenses a day's metrics into a single prompt-friendly line, for
// feeding the coach model rather than the user.
func OneLine(m *models.DailyMetrics) string {
	if m == nil {
		return "No health data available"
	}
	var parts []string
	if len(m.SleepRecords) > 0 {
		stages := m.SleepRecords[0].Score.StageSummary
		parts = append(parts, fmt.Sprintf("SWS: %s, REM: %s",
			FormatDuration(stages.TotalSlowWaveSleepTimeMilli),
			FormatDuration(stages.TotalRemSleepTimeMilli)))
	} else {
		parts = append(parts, "No sleep data")
	}
	if len(m.RecoveryRecords) > 0 {
		parts = append(parts, fmt.Sprintf("Recovery: %g", m.RecoveryRecords[0].Score.RecoveryScore))
	} else {
		parts = append(parts, "No recovery data")
	}
	if len(m.WorkoutRecords) > 0 {
		parts = append(parts, fmt.Sprintf("Strain: %g", m.WorkoutRecords[0].Score.Strain))
	} else {
		parts = append(parts, "No workout data")
	}
	return strings.Join(parts, " | ")
}

// ConvertMarkdownBold rewrites **bold** spans as <b>bold</b> tags. Model
// output tends toward markdown; Telegram wants HTML.
func ConvertMarkdownBold(text string) string {
	parts := strings.Split(text, "**")
	for i := 1; i < len(parts); i += 2 {
		parts[i] = "<b>" + parts[i] + "</b>"
	}
	return strings.Join(parts, "")
}
