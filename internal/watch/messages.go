package watch

import (
	"math"

	"trainhub/internal/task"
)

// Message types sent over the live channel.
const (
	TypeConnected = "connected"
	TypeProgress  = "progress"
	TypeFinished  = "finished"
	TypeError     = "error"
)

// Message is one unit on the wire to a subscriber.
type Message struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ProgressData is the payload of a progress message.
type ProgressData struct {
	TaskID        string      `json:"taskId"`
	Status        task.Status `json:"status"`
	CurrentStep   int         `json:"currentStep"`
	TotalSteps    int         `json:"totalSteps"`
	Progress      float64     `json:"progress"` // percent, 2 decimals
	CurrentLoss   *float64    `json:"currentLoss,omitempty"`
	CurrentMetric *float64    `json:"currentMetric,omitempty"`
	ErrorMessage  string      `json:"errorMessage,omitempty"`
}

// FinishedData is the payload of the single terminal message.
type FinishedData struct {
	TaskID       string      `json:"taskId"`
	Status       task.Status `json:"status"`
	ResultPath   string      `json:"resultPath,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
}

// Connected builds the acknowledgment sent immediately on subscribe.
func Connected(taskID string) Message {
	return Message{Type: TypeConnected, Message: "subscribed to task " + taskID}
}

// Progress builds a progress message from the current row state.
func Progress(t *task.Task) Message {
	return Message{Type: TypeProgress, Data: ProgressData{
		TaskID:        t.ID,
		Status:        t.Status,
		CurrentStep:   t.CurrentStep,
		TotalSteps:    t.TotalSteps,
		Progress:      progressPercent(t),
		CurrentLoss:   t.CurrentLoss,
		CurrentMetric: t.CurrentMetric,
		ErrorMessage:  t.ErrorMessage,
	}}
}

// Finished builds the terminal message.
func Finished(t *task.Task) Message {
	return Message{Type: TypeFinished, Data: FinishedData{
		TaskID:       t.ID,
		Status:       t.Status,
		ResultPath:   t.ResultPath,
		ErrorMessage: t.ErrorMessage,
	}}
}

// Error builds a channel-level error message.
func Error(message string) Message {
	return Message{Type: TypeError, Message: message}
}

func progressPercent(t *task.Task) float64 {
	if t.TotalSteps <= 0 {
		return 0
	}
	pct := float64(t.CurrentStep) / float64(t.TotalSteps) * 100
	return math.Round(pct*100) / 100
}
