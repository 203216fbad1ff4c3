package response

import (
	"encoding/json"
	"net/http"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// TaskAccepted is returned when a background pipeline was started.
type TaskAccepted struct {
	TaskID string `json:"task_id"`
}

// WriteAccepted writes 202 with the id of the started task.
func WriteAccepted(w http.ResponseWriter, taskID string) {
	WriteJSON(w, http.StatusAccepted, TaskAccepted{TaskID: taskID})
}

// WritePNG writes raw image bytes.
func WritePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
