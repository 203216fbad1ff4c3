package handler

import (
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/edvin/miniforge/internal/api/request"
	"github.com/edvin/miniforge/internal/api/response"
	"github.com/edvin/miniforge/internal/process"
)

// BuildRunner starts and stops builds.
type BuildRunner interface {
	Start(req process.BuildRequest) (string, error)
	Stop(id string) (process.TerminationState, error)
}

// PublishRunner starts, stops and looks up publishes.
type PublishRunner interface {
	Start(req process.PublishRequest) (string, error)
	Stop(id string) (process.TerminationState, error)
	Lookup(id string) (process.PublishInfo, error)
	QRCode(id string) ([]byte, error)
}

type stopResponse struct {
	TaskID      string                   `json:"task_id"`
	Termination process.TerminationState `json:"termination"`
}

type Build struct {
	builds BuildRunner
}

func NewBuild(builds BuildRunner) *Build {
	return &Build{builds: builds}
}

func (h *Build) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateBuild
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	taskID, err := h.builds.Start(req.ToProcess())
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("starting build failed")
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteAccepted(w, taskID)
}

func (h *Build) Stop(w http.ResponseWriter, r *http.Request) {
	stop(w, r, h.builds.Stop)
}

type Publish struct {
	publishes PublishRunner
}

func NewPublish(publishes PublishRunner) *Publish {
	return &Publish{publishes: publishes}
}

// Create starts a publish pipeline. Only one publish per platform runs at
// a time; a second one is rejected with 409.
func (h *Publish) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreatePublish
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	taskID, err := h.publishes.Start(req.ToProcess())
	if err != nil {
		if errors.Is(err, process.ErrPlatformBusy) {
			response.WriteError(w, http.StatusConflict, err.Error())
			return
		}
		if errors.Is(err, process.ErrInvalidAppID) {
			response.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("starting publish failed")
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteAccepted(w, taskID)
}

// Get returns the platform and project path while the publish is running
// or within its grace period.
func (h *Publish) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	info, err := h.publishes.Lookup(id)
	if err != nil {
		response.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, info)
}

func (h *Publish) QRCode(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	data, err := h.publishes.QRCode(id)
	if err != nil {
		if errors.Is(err, process.ErrTaskNotFound) || errors.Is(err, os.ErrNotExist) {
			response.WriteError(w, http.StatusNotFound, "qr code not available")
			return
		}
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WritePNG(w, data)
}

func (h *Publish) Stop(w http.ResponseWriter, r *http.Request) {
	stop(w, r, h.publishes.Stop)
}

func stop(w http.ResponseWriter, r *http.Request, fn func(string) (process.TerminationState, error)) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	state, err := fn(id)
	if err != nil {
		if errors.Is(err, process.ErrTaskNotFound) {
			response.WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, stopResponse{TaskID: id, Termination: state})
}
