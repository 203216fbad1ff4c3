package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/edvin/miniforge/internal/api/request"
	"github.com/edvin/miniforge/internal/api/response"
	"github.com/edvin/miniforge/internal/model"
	"github.com/edvin/miniforge/internal/provision"
)

// Provisioner starts provisioning runs.
type Provisioner interface {
	Start(req *model.ProvisioningRequest) (string, error)
}

type App struct {
	provisioner Provisioner
}

func NewApp(p Provisioner) *App {
	return &App{provisioner: p}
}

// Create starts provisioning a build code for one platform. Progress is
// only reported on the task's log stream.
func (h *App) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateApp
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	taskID, err := h.provisioner.Start(req.ToModel())
	if err != nil {
		if errors.Is(err, provision.ErrAlreadyRunning) {
			response.WriteError(w, http.StatusConflict, err.Error())
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("starting provisioning failed")
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteAccepted(w, taskID)
}
