package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/miniforge/internal/model"
	"github.com/edvin/miniforge/internal/process"
)

// --- Builds ---

func TestBuildCreate_Accepted(t *testing.T) {
	b := new(mockBuilds)
	b.On("Start", process.BuildRequest{BuildCode: "nova", Platform: model.PlatformWeixin}).Return(validID, nil)

	rec := httptest.NewRecorder()
	NewBuild(b).Create(rec, newRequest(http.MethodPost, "/builds", map[string]any{
		"build_code": "nova",
		"platform":   "wechat",
	}))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	b.AssertExpectations(t)
}

func TestBuildCreate_MissingPlatform(t *testing.T) {
	b := new(mockBuilds)
	rec := httptest.NewRecorder()
	NewBuild(b).Create(rec, newRequest(http.MethodPost, "/builds", map[string]any{"build_code": "nova"}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	b.AssertNotCalled(t, "Start", mock.Anything)
}

func TestBuildStop(t *testing.T) {
	b := new(mockBuilds)
	b.On("Stop", validID).Return(process.ForceKilled, nil)
	b.On("Stop", validID2).Return(process.TerminationState(""), fmt.Errorf("stop: %w", process.ErrTaskNotFound))
	h := NewBuild(b)

	rec := httptest.NewRecorder()
	h.Stop(rec, withChiURLParam(newRequest(http.MethodDelete, "/builds/"+validID, nil), "id", validID))
	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "force_killed", body["termination"])

	rec = httptest.NewRecorder()
	h.Stop(rec, withChiURLParam(newRequest(http.MethodDelete, "/builds/"+validID2, nil), "id", validID2))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.Stop(rec, withChiURLParam(newRequest(http.MethodDelete, "/builds/", nil), "id", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeErrorResponse(rec)["error"], "missing required ID")
}

// --- Publishes ---

func publishBody() map[string]any {
	return map[string]any{
		"build_code":  "nova",
		"platform":    "mp-kuaishou",
		"app_id":      "ks-1",
		"private_key": "secret",
		"version":     "1.0.0",
	}
}

func TestPublishCreate_Accepted(t *testing.T) {
	p := new(mockPublishes)
	p.On("Start", mock.MatchedBy(func(req process.PublishRequest) bool {
		return req.Platform == model.PlatformKuaishou && req.PrivateKey == "secret"
	})).Return(validID, nil)

	rec := httptest.NewRecorder()
	NewPublish(p).Create(rec, newRequest(http.MethodPost, "/publishes", publishBody()))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	p.AssertExpectations(t)
}

func TestPublishCreate_PlatformBusy(t *testing.T) {
	p := new(mockPublishes)
	p.On("Start", mock.Anything).Return("", process.ErrPlatformBusy)

	rec := httptest.NewRecorder()
	NewPublish(p).Create(rec, newRequest(http.MethodPost, "/publishes", publishBody()))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPublishCreate_MissingKey(t *testing.T) {
	body := publishBody()
	delete(body, "private_key")
	p := new(mockPublishes)

	rec := httptest.NewRecorder()
	NewPublish(p).Create(rec, newRequest(http.MethodPost, "/publishes", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	p.AssertNotCalled(t, "Start", mock.Anything)
}

func TestPublishCreate_PathLikeAppIDRejected(t *testing.T) {
	body := publishBody()
	body["app_id"] = "/../../../x"
	p := new(mockPublishes)

	rec := httptest.NewRecorder()
	NewPublish(p).Create(rec, newRequest(http.MethodPost, "/publishes", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	p.AssertNotCalled(t, "Start", mock.Anything)
}

func TestPublishGet(t *testing.T) {
	p := new(mockPublishes)
	p.On("Lookup", validID).Return(process.PublishInfo{Platform: model.PlatformKuaishou, ProjectPath: "/w/dist/nova/mp-kuaishou"}, nil)
	p.On("Lookup", validID2).Return(process.PublishInfo{}, process.ErrTaskNotFound)
	h := NewPublish(p)

	rec := httptest.NewRecorder()
	h.Get(rec, withChiURLParam(newRequest(http.MethodGet, "/publishes/"+validID, nil), "id", validID))
	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ks", body["platform"])
	assert.Equal(t, "/w/dist/nova/mp-kuaishou", body["project_path"])

	rec = httptest.NewRecorder()
	h.Get(rec, withChiURLParam(newRequest(http.MethodGet, "/publishes/"+validID2, nil), "id", validID2))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPublishQRCode(t *testing.T) {
	p := new(mockPublishes)
	p.On("QRCode", validID).Return([]byte("PNG"), nil)
	p.On("QRCode", validID2).Return(nil, fmt.Errorf("reading qr code: %w", os.ErrNotExist))
	p.On("QRCode", "broken").Return(nil, errors.New("permission denied"))
	h := NewPublish(p)

	rec := httptest.NewRecorder()
	h.QRCode(rec, withChiURLParam(newRequest(http.MethodGet, "/", nil), "id", validID))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "PNG", rec.Body.String())

	rec = httptest.NewRecorder()
	h.QRCode(rec, withChiURLParam(newRequest(http.MethodGet, "/", nil), "id", validID2))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.QRCode(rec, withChiURLParam(newRequest(http.MethodGet, "/", nil), "id", "broken"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPublishStop(t *testing.T) {
	p := new(mockPublishes)
	p.On("Stop", validID).Return(process.Terminated, nil)

	rec := httptest.NewRecorder()
	NewPublish(p).Stop(rec, withChiURLParam(newRequest(http.MethodDelete, "/", nil), "id", validID))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"termination":"terminated"`)
}
