package handler

import (
	"github.com/stretchr/testify/mock"

	"github.com/edvin/miniforge/internal/model"
	"github.com/edvin/miniforge/internal/process"
)

type mockProvisioner struct {
	mock.Mock
}

func (m *mockProvisioner) Start(req *model.ProvisioningRequest) (string, error) {
	args := m.Called(req)
	return args.String(0), args.Error(1)
}

type mockBuilds struct {
	mock.Mock
}

func (m *mockBuilds) Start(req process.BuildRequest) (string, error) {
	args := m.Called(req)
	return args.String(0), args.Error(1)
}

func (m *mockBuilds) Stop(id string) (process.TerminationState, error) {
	args := m.Called(id)
	return args.Get(0).(process.TerminationState), args.Error(1)
}

type mockPublishes struct {
	mock.Mock
}

func (m *mockPublishes) Start(req process.PublishRequest) (string, error) {
	args := m.Called(req)
	return args.String(0), args.Error(1)
}

func (m *mockPublishes) Stop(id string) (process.TerminationState, error) {
	args := m.Called(id)
	return args.Get(0).(process.TerminationState), args.Error(1)
}

func (m *mockPublishes) Lookup(id string) (process.PublishInfo, error) {
	args := m.Called(id)
	return args.Get(0).(process.PublishInfo), args.Error(1)
}

func (m *mockPublishes) QRCode(id string) ([]byte, error) {
	args := m.Called(id)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}
