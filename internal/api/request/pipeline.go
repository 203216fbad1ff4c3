package request

import (
	"github.com/edvin/miniforge/internal/model"
	"github.com/edvin/miniforge/internal/process"
)

type CreateBuild struct {
	BuildCode string `json:"build_code" validate:"required,slug"`
	Platform  string `json:"platform" validate:"required,platform"`
}

func (c *CreateBuild) ToProcess() process.BuildRequest {
	p, _ := model.ParsePlatform(c.Platform)
	return process.BuildRequest{BuildCode: c.BuildCode, Platform: p}
}

type CreatePublish struct {
	BuildCode   string `json:"build_code" validate:"required,slug"`
	Platform    string `json:"platform" validate:"required,platform"`
	AppID       string `json:"app_id" validate:"required,appid"`
	PrivateKey  string `json:"private_key" validate:"required"`
	Version     string `json:"version" validate:"required,max=32"`
	Description string `json:"description" validate:"max=512"`
}

func (c *CreatePublish) ToProcess() process.PublishRequest {
	p, _ := model.ParsePlatform(c.Platform)
	return process.PublishRequest{
		BuildCode:   c.BuildCode,
		Platform:    p,
		AppID:       c.AppID,
		PrivateKey:  c.PrivateKey,
		Version:     c.Version,
		Description: c.Description,
	}
}
