package request

import "github.com/edvin/miniforge/internal/model"

// CreateApp is the body of a provisioning request.
type CreateApp struct {
	BuildCode string       `json:"build_code" validate:"required,slug"`
	Platform  string       `json:"platform" validate:"required,platform"`
	Base      AppBase      `json:"base"`
	Payments  []AppPayment `json:"payments" validate:"omitempty,dive"`
	Ads       []AppAd      `json:"ads" validate:"omitempty,dive"`
	Common    AppCommon    `json:"common"`
	UI        AppUI        `json:"ui"`
	Delivery  *AppDelivery `json:"delivery"`
}

type AppBase struct {
	AppID       string `json:"app_id" validate:"required,appid"`
	AppName     string `json:"app_name" validate:"required,max=64"`
	AppSecret   string `json:"app_secret"`
	Version     string `json:"version" validate:"required,max=32"`
	Description string `json:"description" validate:"max=512"`
}

type AppPayment struct {
	Method     string `json:"method" validate:"required,slug"`
	MerchantID string `json:"merchant_id" validate:"required"`
	NotifyURL  string `json:"notify_url" validate:"omitempty,url"`
	Enabled    *bool  `json:"enabled"`
}

type AppAd struct {
	Type     string `json:"type" validate:"required,slug"`
	UnitID   string `json:"unit_id" validate:"required"`
	Interval int    `json:"interval" validate:"gte=0"`
	Enabled  *bool  `json:"enabled"`
}

type AppCommon struct {
	ServiceURL   string `json:"service_url" validate:"omitempty,url"`
	ContactPhone string `json:"contact_phone"`
	ShareTitle   string `json:"share_title"`
	ShareImage   string `json:"share_image" validate:"omitempty,url"`
	ShareEnabled bool   `json:"share_enabled"`
	FreeEpisodes int    `json:"free_episodes" validate:"gte=0"`
}

type AppUI struct {
	ThemeColor      string `json:"theme_color" validate:"required,hexcolor"`
	NavigationTitle string `json:"navigation_title"`
	TabBarStyle     string `json:"tab_bar_style" validate:"omitempty,oneof=black white"`
}

type AppDelivery struct {
	Enabled   bool     `json:"enabled"`
	Channel   string   `json:"channel"`
	ReportURL string   `json:"report_url" validate:"omitempty,url"`
	Events    []string `json:"events"`
}

// ToModel converts a validated request. Payments and ads default to enabled.
func (c *CreateApp) ToModel() *model.ProvisioningRequest {
	p, _ := model.ParsePlatform(c.Platform)
	req := &model.ProvisioningRequest{
		BuildCode: c.BuildCode,
		Platform:  p,
		Base: model.BaseSettings{
			AppID:       c.Base.AppID,
			AppName:     c.Base.AppName,
			AppSecret:   c.Base.AppSecret,
			Version:     c.Base.Version,
			Description: c.Base.Description,
		},
		Common: model.CommonSettings{
			ServiceURL:   c.Common.ServiceURL,
			ContactPhone: c.Common.ContactPhone,
			ShareTitle:   c.Common.ShareTitle,
			ShareImage:   c.Common.ShareImage,
			ShareEnabled: c.Common.ShareEnabled,
			FreeEpisodes: c.Common.FreeEpisodes,
		},
		UI: model.UISettings{
			ThemeColor:      c.UI.ThemeColor,
			NavigationTitle: c.UI.NavigationTitle,
			TabBarStyle:     c.UI.TabBarStyle,
		},
	}
	for _, pay := range c.Payments {
		req.Payments = append(req.Payments, model.PaymentSetting{
			Method:     pay.Method,
			MerchantID: pay.MerchantID,
			NotifyURL:  pay.NotifyURL,
			Enabled:    pay.Enabled == nil || *pay.Enabled,
		})
	}
	for _, ad := range c.Ads {
		req.Ads = append(req.Ads, model.AdSetting{
			Type:     ad.Type,
			UnitID:   ad.UnitID,
			Interval: ad.Interval,
			Enabled:  ad.Enabled == nil || *ad.Enabled,
		})
	}
	if c.Delivery != nil {
		req.Delivery = model.DeliverySettings{
			Enabled:   c.Delivery.Enabled,
			Channel:   c.Delivery.Channel,
			ReportURL: c.Delivery.ReportURL,
			Events:    c.Delivery.Events,
		}
	}
	return req
}
