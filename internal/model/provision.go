package model

// ProvisioningRequest is everything one provisioning run needs. It is built
// once per client call and never modified by the pipeline.
type ProvisioningRequest struct {
	BuildCode string           `json:"build_code"`
	Platform  Platform         `json:"platform"`
	Base      BaseSettings     `json:"base"`
	Payments  []PaymentSetting `json:"payments"`
	Ads       []AdSetting      `json:"ads"`
	Common    CommonSettings   `json:"common"`
	UI        UISettings       `json:"ui"`
	Delivery  DeliverySettings `json:"delivery"`
}

// BaseSettings identifies the application on its platform.
type BaseSettings struct {
	AppID       string `json:"app_id"`
	AppName     string `json:"app_name"`
	AppSecret   string `json:"app_secret,omitempty"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
}

// PaymentSetting configures one payment method.
type PaymentSetting struct {
	Method     string `json:"method"`
	MerchantID string `json:"merchant_id"`
	NotifyURL  string `json:"notify_url,omitempty"`
	Enabled    bool   `json:"enabled"`
}

// AdSetting configures one advertisement type.
type AdSetting struct {
	Type     string `json:"type"`
	UnitID   string `json:"unit_id"`
	Interval int    `json:"interval,omitempty"`
	Enabled  bool   `json:"enabled"`
}

// CommonSettings holds settings shared by every page of the app.
type CommonSettings struct {
	ServiceURL   string `json:"service_url"`
	ContactPhone string `json:"contact_phone,omitempty"`
	ShareTitle   string `json:"share_title,omitempty"`
	ShareImage   string `json:"share_image,omitempty"`
	ShareEnabled bool   `json:"share_enabled"`
	FreeEpisodes int    `json:"free_episodes,omitempty"`
}

// UISettings controls the look of the app.
type UISettings struct {
	ThemeColor      string `json:"theme_color"`
	NavigationTitle string `json:"navigation_title,omitempty"`
	TabBarStyle     string `json:"tab_bar_style,omitempty"`
}

// DeliverySettings configures ad-delivery attribution reporting.
type DeliverySettings struct {
	Enabled   bool     `json:"enabled"`
	Channel   string   `json:"channel,omitempty"`
	ReportURL string   `json:"report_url,omitempty"`
	Events    []string `json:"events,omitempty"`
}
