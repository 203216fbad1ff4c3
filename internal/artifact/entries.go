package artifact

import (
	"github.com/edvin/miniforge/internal/model"
	"github.com/edvin/miniforge/internal/patch"
)

func baseEntry(req *model.ProvisioningRequest) *patch.Object {
	b := req.Base
	return patch.NewObject().
		Set("appId", patch.String(b.AppID)).
		Set("appName", patch.String(b.AppName)).
		Set("version", patch.String(b.Version)).
		Set("description", patch.String(b.Description)).
		Set("buildCode", patch.String(req.BuildCode))
}

// adEntry keys one object per advertisement type.
func adEntry(req *model.ProvisioningRequest) *patch.Object {
	obj := patch.NewObject()
	for _, ad := range req.Ads {
		obj.Set(ad.Type, patch.NewObject().
			Set("unitId", patch.String(ad.UnitID)).
			Set("interval", patch.Int(ad.Interval)).
			Set("enabled", patch.Bool(ad.Enabled)))
	}
	return obj
}

// payEntry keys one object per payment method.
func payEntry(req *model.ProvisioningRequest) *patch.Object {
	obj := patch.NewObject()
	for _, p := range req.Payments {
		obj.Set(p.Method, patch.NewObject().
			Set("merchantId", patch.String(p.MerchantID)).
			Set("notifyUrl", patch.String(p.NotifyURL)).
			Set("enabled", patch.Bool(p.Enabled)))
	}
	return obj
}

func deliveryEntry(req *model.ProvisioningRequest) *patch.Object {
	d := req.Delivery
	return patch.NewObject().
		Set("enabled", patch.Bool(d.Enabled)).
		Set("channel", patch.String(d.Channel)).
		Set("reportUrl", patch.String(d.ReportURL)).
		Set("events", patch.Strings(d.Events))
}

func commonEntry(req *model.ProvisioningRequest) *patch.Object {
	c := req.Common
	return patch.NewObject().
		Set("serviceUrl", patch.String(c.ServiceURL)).
		Set("contactPhone", patch.String(c.ContactPhone)).
		Set("shareTitle", patch.String(c.ShareTitle)).
		Set("shareImage", patch.String(c.ShareImage)).
		Set("shareEnabled", patch.Bool(c.ShareEnabled)).
		Set("freeEpisodes", patch.Int(c.FreeEpisodes))
}

func uiEntry(req *model.ProvisioningRequest) *patch.Object {
	u := req.UI
	return patch.NewObject().
		Set("themeColor", patch.String(u.ThemeColor)).
		Set("navigationTitle", patch.String(u.NavigationTitle)).
		Set("tabBarStyle", patch.String(u.TabBarStyle))
}

func entryFor(t Type, req *model.ProvisioningRequest) *patch.Object {
	switch t {
	case TypeBase:
		return baseEntry(req)
	case TypeAd:
		return adEntry(req)
	case TypePay:
		return payEntry(req)
	case TypeDelivery:
		return deliveryEntry(req)
	case TypeCommon:
		return commonEntry(req)
	case TypeUI:
		return uiEntry(req)
	}
	return nil
}
