package core

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/miniforge/internal/ids"
	"github.com/edvin/miniforge/internal/model"
)

// ProvisionResult identifies the app row written by Provision.
type ProvisionResult struct {
	AppID string
	// Created is true when (build code, platform) did not exist before.
	Created bool
}

// ProvisionStore is the relational stage of a provisioning run.
type ProvisionStore struct {
	db DB
}

func NewProvisionStore(db DB) *ProvisionStore {
	return &ProvisionStore{db: db}
}

// Provision writes the app identity, its payment methods, advertisement
// types, common settings and UI settings in one transaction. Payment and
// advertisement rows are replaced as a set.
func (s *ProvisionStore) Provision(ctx context.Context, req *model.ProvisioningRequest) (*ProvisionResult, error) {
	delivery, err := json.Marshal(req.Delivery)
	if err != nil {
		return nil, fmt.Errorf("encode delivery settings: %w", err)
	}

	var res ProvisionResult
	err = pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		b := req.Base
		err := tx.QueryRow(ctx,
			`INSERT INTO apps (id, build_code, platform, app_id, app_name, app_secret, version, description, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
			 ON CONFLICT (build_code, platform) DO UPDATE SET
			   app_id = EXCLUDED.app_id,
			   app_name = EXCLUDED.app_name,
			   app_secret = EXCLUDED.app_secret,
			   version = EXCLUDED.version,
			   description = EXCLUDED.description,
			   updated_at = now()
			 RETURNING id, (xmax = 0)`,
			ids.New(), req.BuildCode, string(req.Platform), b.AppID, b.AppName, b.AppSecret, b.Version, b.Description,
		).Scan(&res.AppID, &res.Created)
		if err != nil {
			return fmt.Errorf("upsert app: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM app_payments WHERE app_id = $1`, res.AppID); err != nil {
			return fmt.Errorf("clear payments: %w", err)
		}
		for _, p := range req.Payments {
			_, err := tx.Exec(ctx,
				`INSERT INTO app_payments (app_id, method, merchant_id, notify_url, enabled)
				 VALUES ($1, $2, $3, $4, $5)`,
				res.AppID, p.Method, p.MerchantID, p.NotifyURL, p.Enabled,
			)
			if err != nil {
				return fmt.Errorf("insert payment %s: %w", p.Method, err)
			}
		}

		if _, err := tx.Exec(ctx, `DELETE FROM app_ads WHERE app_id = $1`, res.AppID); err != nil {
			return fmt.Errorf("clear ads: %w", err)
		}
		for _, ad := range req.Ads {
			_, err := tx.Exec(ctx,
				`INSERT INTO app_ads (app_id, ad_type, unit_id, interval_seconds, enabled)
				 VALUES ($1, $2, $3, $4, $5)`,
				res.AppID, ad.Type, ad.UnitID, ad.Interval, ad.Enabled,
			)
			if err != nil {
				return fmt.Errorf("insert ad %s: %w", ad.Type, err)
			}
		}

		c := req.Common
		_, err = tx.Exec(ctx,
			`INSERT INTO app_common_settings (app_id, service_url, contact_phone, share_title, share_image, share_enabled, free_episodes, delivery)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (app_id) DO UPDATE SET
			   service_url = EXCLUDED.service_url,
			   contact_phone = EXCLUDED.contact_phone,
			   share_title = EXCLUDED.share_title,
			   share_image = EXCLUDED.share_image,
			   share_enabled = EXCLUDED.share_enabled,
			   free_episodes = EXCLUDED.free_episodes,
			   delivery = EXCLUDED.delivery`,
			res.AppID, c.ServiceURL, c.ContactPhone, c.ShareTitle, c.ShareImage, c.ShareEnabled, c.FreeEpisodes, delivery,
		)
		if err != nil {
			return fmt.Errorf("upsert common settings: %w", err)
		}

		u := req.UI
		_, err = tx.Exec(ctx,
			`INSERT INTO app_ui_settings (app_id, theme_color, navigation_title, tab_bar_style)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (app_id) DO UPDATE SET
			   theme_color = EXCLUDED.theme_color,
			   navigation_title = EXCLUDED.navigation_title,
			   tab_bar_style = EXCLUDED.tab_bar_style`,
			res.AppID, u.ThemeColor, u.NavigationTitle, u.TabBarStyle,
		)
		if err != nil {
			return fmt.Errorf("upsert ui settings: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("provision app %s/%s: %w", req.BuildCode, req.Platform, err)
	}
	return &res, nil
}

// Discard deletes an app created by Provision together with its settings.
func (s *ProvisionStore) Discard(ctx context.Context, appID string) error {
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		for _, table := range []string{"app_ui_settings", "app_common_settings", "app_ads", "app_payments"} {
			if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE app_id = $1`, appID); err != nil {
				return fmt.Errorf("delete %s: %w", table, err)
			}
		}
		if _, err := tx.Exec(ctx, `DELETE FROM apps WHERE id = $1`, appID); err != nil {
			return fmt.Errorf("delete app: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("discard app %s: %w", appID, err)
	}
	return nil
}
