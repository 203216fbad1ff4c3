package request

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/edvin/miniforge/internal/model"
	"github.com/edvin/miniforge/internal/resource"
)

var validate = validator.New()

// Build codes end up in file names and JavaScript identifiers.
var nameRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,62}$`)

// App ids name the key file written next to the project.
var appIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// templateDir is the template tree a build code must not collide with.
var templateDir = resource.DefaultTemplateDir

// SetTemplateDir sets the configured template tree. Call it before serving.
func SetTemplateDir(dir string) {
	templateDir = dir
}

func init() {
	validate.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		code := fl.Field().String()
		return nameRegex.MatchString(code) && !resource.Reserved(code, templateDir)
	})
	validate.RegisterValidation("appid", func(fl validator.FieldLevel) bool {
		return appIDRegex.MatchString(fl.Field().String())
	})
	validate.RegisterValidation("platform", func(fl validator.FieldLevel) bool {
		return model.IsPlatform(fl.Field().String())
	})
}

func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	return nil
}

func RequireID(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("missing required ID")
	}
	return s, nil
}
