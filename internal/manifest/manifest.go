// Package manifest validates tooth.json documents before they may enter the catalog.
//
// The structural schema is compiled once, when the package is initialised, and the
// compiled validator is shared read-only by every caller. Validation aggregates every
// violation into a single error; callers never receive a partially populated Manifest.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/mod/semver"

	internalErrors "github.com/lippkg/lip-index/internal/errors"
)

// RawManifest is the untrusted tooth.json document as submitted for one version.
// Pointer fields distinguish an absent property from an empty one.
type RawManifest struct {
	Tooth   *string  `json:"tooth" validate:"required,toothpath"`
	Version *string  `json:"version" validate:"required,toothversion"`
	Info    *RawInfo `json:"info" validate:"required"`
}

// RawInfo is the "info" object of a tooth.json document.
type RawInfo struct {
	Name        *string   `json:"name" validate:"required"`
	Description *string   `json:"description" validate:"required"`
	Author      *string   `json:"author" validate:"required"`
	Tags        *[]string `json:"tags" validate:"required"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
}

// toothPathRegex accepts "<host>/<owner>/<repo>" without a scheme or trailing slash.
var toothPathRegex = regexp.MustCompile(`^[a-z0-9.-]+\.[a-z]+/[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

var schema = newSchema()

func newSchema() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report violations using JSON property names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	mustRegister(v, "toothpath", func(fl validator.FieldLevel) bool {
		return toothPathRegex.MatchString(fl.Field().String())
	})
	mustRegister(v, "toothversion", func(fl validator.FieldLevel) bool {
		return IsSemVer(fl.Field().String())
	})

	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("manifest: register %s: %v", tag, err))
	}
}

// IsSemVer reports whether version is a full semantic version without a "v" prefix,
// e.g. "1.2.3" or "1.2.3-rc.1+build.5".
func IsSemVer(version string) bool {
	if version == "" || version[0] == 'v' {
		return false
	}
	withPrefix := "v" + version
	if !semver.IsValid(withPrefix) {
		return false
	}
	// semver.IsValid also accepts shorthands like "v1" and "v1.2"
	withoutBuild := strings.SplitN(withPrefix, "+", 2)[0]
	return semver.Canonical(withPrefix) == withoutBuild
}

// property is one schema property and the JSON type its value must have.
type property struct {
	name     string
	jsonType string
}

var (
	manifestProperties = []property{
		{"tooth", "string"},
		{"version", "string"},
		{"info", "object"},
	}
	infoProperties = []property{
		{"name", "string"},
		{"description", "string"},
		{"author", "string"},
		{"tags", "array"},
		{"avatar_url", "string"},
	}
)

// Validate decodes and validates a tooth.json document.
func Validate(data []byte) (*Manifest, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, internalErrors.NewManifestValidationError([]string{"document must be object"})
		}
		return nil, internalErrors.NewManifestValidationError([]string{"document is not valid JSON: " + err.Error()})
	}
	if doc == nil {
		return nil, internalErrors.NewManifestValidationError([]string{"document must be object"})
	}

	violations, mistyped := checkTypes(doc)

	// Type mismatches are already reported; the rest of raw is still usable
	var raw RawManifest
	if err := json.Unmarshal(data, &raw); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return nil, internalErrors.NewManifestValidationError([]string{"document is not valid JSON: " + err.Error()})
		}
	}

	return validate(&raw, violations, mistyped)
}

// checkTypes reports every property whose JSON type does not match the schema.
// Absent and null properties are left to the required checks.
func checkTypes(doc map[string]json.RawMessage) ([]string, map[string]bool) {
	var violations []string
	mistyped := make(map[string]bool)

	check := func(path string, value json.RawMessage, want string) bool {
		got := jsonType(value)
		if got == "null" || got == want {
			return got == want
		}
		mistyped[path] = true
		violations = append(violations, fmt.Sprintf("%s must be %s", path, want))
		return false
	}

	for _, p := range manifestProperties {
		value, ok := doc[p.name]
		if !ok || !check(p.name, value, p.jsonType) || p.name != "info" {
			continue
		}

		var info map[string]json.RawMessage
		if err := json.Unmarshal(value, &info); err != nil {
			continue
		}
		for _, ip := range infoProperties {
			path := "info." + ip.name
			value, ok := info[ip.name]
			if !ok || !check(path, value, ip.jsonType) || ip.name != "tags" {
				continue
			}

			var tags []json.RawMessage
			if err := json.Unmarshal(value, &tags); err != nil {
				continue
			}
			for i, tag := range tags {
				if jsonType(tag) != "string" {
					mistyped[path] = true
					violations = append(violations, fmt.Sprintf("%s[%d] must be string", path, i))
				}
			}
		}
	}

	return violations, mistyped
}

// jsonType names the JSON type of an encoded value.
func jsonType(value json.RawMessage) string {
	value = bytes.TrimSpace(value)
	if len(value) == 0 {
		return "null"
	}
	switch value[0] {
	case '"':
		return "string"
	case '{':
		return "object"
	case '[':
		return "array"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}

// ValidateRaw validates an already decoded document.
func ValidateRaw(raw *RawManifest) (*Manifest, error) {
	if raw == nil {
		return nil, internalErrors.NewManifestValidationError([]string{"document is required"})
	}
	return validate(raw, nil, nil)
}

func validate(raw *RawManifest, violations []string, mistyped map[string]bool) (*Manifest, error) {
	if err := schema.Struct(raw); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return nil, fmt.Errorf("validate manifest: %w", err)
		}
		for _, fe := range fieldErrs {
			path := fieldPath(fe)
			if isMistyped(path, mistyped) {
				continue
			}
			violations = append(violations, describe(path, fe))
		}
	}

	if len(violations) > 0 {
		return nil, internalErrors.NewManifestValidationError(violations)
	}

	return newManifest(raw), nil
}

// isMistyped reports whether path or one of its parents already failed its type check.
func isMistyped(path string, mistyped map[string]bool) bool {
	for parent := path; parent != ""; {
		if mistyped[parent] {
			return true
		}
		i := strings.LastIndexByte(parent, '.')
		if i < 0 {
			break
		}
		parent = parent[:i]
	}
	return false
}

// fieldPath turns "RawManifest.info.name" into "info.name".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(path string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return path + " is required"
	case "toothpath":
		return fmt.Sprintf("%s must be a repository path like github.com/<owner>/<repo>: %v", path, fe.Value())
	case "toothversion":
		return fmt.Sprintf("%s must be a semantic version: %v", path, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", path, fe.Tag())
	}
}
