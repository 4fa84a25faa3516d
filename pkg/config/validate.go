// MeasureBoard Core
// Copyright (c) 2026 The MeasureBoard Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of MeasureBoard Core.
//
// MeasureBoard Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// MeasureBoard Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with MeasureBoard Core.  If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Fields []FieldError
}

// FieldError is a single failed field, named by its TOML path.
type FieldError struct {
	Value   any
	Field   string
	Tag     string
	Message string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid config"
	}
	msgs := make([]string, len(e.Fields))
	for i, fe := range e.Fields {
		msgs[i] = fe.Message
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("symbol", validateSymbol)
	return v
}

var configValidator = newValidator()

// Validate checks vals against the field constraints.
func Validate(vals *Values) error {
	if err := configValidator.Struct(vals); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return newValidationError(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// validateSymbol accepts non-empty symbol names without separators.
func validateSymbol(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return false
	}
	return !strings.ContainsFunc(val, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

func newValidationError(errs validator.ValidationErrors) *ValidationError {
	ve := &ValidationError{
		Fields: make([]FieldError, len(errs)),
	}
	for i, fe := range errs {
		field := fe.Namespace()
		// drop the root struct name
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		ve.Fields[i] = FieldError{
			Field:   field,
			Tag:     fe.Tag(),
			Value:   fe.Value(),
			Message: formatFieldError(field, fe),
		}
	}
	return ve
}

func formatFieldError(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required_if":
		return field + " is required when enabled"
	case "symbol":
		return fmt.Sprintf("%s: %q is not a valid symbol", field, fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "gtefield":
		return fmt.Sprintf("%s must not be less than %s", field, strings.ToLower(fe.Param()))
	case "ltefield":
		return fmt.Sprintf("%s must not be greater than %s", field, strings.ToLower(fe.Param()))
	case "hostname_port":
		return field + " must be a host:port address"
	case "url":
		return field + " must be a URL"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
