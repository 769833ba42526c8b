package pkg

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/simp-lee/crudboard/internal/domain"
)

// ValidationMessage is the top-level message of every 422 response.
const ValidationMessage = "The given data was invalid."

// Response is the envelope for single-item responses.
type Response struct {
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

// ListResponse is the envelope for paginated list responses.
type ListResponse struct {
	Data  any              `json:"data"`
	Meta  domain.PageMeta  `json:"meta"`
	Links domain.PageLinks `json:"links"`
}

// ErrorResponse is the body of every error response. Errors is only set for
// validation failures.
type ErrorResponse struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// Success sends a 200 JSON response with the given data.
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Data: data})
}

// Created sends a 201 JSON response with the given data.
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Response{Data: data})
}

// Deleted sends a 200 JSON response carrying only a message.
func Deleted(c *gin.Context, message string) {
	c.JSON(http.StatusOK, Response{Data: nil, Message: message})
}

// List sends a 200 JSON response for a paginated result.
func List[T any](c *gin.Context, page domain.Page[T]) {
	c.JSON(http.StatusOK, ListResponse{
		Data:  page.Items,
		Meta:  page.Meta,
		Links: page.Links,
	})
}

// Error sends a JSON error response. If err is a *domain.AppError, its code is
// mapped to the appropriate HTTP status; otherwise 500 is returned and the
// cause is not exposed.
func Error(c *gin.Context, err error) {
	status := domain.HTTPStatusCode(err)

	var appErr *domain.AppError
	msg := "Server Error"
	var fields map[string][]string
	if errors.As(err, &appErr) {
		msg = appErr.Message
		if appErr.Code == domain.CodeValidation {
			fields = appErr.Fields
			if fields == nil {
				fields = map[string][]string{}
			}
		}
	}

	c.JSON(status, ErrorResponse{Message: msg, Errors: fields})
}

// ValidationError sends a 422 JSON response with per-field validation messages.
func ValidationError(c *gin.Context, err error) {
	validationErrorWithType(c, err, nil)
}

// BindAndValidate binds the request body to obj and validates it.
// On failure it sends a 422 response and returns false.
// Because obj is available, JSON struct tags are used for field names when possible.
// Usage in handlers:
//
//	if !pkg.BindAndValidate(c, &req) { return }
func BindAndValidate(c *gin.Context, obj any) bool {
	if err := c.ShouldBind(obj); err != nil {
		validationErrorWithType(c, err, obj)
		return false
	}
	return true
}

// ValidationFields converts validator errors into per-field messages keyed
// by JSON name. It returns nil when err is not a validator error.
func ValidationFields(err error, obj any) map[string][]string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}

	jsonTags := buildJSONTagMap(obj)

	fields := make(map[string][]string, len(ve))
	for _, fe := range ve {
		name := fe.Field()
		if tag, ok := jsonTags[fe.StructField()]; ok {
			name = tag
		} else {
			name = strings.ToLower(name)
		}
		fields[name] = append(fields[name], fieldMessage(fe, name))
	}
	return fields
}

// validationErrorWithType sends a 422 validation error response.
// When obj is non-nil, it reflects on the struct to prefer JSON tag names.
func validationErrorWithType(c *gin.Context, err error, obj any) {
	fields := ValidationFields(err, obj)
	if fields == nil {
		// Malformed body rather than a rule violation.
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: err.Error(),
			Errors:  map[string][]string{},
		})
		return
	}

	c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
		Message: ValidationMessage,
		Errors:  fields,
	})
}

// fieldMessage renders a human-readable message for one failed rule.
func fieldMessage(fe validator.FieldError, name string) string {
	label := strings.ReplaceAll(name, "_", " ")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", label)
	case "email":
		return fmt.Sprintf("The %s must be a valid email address.", label)
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("The %s must be at least %s characters.", label, fe.Param())
		}
		return fmt.Sprintf("The %s must be at least %s.", label, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("The %s may not be greater than %s characters.", label, fe.Param())
		}
		return fmt.Sprintf("The %s may not be greater than %s.", label, fe.Param())
	case "gte":
		return fmt.Sprintf("The %s must be greater than or equal to %s.", label, fe.Param())
	case "lte":
		return fmt.Sprintf("The %s must be less than or equal to %s.", label, fe.Param())
	case "eqfield":
		return fmt.Sprintf("The %s does not match.", label)
	case "datetime":
		return fmt.Sprintf("The %s does not match the format %s.", label, fe.Param())
	}
	msg := fmt.Sprintf("The %s is invalid (%s", label, fe.Tag())
	if fe.Param() != "" {
		msg += "=" + fe.Param()
	}
	return msg + ")."
}

// buildJSONTagMap returns a map from struct field name to its JSON tag name.
// If obj is nil or not a struct (pointer), it returns an empty map.
func buildJSONTagMap(obj any) map[string]string {
	if obj == nil {
		return nil
	}
	t := reflect.TypeOf(obj)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	m := make(map[string]string, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if name := parseJSONTagName(tag); name != "" {
			m[f.Name] = name
		}
	}
	return m
}

// parseJSONTagName extracts the field name from a JSON struct tag value.
func parseJSONTagName(tag string) string {
	if tag == "" || tag == "-" {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" || name == "-" {
		return ""
	}
	return name
}
