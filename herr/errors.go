package herr

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type Error struct {
	Error       error
	HTTPMessage string
	Desc        string
	Code        int
	// Fields is rendered as a JSON body instead of plain text when set.
	Fields []Field
}

type Field struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Wrap func(w http.ResponseWriter, r *http.Request) *Error

func (fn Wrap) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e := fn(w, r)
	if e == nil {
		return
	}
	slog.Error("Error in handler:", "desc", e.Desc, "httpMessage", e.HTTPMessage, "code", e.Code, "error", e.Error)
	if len(e.Fields) == 0 {
		http.Error(w, e.HTTPMessage, e.Code)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(e.Code)
	err := json.NewEncoder(w).Encode(struct {
		Error  string  `json:"error"`
		Fields []Field `json:"fields"`
	}{e.HTTPMessage, e.Fields})
	if err != nil {
		slog.Warn("error encoding field errors", "path", r.URL.Path, "error", err)
	}
}

func Internal(err error, desc string) *Error {
	return &Error{
		HTTPMessage: "Internal server error",
		Desc:        desc,
		Code:        http.StatusInternalServerError,
		Error:       err,
	}
}

func BadRequest(err error, desc string) *Error {
	return &Error{
		HTTPMessage: "Bad request",
		Desc:        desc,
		Code:        http.StatusBadRequest,
		Error:       err,
	}
}

func Unauthorized(err error, desc string) *Error {
	return &Error{
		HTTPMessage: "Unauthorized",
		Desc:        desc,
		Code:        http.StatusUnauthorized,
		Error:       err,
	}
}

func NotFound(err error, desc string) *Error {
	return &Error{
		HTTPMessage: "Not found",
		Desc:        desc,
		Code:        http.StatusNotFound,
		Error:       err,
	}
}

func Conflict(err error, desc string) *Error {
	return &Error{
		HTTPMessage: "Conflict",
		Desc:        desc,
		Code:        http.StatusConflict,
		Error:       err,
	}
}

func Invalid(err error, desc string, fields []Field) *Error {
	return &Error{
		HTTPMessage: "Validation failed",
		Desc:        desc,
		Code:        http.StatusBadRequest,
		Error:       err,
		Fields:      fields,
	}
}
