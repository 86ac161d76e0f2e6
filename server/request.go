package server

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strconv"
)

const maxBodyBytes = 1 << 20

// formValues reads a flat JSON object or an urlencoded form into string
// values. JSON numbers and booleans keep their literal text.
func formValues(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		return jsonValues(r)
	}

	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("error parsing form: %w", err)
	}
	values := make(map[string]string, len(r.PostForm))
	for key := range r.PostForm {
		values[key] = r.PostForm.Get(key)
	}
	return values, nil
}

func jsonValues(r *http.Request) (map[string]string, error) {
	var raw map[string]any
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("error decoding json body: %w", err)
	}

	values := make(map[string]string, len(raw))
	for key, v := range raw {
		switch v := v.(type) {
		case string:
			values[key] = v
		case json.Number:
			values[key] = v.String()
		case bool:
			values[key] = strconv.FormatBool(v)
		case nil:
		default:
			return nil, fmt.Errorf("field %q must be a scalar", key)
		}
	}
	return values, nil
}
