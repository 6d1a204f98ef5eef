package mapping

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// DefaultParameterName is the request parameter consulted when none is configured.
const DefaultParameterName = "action"

// maxPeekBody bounds how much of a request body a parameter source buffers.
const maxPeekBody = 1 << 20

// ParameterSource extracts the named parameter value from a request.
type ParameterSource interface {
	Parameter(r *http.Request, name string) (string, bool)
}

// ParameterSourceFunc adapts a function to ParameterSource.
type ParameterSourceFunc func(r *http.Request, name string) (string, bool)

func (f ParameterSourceFunc) Parameter(r *http.Request, name string) (string, bool) {
	return f(r, name)
}

// FormParameter reads urlencoded form values, then query string values.
// The request body is buffered and restored, and r.Form is left untouched
// so the handler can parse or proxy the request itself.
var FormParameter ParameterSource = ParameterSourceFunc(func(r *http.Request, name string) (string, bool) {
	if hasFormBody(r) {
		if body, ok := peekBody(r); ok {
			if post, err := url.ParseQuery(string(body)); err == nil {
				if values := post[name]; len(values) > 0 {
					return values[0], true
				}
			}
		}
	}
	values := r.URL.Query()[name]
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
})

// JSONBodyParameter reads a field from a JSON request body. path uses
// gjson syntax; an empty path means the parameter name itself. Requests
// without a JSON body fall through to form values. Bodies larger than
// 1 MiB are a miss. The body is always restored.
func JSONBodyParameter(path string) ParameterSource {
	return ParameterSourceFunc(func(r *http.Request, name string) (string, bool) {
		if r.Body == nil || r.Body == http.NoBody || !isJSON(r.Header.Get("Content-Type")) {
			return FormParameter.Parameter(r, name)
		}

		body, ok := peekBody(r)
		if !ok || !gjson.ValidBytes(body) {
			return "", false
		}

		p := path
		if p == "" {
			p = name
		}
		result := gjson.GetBytes(body, p)
		if !result.Exists() {
			return "", false
		}
		return result.String(), true
	})
}

type bodyReader struct {
	io.Reader
	io.Closer
}

// peekBody reads up to maxPeekBody bytes of the body and puts them back in
// front of whatever was not read. ok is false when the body is larger or
// could not be read; the body is restored in every case.
func peekBody(r *http.Request) ([]byte, bool) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, true
	}
	buf, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBody+1))
	r.Body = bodyReader{Reader: io.MultiReader(bytes.NewReader(buf), r.Body), Closer: r.Body}
	if err != nil || len(buf) > maxPeekBody {
		return nil, false
	}
	return buf, true
}

func hasFormBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return false
	}
	mediaType := strings.TrimSpace(strings.SplitN(r.Header.Get("Content-Type"), ";", 2)[0])
	return strings.EqualFold(mediaType, "application/x-www-form-urlencoded")
}

func isJSON(contentType string) bool {
	mediaType := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	return strings.EqualFold(mediaType, "application/json") || strings.HasSuffix(strings.ToLower(mediaType), "+json")
}
