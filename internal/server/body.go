package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/valyala/fastjson"

	"github.com/coffersTech/uploadlog/internal/model"
)

const maxCreateBody = 1 << 20

// createFields is what a create body yielded. seen counts recognised keys
// so an empty object can be told apart from a parse that found nothing.
type createFields struct {
	rec  model.NewRecord
	seen int
}

// decodeCreate extracts name/timestamp/meta from a create request body.
// The declared content type is tried first. When that yields nothing (no
// or wrong content type, e.g. a navigator.sendBeacon submission) the raw
// payload is tried as JSON and then as a key=value form.
func (s *RecordServer) decodeCreate(r *http.Request, raw []byte) model.NewRecord {
	var f createFields

	mediaType, params, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		f = s.fieldsFromJSON(raw)
	case mediaType == "application/x-www-form-urlencoded":
		f = fieldsFromQuery(string(raw))
	case mediaType == "multipart/form-data":
		f = fieldsFromMultipart(r, raw, params["boundary"])
	}
	if f.seen > 0 {
		return f.rec
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return model.NewRecord{}
	}
	if f = s.fieldsFromJSON(trimmed); f.seen > 0 {
		return f.rec
	}
	return fieldsFromQuery(string(trimmed)).rec
}

func (s *RecordServer) fieldsFromJSON(raw []byte) createFields {
	p := s.parser.Get()
	defer s.parser.Put(p)

	v, err := p.ParseBytes(raw)
	if err != nil || v.Type() != fastjson.TypeObject {
		return createFields{}
	}

	var f createFields
	if name := v.Get("name"); name != nil {
		f.seen++
		switch name.Type() {
		case fastjson.TypeString:
			f.rec.Name = string(name.GetStringBytes())
		case fastjson.TypeNumber:
			f.rec.Name = name.String()
		}
	}
	if ts := v.Get("timestamp"); ts != nil {
		f.seen++
		if ts.Type() == fastjson.TypeString {
			f.rec.Timestamp = string(ts.GetStringBytes())
		}
	}
	if meta := v.Get("meta"); meta != nil {
		f.seen++
		f.rec.Meta = meta.MarshalTo(nil)
	}
	return f
}

func fieldsFromQuery(raw string) createFields {
	// ParseQuery still returns every pair it could decode alongside the
	// first error.
	vals, _ := url.ParseQuery(raw)
	return fieldsFromValues(vals)
}

func fieldsFromMultipart(r *http.Request, raw []byte, boundary string) createFields {
	if boundary == "" {
		return createFields{}
	}
	clone := r.Clone(r.Context())
	clone.Body = io.NopCloser(bytes.NewReader(raw))
	if err := clone.ParseMultipartForm(maxCreateBody); err != nil {
		return createFields{}
	}
	return fieldsFromValues(url.Values(clone.MultipartForm.Value))
}

func fieldsFromValues(vals url.Values) createFields {
	var f createFields
	if vals.Has("name") {
		f.seen++
		f.rec.Name = vals.Get("name")
	}
	if vals.Has("timestamp") {
		f.seen++
		f.rec.Timestamp = vals.Get("timestamp")
	}
	if vals.Has("meta") {
		f.seen++
		f.rec.Meta = formMeta(vals.Get("meta"))
	}
	return f
}

// formMeta keeps a form meta value that is already JSON as-is and encodes
// anything else as a JSON string.
func formMeta(v string) json.RawMessage {
	if v == "" {
		return nil
	}
	if fastjson.Validate(v) == nil {
		return json.RawMessage(v)
	}
	b, _ := json.Marshal(v)
	return b
}
