// Package sharelink encodes the candidate link an employer hands out.
package sharelink

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/odtboun/River/internal/model"
)

const (
	paramID     = "n"
	paramFields = "fields"
)

// Link is a decoded shared link. ID is nil when the link names no usable
// negotiation.
type Link struct {
	ID     *int64
	Fields []model.Field
}

// Encode builds base?n=<id>&fields=<list>, leaving fields out when the
// subset is the default one. The id always comes first.
func Encode(base string, id int64, fields []model.Field) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(base, "?"))
	b.WriteString("?" + paramID + "=")
	b.WriteString(strconv.FormatInt(id, 10))

	fields = model.CanonicalFields(fields)
	if !isDefault(fields) {
		names := make([]string, len(fields))
		for i, f := range fields {
			names[i] = url.QueryEscape(string(f))
		}
		// the comma stays unescaped so the link reads as a list
		b.WriteString("&" + paramFields + "=")
		b.WriteString(strings.Join(names, ","))
	}
	return b.String()
}

// Decode reads a query string. It never fails: anything unusable decodes
// to "no negotiation" and the default field subset.
func Decode(rawQuery string) Link {
	rawQuery = strings.TrimPrefix(rawQuery, "?")
	// ParseQuery keeps every pair it could read alongside the error.
	q, _ := url.ParseQuery(rawQuery)

	link := Link{Fields: decodeFields(q.Get(paramFields))}
	if raw := strings.TrimSpace(q.Get(paramID)); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v > 0 {
			link.ID = &v
		}
	}
	return link
}

// Strip removes the negotiation parameters from a location, keeping any
// other query parameters.
func Strip(location string) string {
	u, err := url.Parse(location)
	if err != nil {
		return location
	}
	q := u.Query()
	q.Del(paramID)
	q.Del(paramFields)
	u.RawQuery = q.Encode()
	return u.String()
}

func decodeFields(raw string) []model.Field {
	if raw == "" {
		return model.DefaultFields()
	}
	var fs []model.Field
	for _, name := range strings.Split(raw, ",") {
		if f, ok := model.ParseField(strings.TrimSpace(name)); ok {
			fs = append(fs, f)
		}
	}
	return model.CanonicalFields(fs)
}

func isDefault(fs []model.Field) bool {
	return len(fs) == 1 && fs[0] == model.FieldBase
}
