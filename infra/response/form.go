package response

import (
	"html/template"
	"net/http"
	"net/url"
	"strings"
)

// OrderedValues is a field set that keeps its key order
type OrderedValues interface {
	Keys() []string
	Get(key string) string
}

type formField struct {
	Name  string
	Value string
}

var autoPostTemplate = template.Must(template.New("autopost").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body onload="document.forms[0].submit()">
<form action="{{.Action}}" method="post">
{{- range .Fields}}
<input type="hidden" name="{{.Name}}" value="{{.Value}}">
{{- end}}
<noscript><button type="submit">Continue</button></noscript>
</form>
</body>
</html>
`))

// AutoPostForm renders a page that posts fields to action as soon as it loads.
// Fields are written in their own order.
func AutoPostForm(w http.ResponseWriter, title, action string, fields OrderedValues) error {
	data := struct {
		Title  string
		Action string
		Fields []formField
	}{Title: title, Action: action}

	for _, k := range fields.Keys() {
		data.Fields = append(data.Fields, formField{Name: k, Value: fields.Get(k)})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	return autoPostTemplate.Execute(w, data)
}

// Redirect sends a 302 to target with params appended to its query
func Redirect(w http.ResponseWriter, r *http.Request, target string, params url.Values) {
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + params.Encode()
	}
	http.Redirect(w, r, target, http.StatusFound)
}
