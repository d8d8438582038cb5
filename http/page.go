package http

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"

	"farecast/ml"
	"farecast/pipeline"
	"farecast/prediction"

	"go.uber.org/zap"
)

const pageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 40rem; margin: 2rem auto; }
label { display: block; margin-top: .75rem; }
input { width: 100%; padding: .3rem; }
.result { margin-top: 1.5rem; font-size: 1.4rem; }
.error { margin-top: 1.5rem; color: #b00020; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<form method="post" action="/predict">
{{range .Fields}}<label for="{{.Name}}">{{.Name}}</label>
<input id="{{.Name}}" name="{{.Name}}" type="{{.InputType}}"{{if .Step}} step="{{.Step}}"{{end}} value="{{.Value}}"{{if .Required}} required{{end}}>
{{end}}<button type="submit" style="margin-top:1rem">Predict</button>
</form>
<p>Batch predictions: <code>POST /api/predict</code> with a CSV or JSON file in the <code>file</code> field.</p>
{{if .HasResult}}<div class="result">{{.OutputKey}}: {{.Result}}</div>{{end}}
{{if .Error}}<div class="error">{{.Error}}</div>{{end}}
</body>
</html>
`

type pageField struct {
	Name      string
	InputType string
	Step      string
	Value     string
	Required  bool
}

type pageData struct {
	Title     string
	OutputKey string
	Fields    []pageField
	HasResult bool
	Result    string
	Error     string
}

type page struct {
	tmpl *template.Template
}

func newPage() *page {
	return &page{tmpl: template.Must(template.New("index").Parse(pageHTML))}
}

func (p *page) render(w http.ResponseWriter, status int, data pageData) error {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

func (h *Handlers) buildPage(values map[string][]string) pageData {
	profile := h.predictor.Profile()
	data := pageData{Title: profile.Title, OutputKey: profile.OutputKey}

	schema, err := h.predictor.Schema()
	if err != nil && len(profile.Fields) == 0 {
		_, data.Error = statusFor(err)
		return data
	}
	for _, f := range profile.FormFields(schema) {
		pf := pageField{Name: f.Name, Required: f.Required}
		switch f.Type {
		case ml.FieldTimestamp:
			pf.InputType = "datetime-local"
		case ml.FieldInt:
			pf.InputType, pf.Step = "number", "1"
		case ml.FieldFloat:
			pf.InputType, pf.Step = "number", "any"
		default:
			pf.InputType = "text"
		}
		if v := values[f.Name]; len(v) > 0 {
			pf.Value = v[0]
		}
		data.Fields = append(data.Fields, pf)
	}
	return data
}

func (h *Handlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	if err := h.page.render(w, http.StatusOK, h.buildPage(nil)); err != nil {
		h.logger.Error("failed to render page", zap.Error(err))
	}
}

// handlePredictPage scores one form submission and re-renders the page
// with the rounded result or the error.
func (h *Handlers) handlePredictPage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	form, err := h.parseForm(r)
	if err != nil {
		status, msg := statusFor(err)
		data := h.buildPage(nil)
		data.Error = msg
		_ = h.page.render(w, status, data)
		return
	}

	data := h.buildPage(form)
	status := http.StatusOK
	results, err := h.predictor.Predict(r.Context(), prediction.Request{
		ID:     GetRequestID(r.Context()),
		Source: pipeline.SourceForm,
		Form:   form,
	})
	switch {
	case err != nil:
		status, data.Error = statusFor(err)
	case len(results) == 0:
		status, data.Error = http.StatusInternalServerError, "prediction failed"
	default:
		data.HasResult = true
		data.Result = fmt.Sprintf("%.2f", results[0].Value)
	}

	if err := h.page.render(w, status, data); err != nil {
		h.logger.Error("failed to render page", zap.Error(err))
	}
}
