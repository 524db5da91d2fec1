package server

import (
	"bytes"
	"html/template"

	"getudid/internal/identity"
)

// Record fields are escaped with HTMLEscapeString (markup characters only) and
// passed as template.HTML, so text such as the "+" of a zone offset reaches the
// page byte for byte instead of as a numeric character reference.
type pageData struct {
	Title       string
	HasRecord   bool
	Lines       []template.HTML
	ExtractedAt template.HTML
}

func plainText(s string) template.HTML {
	return template.HTML(template.HTMLEscapeString(s))
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <meta name="format-detection" content="telephone=no">
    <title>{{.Title}}</title>
    <style>
        body {
            margin: 0;
            font-family: -apple-system, BlinkMacSystemFont, sans-serif;
            background: #f2f2f7;
            display: flex;
            justify-content: center;
            align-items: center;
            height: 100vh;
        }
        .container {
            text-align: center;
        }
        p {
            font-size: 18px;
            color: #555;
        }
        .txt-info {
            font-size: 14px;
            color: #000;
        }
    </style>
</head>
<body>
    <div class="container">
{{- if .HasRecord}}
        <h2>Get Info Device Success</h2>
        <p>{{range $i, $line := .Lines}}{{if $i}}<br>{{end}}{{$line}}{{end}}</p>
        <p class="txt-info">Extracted at {{.ExtractedAt}}</p>
{{- else}}
        <p>Invalid!</p>
{{- end}}
    </div>
</body>
</html>
`))

// renderPage renders the shared status page. A nil record renders the invalid variant.
func renderPage(rec *identity.Record) []byte {
	data := pageData{Title: "Invalid"}
	if rec != nil {
		data = pageData{
			Title:       "Success",
			HasRecord:   true,
			ExtractedAt: plainText(rec.Timestamp()),
		}
		for _, line := range rec.Lines() {
			data.Lines = append(data.Lines, plainText(line))
		}
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return []byte("<!DOCTYPE html><title>" + data.Title + "</title><p>" + data.Title + "</p>")
	}
	return buf.Bytes()
}
