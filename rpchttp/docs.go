package rpchttp

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/mnehpets/rpcserve/jsonrpc"
)

// summaryMethod is one entry on the method summary page.
type summaryMethod struct {
	Name          string
	Help          string
	Params        []jsonrpc.Param
	Return        jsonrpc.Type
	LoginRequired bool
	Permission    string
	Stub          string
}

type summaryData struct {
	ServiceName string
	ServiceURL  string
	Methods     []summaryMethod
	TestForm    bool
}

// serveSummary renders the method summary page: every registered
// method with its signature, help and a copyable request stub, plus a
// form for posting test calls back to the endpoint.
//
// Rendering is buffered so template execution errors surface before
// the response is committed.
func (h *Handler) serveSummary(w http.ResponseWriter, r *http.Request) error {
	if h.noDocs {
		Commit(r.Context(), w)
		http.Error(w, "API docs disabled", http.StatusNotFound)
		return nil
	}

	serviceURL := h.dispatcher.ServiceURL()
	if serviceURL == "" {
		serviceURL = r.URL.Path
	}

	data := summaryData{
		ServiceName: h.serviceName,
		ServiceURL:  serviceURL,
		TestForm:    !h.noTestForm,
	}
	for _, m := range h.dispatcher.Registry().Methods() {
		data.Methods = append(data.Methods, summaryMethod{
			Name:          m.Name(),
			Help:          m.Help(),
			Params:        m.Params(),
			Return:        m.ReturnType(),
			LoginRequired: m.LoginRequired(),
			Permission:    m.Permission(),
			Stub:          m.Stub(),
		})
	}

	var buf bytes.Buffer
	if err := summaryTemplate.Execute(&buf, data); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	Commit(r.Context(), w)
	w.WriteHeader(http.StatusOK)
	_, err := buf.WriteTo(w)
	return err
}

var summaryTemplate = template.Must(template.New("summary").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.ServiceName}} method summary</title>
<style>
body { font-family: sans-serif; margin: 2em auto; max-width: 60em; padding: 0 1em; }
h1 { border-bottom: 1px solid #ccc; padding-bottom: 0.3em; }
.signature { font-family: monospace; font-weight: bold; }
.badge { background: #eee; border-radius: 3px; padding: 0 0.4em; margin-left: 0.5em; font-size: 0.8em; font-weight: normal; }
pre { background: #f6f6f6; padding: 0.5em; overflow-x: auto; }
textarea { width: 100%; height: 8em; font-family: monospace; }
</style>
</head>
<body>
<h1>{{.ServiceName}} method summary</h1>
<p>POST JSON-RPC requests to <code>{{.ServiceURL}}</code>.</p>
{{range .Methods}}
<div class="method">
<h2>{{.Name}}</h2>
<p class="signature">{{.Name}}({{range $i, $p := .Params}}{{if $i}}, {{end}}{{$p.Name}}: {{$p.RPCType}}{{end}}) -&gt; {{.Return}}
{{- if .LoginRequired}}<span class="badge">login required</span>{{end}}
{{- if .Permission}}<span class="badge">permission: {{.Permission}}</span>{{end}}</p>
{{if .Help}}<p>{{.Help}}</p>{{end}}
<pre>{{.Stub}}</pre>
</div>
{{end}}
{{if .TestForm}}
<h2>Test</h2>
<form onsubmit="rpcTest(); return false;">
<textarea id="rpctest-body">{"id": "rpcserve", "method": "system.listMethods", "params": []}</textarea>
<p><button type="submit">Send</button></p>
</form>
<pre id="rpctest-result"></pre>
<script>
function rpcTest() {
	var body = document.getElementById("rpctest-body").value;
	fetch({{.ServiceURL}}, {
		method: "POST",
		headers: {"Content-Type": "application/json"},
		body: body
	}).then(function (resp) {
		return resp.text();
	}).then(function (text) {
		document.getElementById("rpctest-result").textContent = text;
	}).catch(function (err) {
		document.getElementById("rpctest-result").textContent = String(err);
	});
}
</script>
{{end}}
</body>
</html>
`))
