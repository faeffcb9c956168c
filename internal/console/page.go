package console

import "html/template"

type pageData struct {
	AnalysisType string
	AuthEnabled  bool
	User         string
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Codelens</title>
<link href="https://cdn.jsdelivr.net/npm/bootstrap@5.3.3/dist/css/bootstrap.min.css" rel="stylesheet">
<style>
.chat-transcript{max-height:24rem;overflow-y:auto}
.chat-message{margin-bottom:.5rem;white-space:pre-wrap}
.chat-user{color:#0d6efd}
.chat-system{color:#dc3545}
</style>
</head>
<body>
<nav class="navbar navbar-dark bg-dark mb-4"><div class="container">
<span class="navbar-brand">Codelens</span>
{{- if .AuthEnabled}}
{{- if .User}}
<span class="navbar-text">{{.User}} <button id="logout" class="btn btn-sm btn-outline-light ms-2">Log out</button></span>
{{- else}}
<a class="btn btn-sm btn-outline-light" href="/auth/github">Log in with GitHub</a>
{{- end}}
{{- end}}
</div></nav>
<main class="container">
<div class="row g-4">
<div class="col-lg-7">
<form id="analysis-form" class="card card-body mb-3">
<div class="mb-2"><label class="form-label" for="repo_path">Repository path</label>
<input class="form-control" id="repo_path" name="repo_path" required></div>
<div class="mb-2"><label class="form-label" for="analysis_type">Analysis type</label>
<select class="form-select" id="analysis_type" name="analysis_type">
<option value="code"{{if eq .AnalysisType "code"}} selected{{end}}>Code analysis</option>
<option value="changelog"{{if ne .AnalysisType "code"}} selected{{end}}>Changelog</option>
</select></div>
<button class="btn btn-primary" type="submit">Analyze</button>
</form>
<div id="spinner" class="text-center my-3 d-none"><div class="spinner-border" role="status"></div></div>
<div id="results"></div>
<form id="upload-form" class="card card-body my-3">
<label class="form-label" for="files">Analyze files</label>
<input class="form-control mb-2" type="file" id="files" name="files" multiple>
<button class="btn btn-secondary" type="submit">Upload</button>
</form>
<div id="upload-results"></div>
</div>
<div class="col-lg-5">
<div class="card card-body">
<h5>Assistant</h5>
<div id="transcript"></div>
<form id="chat-form" class="input-group mt-2">
<input class="form-control" name="message" autocomplete="off" placeholder="Ask about the analysis">
<button class="btn btn-primary" type="submit">Send</button>
</form>
</div>
</div>
</div>
</main>
<script src="https://cdn.jsdelivr.net/npm/bootstrap@5.3.3/dist/js/bootstrap.bundle.min.js"></script>
<script>
(function () {
  const $ = (id) => document.getElementById(id);

  // 204 means "nothing to show": a blank message or a superseded analysis.
  async function send(url, body, target) {
    const resp = await fetch(url, { method: body ? "POST" : "GET", body: body, credentials: "same-origin" });
    if (resp.status === 204) return false;
    const text = await resp.text();
    target.innerHTML = resp.ok || text.includes("alert") ? text
      : '<div class="alert alert-danger">Error: ' + resp.status + ' ' + resp.statusText + '</div>';
    return true;
  }

  function failed(target, err) {
    target.innerHTML = '';
    const div = document.createElement("div");
    div.className = "alert alert-danger";
    div.textContent = "Error: " + err.message;
    target.appendChild(div);
  }

  $("analysis-form").addEventListener("submit", async (e) => {
    e.preventDefault();
    $("spinner").classList.remove("d-none");
    try {
      await send("/ui/analysis", new FormData(e.target), $("results"));
    } catch (err) {
      failed($("results"), err);
    } finally {
      $("spinner").classList.add("d-none");
    }
  });

  $("upload-form").addEventListener("submit", async (e) => {
    e.preventDefault();
    try {
      await send("/ui/upload", new FormData(e.target), $("upload-results"));
    } catch (err) {
      failed($("upload-results"), err);
    }
  });

  $("chat-form").addEventListener("submit", async (e) => {
    e.preventDefault();
    const form = new FormData(e.target);
    e.target.reset();
    try {
      await send("/ui/chat", form, $("transcript"));
    } catch (err) {
      failed($("transcript"), err);
    }
  });

  const logout = $("logout");
  if (logout) {
    logout.addEventListener("click", async () => {
      await fetch("/auth/logout", { method: "POST", credentials: "same-origin" });
      location.reload();
    });
  }

  function refreshTranscript() {
    send("/ui/transcript", null, $("transcript")).catch(() => {});
  }

  function connect() {
    const proto = location.protocol === "https:" ? "wss:" : "ws:";
    const ws = new WebSocket(proto + "//" + location.host + "/ui/events");
    ws.onmessage = (e) => {
      const ev = JSON.parse(e.data);
      if (ev.type === "message") refreshTranscript();
    };
    ws.onclose = () => setTimeout(connect, 5000);
  }

  refreshTranscript();
  connect();
})();
</script>
</body>
</html>
`))
