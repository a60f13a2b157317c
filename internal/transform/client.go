package transform

import (
	"bytes"
	"text/template"
)

// ClientConfig is the runtime client configuration rendered into the script.
type ClientConfig struct {
	LiveReload bool
	SocketPath string
	// Reconnect is the delay between reconnection attempts in milliseconds.
	Reconnect int
}

var clientTemplate = template.Must(template.New("client").Parse(`// jitserve runtime client
const sheets = new Map();

export function style(url) {
  let link = sheets.get(url);
  if (link) return link;
  link = document.querySelector('link[rel="stylesheet"][href="' + url + '"]');
  if (!link) {
    link = document.createElement("link");
    link.rel = "stylesheet";
    link.href = url;
    document.head.appendChild(link);
  }
  sheets.set(url, link);
  return link;
}

function refresh(url) {
  const link = sheets.get(url) || document.querySelector('link[rel="stylesheet"][href^="' + url + '"]');
  if (!link) return false;
  const next = link.cloneNode();
  next.href = url + "?t=" + Date.now();
  next.onload = () => link.remove();
  link.after(next);
  sheets.set(url, next);
  return true;
}

function isPlainStylesheet(url) {
  return /\.(css|scss|sass|less)$/.test(url) && !/\.module\./.test(url);
}

export function apply(changes) {
  const remaining = changes.filter((url) => !(isPlainStylesheet(url) && refresh(url)));
  if (remaining.length > 0) location.reload();
}
{{if .LiveReload}}
let connected = false;

function connect() {
  const proto = location.protocol === "https:" ? "wss:" : "ws:";
  const socket = new WebSocket(proto + "//" + location.host + "{{js .SocketPath}}");
  socket.addEventListener("open", () => {
    if (connected) location.reload();
    connected = true;
  });
  socket.addEventListener("message", (event) => {
    const message = JSON.parse(event.data);
    if (message.type === "update") apply(message.changes || []);
  });
  socket.addEventListener("close", () => setTimeout(connect, {{.Reconnect}}));
}

connect();
{{end}}`))

// RenderClient renders the runtime client for config.
func RenderClient(config ClientConfig) ([]byte, error) {
	if config.Reconnect <= 0 {
		config.Reconnect = 1000
	}
	var buf bytes.Buffer
	if err := clientTemplate.Execute(&buf, config); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
