package server

import "net/http"

// TestPageHandler serves a minimal browser client for poking the gateway by
// hand: log in, open the socket, and send raw envelopes.
func (g *Gateway) TestPageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(testPageHTML))
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Gateway Test Client</title>
    <style>
        body { font-family: monospace; margin: 2em; }
        #log { border: 1px solid #ccc; height: 320px; overflow-y: scroll; padding: 0.5em; margin: 1em 0; }
        .out { color: #06c; }
        .in { color: #080; }
        .err { color: #c00; }
        input, textarea { width: 100%; box-sizing: border-box; margin-bottom: 0.5em; }
    </style>
</head>
<body>
    <h1>Gateway Test Client</h1>
    <p>Paste a token, connect, then send envelopes like
    <code>{"event":"ping"}</code> or
    <code>{"event":"send_message","data":{"token":"...","sid":"...","content":"hello"}}</code>.</p>
    <input id="token" placeholder="JWT (optional, spliced into data.token)">
    <button onclick="connect()">Connect</button>
    <button onclick="disconnect()">Disconnect</button>
    <div id="log"></div>
    <textarea id="payload" rows="4">{"event":"ping"}</textarea>
    <button onclick="send()">Send</button>
    <script>
        let ws = null;
        const log = (cls, text) => {
            const div = document.createElement('div');
            div.className = cls;
            div.textContent = text;
            const el = document.getElementById('log');
            el.appendChild(div);
            el.scrollTop = el.scrollHeight;
        };
        function connect() {
            const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(proto + location.host + '/ws');
            ws.onopen = () => log('in', 'connected');
            ws.onclose = (e) => log('err', 'closed: ' + e.code);
            ws.onmessage = (e) => log('in', '< ' + e.data);
        }
        function disconnect() { if (ws) ws.close(); }
        function send() {
            if (!ws || ws.readyState !== WebSocket.OPEN) { log('err', 'not connected'); return; }
            let env;
            try { env = JSON.parse(document.getElementById('payload').value); }
            catch (e) { log('err', 'invalid JSON: ' + e.message); return; }
            const token = document.getElementById('token').value.trim();
            if (token) { env.data = env.data || {}; if (!env.data.token) env.data.token = token; }
            const raw = JSON.stringify(env);
            ws.send(raw);
            log('out', '> ' + raw);
        }
    </script>
</body>
</html>
`
