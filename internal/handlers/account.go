package handlers

import (
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"

	"sensor-monitor/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login обрабатывает POST /api/login. Форма со страницы входа получает
// редирект, JSON-клиент получает сессию в теле.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	form := strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")

	var req loginRequest
	if form {
		r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "Bad request")
			return
		}
		req.Email, req.Password = r.PostFormValue("email"), r.PostFormValue("password")
	} else if err := decode(r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}

	session, token, err := h.Auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		if form {
			http.Redirect(w, r, auth.LoginPath+"?error="+url.QueryEscape(auth.UserMessage(err)), http.StatusSeeOther)
			return
		}
		writeError(w, http.StatusUnauthorized, auth.UserMessage(err))
		return
	}

	h.Auth.SetCookie(w, token, session)
	if form {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Logout обрабатывает POST /api/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.SessionFrom(r.Context())
	h.Auth.SignOut(r.Context(), session)
	h.Auth.ClearCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>%s</title></head>
<body>
%s
</body>
</html>
`

// Dashboard обрабатывает GET /; доступна только с сессией
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	var email string
	if s, ok := auth.SessionFrom(r.Context()); ok {
		email = s.Email
	}
	body := fmt.Sprintf(`<h1>Sensor Monitor</h1>
<p>Signed in as %s</p>
<form method="post" action="/api/logout"><button type="submit">Log out</button></form>
<script>
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onmessage = (e) => console.log(JSON.parse(e.data));
</script>`, html.EscapeString(email))
	writePage(w, "Sensor Monitor", body)
}

// LoginForm обрабатывает GET /login
func (h *Handler) LoginForm(w http.ResponseWriter, r *http.Request) {
	var notice string
	if msg := r.URL.Query().Get("error"); msg != "" {
		notice = fmt.Sprintf("<p role=\"alert\">%s</p>\n", html.EscapeString(msg))
	}
	body := notice + `<h1>Log in</h1>
<form method="post" action="/api/login">
  <input type="email" name="email" placeholder="Email" required>
  <input type="password" name="password" placeholder="Password" required>
  <button type="submit">Log in</button>
</form>`
	writePage(w, "Log in", body)
}

func writePage(w http.ResponseWriter, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, pageTemplate, html.EscapeString(title), body)
}
