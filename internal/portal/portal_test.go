package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"gradewatch/internal/extract"
	"gradewatch/internal/telemetry"

	"github.com/stretchr/testify/require"
)

const loginPage = `<html><body>
<form id="fm1" action="/cas/login?service=%2F" method="post">
	<input id="username" name="username" type="text" value="">
	<input id="password" name="password" type="password" value="">
	<input type="hidden" name="lt" value="LT-1">
	<input type="hidden" name="execution" value="e1s1">
	<input type="hidden" name="_eventId" value="submit">
	<input type="submit" name="submit" value="SE CONNECTER">
</form>
</body></html>`

const homePage = `<html><body>
<table><tr><td>Bienvenue</td></tr></table>
<form action="notes" method="post">
	<input type="hidden" name="token" value="abc">
	<input type="checkbox" name="ignored" value="1">
	<input type="submit" name="consulter" value="Consulter vos notes du 1er semestre">
	<input type="submit" name="consulter" value="Consulter vos notes du 2nd semestre">
</form>
</body></html>`

const gradesPage = `<html><body>
<table><tr><td>
	<table>
		<tr><td>UE-GEC-01</td></tr>
		<tr><td>STM-GE-01</td><td>STM-GE-01-Electronique - (3)</td><td>14,5</td></tr>
		<tr><td>STM-GE-02</td><td>STM-GE-02-Automatique - (2)</td><td>-</td></tr>
		<tr><td>Moyenne</td><td>14,5</td></tr>
	</table>
</td></tr></table>
</body></html>`

type fakePortal struct {
	t      *testing.T
	home   string
	logins atomic.Int32
}

func (f *fakePortal) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("session")
		if err != nil || cookie.Value != "ok" {
			http.Redirect(w, r, "/cas/login?service=%2F", http.StatusFound)
			return
		}
		fmt.Fprint(w, f.home)
	})
	mux.HandleFunc("/cas/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			require.NoError(f.t, r.ParseForm())
			require.Equal(f.t, "LT-1", r.PostForm.Get("lt"))
			require.Equal(f.t, "e1s1", r.PostForm.Get("execution"))
			require.Equal(f.t, "submit", r.PostForm.Get("_eventId"))
			require.Empty(f.t, r.PostForm.Get("submit"))

			if r.PostForm.Get("username") == "jdoe" && r.PostForm.Get("password") == "hunter2" {
				f.logins.Add(1)
				http.SetCookie(w, &http.Cookie{Name: "session", Value: "ok", Path: "/"})
				http.Redirect(w, r, "/", http.StatusFound)
				return
			}
		}
		io.WriteString(w, loginPage)
	})
	mux.HandleFunc("/notes", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(f.t, http.MethodPost, r.Method)
		require.NoError(f.t, r.ParseForm())
		require.Equal(f.t, "abc", r.PostForm.Get("token"))
		require.Equal(f.t, "Consulter vos notes du 1er semestre", r.PostForm.Get("consulter"))
		require.Empty(f.t, r.PostForm.Get("ignored"))
		fmt.Fprint(w, gradesPage)
	})
	return mux
}

func newTestClient(t *testing.T, server *httptest.Server, password string) Client {
	client, err := NewClient(Options{
		BaseURL:  server.URL + "/",
		Username: "jdoe",
		Password: password,
	}, telemetry.NewRecorder())
	require.NoError(t, err)
	return client
}

func TestFetch(t *testing.T) {
	portal := &fakePortal{t: t, home: homePage}
	server := httptest.NewServer(portal.handler())
	defer server.Close()

	client := newTestClient(t, server, "hunter2")
	doc, err := client.Fetch(context.Background())
	require.NoError(t, err)

	result := extract.Extract(doc)
	require.Equal(t, extract.StrategyNested, result.Strategy)

	unit, ok := result.Snapshot.Unit("UE-GEC-01")
	require.True(t, ok)
	require.Equal(t, "14,5", unit.Average)

	subject, ok := unit.Subject("Electronique")
	require.True(t, ok)
	require.Equal(t, "14,5", subject.Grade)
	require.Equal(t, "3", subject.Coefficient)

	_, err = client.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(1), portal.logins.Load(), "the session cookie must be reused")
}

func TestFetchLoginFailed(t *testing.T) {
	server := httptest.NewServer((&fakePortal{t: t, home: homePage}).handler())
	defer server.Close()

	_, err := newTestClient(t, server, "wrong").Fetch(context.Background())
	require.ErrorIs(t, err, ErrLoginFailed)
}

func TestFetchWithoutCredentials(t *testing.T) {
	server := httptest.NewServer((&fakePortal{t: t, home: homePage}).handler())
	defer server.Close()

	client, err := NewClient(Options{BaseURL: server.URL}, telemetry.NewRecorder())
	require.NoError(t, err)

	_, err = client.Fetch(context.Background())
	require.ErrorIs(t, err, ErrMissingUsername)
}

func TestFetchGradesButtonMissing(t *testing.T) {
	server := httptest.NewServer((&fakePortal{t: t, home: `<html><body><p>maintenance</p></body></html>`}).handler())
	defer server.Close()

	_, err := newTestClient(t, server, "hunter2").Fetch(context.Background())
	require.ErrorIs(t, err, ErrGradesNotFound)
}

func TestFetchCancelled(t *testing.T) {
	server := httptest.NewServer((&fakePortal{t: t, home: homePage}).handler())
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t, server, "hunter2").Fetch(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
