package console

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/joynix/joynix-admin/internal/apiclient"
	"github.com/joynix/joynix-admin/internal/assets"
	"github.com/joynix/joynix-admin/internal/authz"
	"github.com/joynix/joynix-admin/internal/login"
	"github.com/joynix/joynix-admin/internal/models"
	"github.com/joynix/joynix-admin/internal/navigation"
	"github.com/joynix/joynix-admin/internal/resources"
	"github.com/rs/zerolog/log"
)

// page is the data every template receives.
type page struct {
	Title    string
	Session  models.Session
	UserName string
	Role     string
	Nav      []navigation.Entry
	Script   string
	Next     string
	Error    string
	Notice   string
	Data     any
}

type dashboardData struct {
	User    string
	Role    string
	Granted []string
	Stale   bool
}

type resourceData struct {
	Resource resources.Resource
	Page     *resources.Page
	Search   string
	Prev     string
	Next     string
}

func (c *Console) newPage(r *http.Request, title string) page {
	session := c.tokens.Load(r.Context())
	p := page{
		Title:    title,
		Session:  session,
		UserName: session.User.Name(),
	}
	if session.IsAuthenticated() {
		snap := c.resolver.Snapshot()
		p.Role = snap.Tree.Role
		p.Nav = navigation.Filter(c.nav, snap)
	}
	if src, err := c.assets.ScriptURL("console.js"); err == nil {
		p.Script = src
	}
	return p
}

func (c *Console) render(w http.ResponseWriter, r *http.Request, status int, name string, p page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := assets.Render(w, c.tmpl, name, p); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Str("template", name).Msg("Failed to render template")
	}
}

// fail turns an error into a response. Lost sessions go back to sign in.
func (c *Console) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, apiclient.ErrUnauthenticated) {
		log.Ctx(r.Context()).Info().Err(err).Msg("session lost, redirecting to sign in")
		http.Redirect(w, r, login.SignInURL(signInPath, r.URL.RequestURI()), http.StatusFound)
		return
	}

	status := http.StatusBadGateway
	message := apiclient.DefaultErrorMessage

	var apiErr *apiclient.APIError
	switch {
	case errors.Is(err, resources.ErrUnknownResource):
		status, message = http.StatusNotFound, "Not found"
	case errors.As(err, &apiErr):
		message = apiErr.Message
		if apiErr.StatusCode < http.StatusInternalServerError {
			status = apiErr.StatusCode
		}
	}

	log.Ctx(r.Context()).Warn().Err(err).Int("status", status).Msg("request failed")

	p := c.newPage(r, http.StatusText(status))
	p.Error = message
	c.render(w, r, status, "error", p)
}

func (c *Console) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"authenticated":       c.tokens.Load(r.Context()).IsAuthenticated(),
		"permissions_loading": c.resolver.IsLoading(),
	})
}

func (c *Console) signInPage(w http.ResponseWriter, r *http.Request) {
	next := login.SafeNext(r.URL.Query().Get("next"), c.cfg.Landing)
	if c.tokens.Load(r.Context()).IsAuthenticated() {
		http.Redirect(w, r, next, http.StatusFound)
		return
	}

	p := c.newPage(r, "Sign in")
	p.Next = next
	if r.URL.Query().Get("error_code") == "expired" {
		p.Notice = "Your code expired, request a new one."
	}
	c.render(w, r, http.StatusOK, "signin", p)
}

func (c *Console) startSignIn(w http.ResponseWriter, r *http.Request) {
	next := login.SafeNext(r.PostFormValue("next"), c.cfg.Landing)

	challenge, err := c.otp.Start(r.Context(), r.PostFormValue("identifier"))
	if err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Msg("failed to start sign in")

		p := c.newPage(r, "Sign in")
		p.Next = next
		p.Error = userMessage(err)
		c.render(w, r, statusFor(err), "signin", p)
		return
	}

	login.SaveChallenge(w, challenge, c.cfg.SecureCookies)

	q := url.Values{}
	q.Set("next", next)
	if challenge.ContactMasked != "" {
		q.Set("to", challenge.ContactMasked)
	}
	http.Redirect(w, r, verifyPath+"?"+q.Encode(), http.StatusSeeOther)
}

func (c *Console) verifyPage(w http.ResponseWriter, r *http.Request) {
	if _, err := login.ChallengeFromRequest(r); err != nil {
		http.Redirect(w, r, signInPath+"?error_code=expired", http.StatusFound)
		return
	}

	p := c.newPage(r, "Verify")
	p.Next = login.SafeNext(r.URL.Query().Get("next"), c.cfg.Landing)
	if to := r.URL.Query().Get("to"); to != "" {
		p.Data = to
	}
	c.render(w, r, http.StatusOK, "verify", p)
}

func (c *Console) verifySignIn(w http.ResponseWriter, r *http.Request) {
	next := login.SafeNext(r.PostFormValue("next"), c.cfg.Landing)

	sessionID, err := login.ChallengeFromRequest(r)
	if err != nil {
		http.Redirect(w, r, signInPath+"?error_code=expired", http.StatusSeeOther)
		return
	}

	if _, err := c.otp.Verify(r.Context(), sessionID, r.PostFormValue("otp")); err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Msg("failed to verify code")

		p := c.newPage(r, "Verify")
		p.Next = next
		p.Error = userMessage(err)
		c.render(w, r, statusFor(err), "verify", p)
		return
	}

	login.ClearChallenge(w, c.cfg.SecureCookies)
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (c *Console) signOut(w http.ResponseWriter, r *http.Request) {
	if err := c.otp.SignOut(r.Context()); err != nil {
		c.fail(w, r, err)
		return
	}
	http.Redirect(w, r, signInPath, http.StatusSeeOther)
}

func (c *Console) dashboard(w http.ResponseWriter, r *http.Request) {
	p := c.newPage(r, "Dashboard")
	snap := c.resolver.Snapshot()

	p.Data = dashboardData{
		User:    p.UserName,
		Role:    snap.Tree.Role,
		Granted: authz.Granted(snap.Tree.Resources),
		Stale:   snap.Err != nil,
	}
	if snap.Loading {
		p.Notice = "Loading permissions…"
	}
	c.render(w, r, http.StatusOK, "dashboard", p)
}

// knownResource answers 404 for names that aren't registered, before the gate
// gets to look at the permission.
func (c *Console) knownResource(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := c.resources.Registry().Lookup(r.PathValue("resource")); err != nil {
			c.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c *Console) permissionOf(r *http.Request) string {
	res, err := c.resources.Registry().Lookup(r.PathValue("resource"))
	if err != nil {
		return ""
	}
	return res.Permission
}

func (c *Console) listResource(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("resource")
	res, err := c.resources.Registry().Lookup(name)
	if err != nil {
		c.fail(w, r, err)
		return
	}

	q := r.URL.Query()
	opts := resources.ListOptions{
		Page:   atoi(q.Get("page")),
		Limit:  atoi(q.Get("limit")),
		Search: q.Get("search"),
	}

	list, err := c.resources.List(r.Context(), name, opts)
	if err != nil {
		c.fail(w, r, err)
		return
	}

	data := resourceData{Resource: res, Page: list, Search: opts.Search}
	if list.Metadata.Page > 1 {
		data.Prev = pageURL(name, opts, list.Metadata.Page-1)
	}
	if list.HasNext() {
		data.Next = pageURL(name, opts, list.Metadata.Page+1)
	}

	p := c.newPage(r, res.Title)
	p.Data = data
	if q.Get("deleted") != "" {
		p.Notice = "Deleted " + q.Get("deleted") + "."
	}
	c.render(w, r, http.StatusOK, "resource", p)
}

func (c *Console) deleteResource(w http.ResponseWriter, r *http.Request) {
	name, id := r.PathValue("resource"), r.PathValue("id")

	if err := c.resources.Delete(r.Context(), name, id); err != nil {
		c.fail(w, r, err)
		return
	}

	log.Ctx(r.Context()).Info().Str("resource", name).Str("id", id).Msg("record deleted")
	http.Redirect(w, r, "/r/"+name+"?deleted="+url.QueryEscape(id), http.StatusSeeOther)
}

// requireAPIAuth answers 401 instead of redirecting, for script callers.
func (c *Console) requireAPIAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.tokens.Load(r.Context()).IsAuthenticated() {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "not signed in"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c *Console) navigationJSON(w http.ResponseWriter, r *http.Request) {
	entries := navigation.Filter(c.nav, c.resolver.Snapshot())

	data, err := json.Marshal(entries)
	if err != nil {
		c.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "private, no-cache")
	assets.ServeWithETag(w, r, assets.ETag(data), data)
}

type permissionsResponse struct {
	Role    string   `json:"role"`
	Granted []string `json:"granted"`
	Loading bool     `json:"loading"`
	Error   string   `json:"error,omitempty"`
}

func (c *Console) permissionsJSON(w http.ResponseWriter, r *http.Request) {
	snap := c.resolver.Snapshot()

	resp := permissionsResponse{
		Role:    snap.Tree.Role,
		Granted: authz.Granted(snap.Tree.Resources),
		Loading: snap.Loading,
	}
	if resp.Granted == nil {
		resp.Granted = []string{}
	}
	if snap.Err != nil {
		resp.Error = snap.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (c *Console) refreshPermissions(w http.ResponseWriter, r *http.Request) {
	err := c.resolver.Refetch(r.Context())
	if errors.Is(err, apiclient.ErrUnauthenticated) {
		c.fail(w, r, err)
		return
	}

	// form posts from the dashboard go back to it, the stale flag shows failures
	if r.Header.Get("Accept") != "application/json" {
		http.Redirect(w, r, c.cfg.Landing, http.StatusSeeOther)
		return
	}
	c.permissionsJSON(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func userMessage(err error) string {
	var apiErr *apiclient.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Message
	case errors.Is(err, login.ErrMissingIdentifier),
		errors.Is(err, login.ErrInvalidCode),
		errors.Is(err, login.ErrNoChallenge):
		return err.Error()
	default:
		return "Sign in is unavailable right now, try again shortly."
	}
}

func statusFor(err error) int {
	var apiErr *apiclient.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError:
		return apiErr.StatusCode
	case errors.Is(err, login.ErrMissingIdentifier), errors.Is(err, login.ErrInvalidCode):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func pageURL(name string, opts resources.ListOptions, page int) string {
	opts.Page = page
	return "/r/" + name + "?" + opts.Query().Encode()
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
