package deploy

import (
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/clojars/deploy-ingest/internal/audit"
	"github.com/clojars/deploy-ingest/internal/auth"
	"github.com/clojars/deploy-ingest/internal/deployerrors"
	"github.com/clojars/deploy-ingest/internal/errorreporter"
	"github.com/clojars/deploy-ingest/internal/session"
)

// Authenticator resolves the caller's identity from an inbound
// request (spec §6 "Client identity is derived from either HTTP Basic
// ... or a deploy token"). It is an external collaborator: this core
// only consumes the resolved auth.Account and whether the request
// carried HTTP Basic credentials.
type Authenticator interface {
	Authenticate(r *http.Request) (account auth.Account, isBasicAuth bool, err error)
}

// Router builds the PUT surface of spec §4.7 on top of gorilla/mux,
// grounded on the teacher's internal/handlers/maven_proxy_handler.go
// handler-struct style (no wrapped *http.Client here, since the central
// checker owns its own). Unlike the teacher's mux.Vars-driven dispatch,
// handlePut splits the request path by hand.
type Router struct {
	Upload   *UploadHandler
	Sessions *SessionManager
	Auth     Authenticator
	Reporter errorreporter.Reporter
	Audit    *audit.Logger
	Log      *logrus.Logger
}

// snapshotArtifactRe matches a path segment that is itself a snapshot
// version string, the case spec §4.7 calls out: "`:artifact` matches a
// snapshot version string" means the `maven-metadata.xml` pattern is
// actually a longer group path ending in a snapshot version directory.
var snapshotArtifactRe = regexp.MustCompile(`^.+-SNAPSHOT$`)

// NewRouter builds the mux.Router implementing spec §4.7: the three
// PUT patterns, the catch-all 400, and the reject-dot-dot /
// require-token / GET-fallthrough / exception-wrapper middlewares.
func (rt *Router) NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(rt.rejectDotDot)
	r.Use(rt.exceptionWrapper)
	r.Use(rt.requireToken)

	r.PathPrefix("/").Methods(http.MethodPut).HandlerFunc(rt.handlePut)
	r.PathPrefix("/").Methods(http.MethodGet).HandlerFunc(rt.handleGetFallthrough)
	r.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.NotFound(w, req)
	})
	return r
}

// rejectDotDot implements spec §4.7's "Reject `..`" middleware.
func (rt *Router) rejectDotDot(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "..") {
			http.Error(w, "path must not contain ..", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireToken implements spec §4.7's "Require token" middleware:
// HTTP Basic credentials on the deploy path are audit-logged and
// rejected; no credentials, or a deploy token, proceed.
func (rt *Router) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			next.ServeHTTP(w, r)
			return
		}
		account, isBasicAuth, err := rt.Auth.Authenticate(r)
		if err != nil {
			writeDeployError(w, deployerrors.Forbidden("authenticate: %v", err))
			return
		}
		if isBasicAuth {
			user, _, _ := r.BasicAuth()
			rt.Audit.PasswordCredentialRejected(user, r.URL.Path)
			de := deployerrors.New(deployerrors.KindDeployPasswordRejection,
				"a deploy token is required; password credentials are not accepted")
			writeDeployError(w, de)
			return
		}
		r = r.WithContext(withAccount(r.Context(), account))
		next.ServeHTTP(w, r)
	})
}

// exceptionWrapper implements spec §4.7's exception-wrapper
// middleware: assigns a trace id, and recovers panics, reporting them
// to the error reporter and answering with a deploy-forbidden
// response. Errors returned by the handlers are reported by the
// handlers themselves (reportIfNotValidation) under this trace id.
func (rt *Router) exceptionWrapper(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := rt.Reporter.NewTraceID()
		defer func() {
			if rec := recover(); rec != nil {
				de := deployerrors.Forbidden("panic: %v", rec)
				rt.Reporter.Report(traceID, r.Method, r.URL.Path, de)
				writeDeployError(w, de)
			}
		}()
		r = r.WithContext(withTraceID(r.Context(), traceID))
		next.ServeHTTP(w, r)
	})
}

// handleGetFallthrough is the stub for spec §4.7's "GET file
// fallthrough": serving downloads is an explicit Non-goal (spec §1),
// so there is no local repo directory to serve from here; the request
// passes through as a 404.
func (rt *Router) handleGetFallthrough(w http.ResponseWriter, r *http.Request) {
	http.NotFound(w, r)
}

// handlePut dispatches the three PUT patterns of spec §4.7. Path
// matching is done by hand rather than via mux path variables because
// the group segment of pattern 1 may itself contain slashes.
func (rt *Router) handlePut(w http.ResponseWriter, r *http.Request) {
	segments := splitPath(r.URL.Path)
	if len(segments) < 3 {
		http.Error(w, "unrecognized deploy path", http.StatusBadRequest)
		return
	}

	account := accountFromContext(r.Context())
	sess := rt.Sessions.Codec.Decode(cookieValue(r))

	filename := segments[len(segments)-1]
	if filename == "maven-metadata.xml" || isMetadataSidecar(filename) {
		rt.handleMetadataPattern(w, r, account, sess, segments, filename)
		return
	}

	if isArtifactFilename(filename) && len(segments) >= 4 {
		group := segments[:len(segments)-3]
		if !anyDotted(group) {
			artifact := segments[len(segments)-3]
			version := segments[len(segments)-2]
			rt.finishVersionedUpload(w, r, account, sess, strings.Join(group, "/"), artifact, version, filename)
			return
		}
	}

	http.Error(w, "unrecognized deploy path", http.StatusBadRequest)
}

// handleMetadataPattern implements the first row of spec §4.7's
// routing table: distinguishing a true maven-metadata.xml PUT from a
// snapshot version directory that merely looks like one ("artifact"
// matches a snapshot version string), and sidecar sums from the real
// file.
func (rt *Router) handleMetadataPattern(
	w http.ResponseWriter, r *http.Request,
	account auth.Account, sess session.Session,
	segments []string, filename string,
) {
	groupAndArtifact := segments[:len(segments)-1]
	if len(groupAndArtifact) < 2 {
		http.Error(w, "unrecognized deploy path", http.StatusBadRequest)
		return
	}
	artifact := groupAndArtifact[len(groupAndArtifact)-1]
	group := groupAndArtifact[:len(groupAndArtifact)-1]

	if snapshotArtifactRe.MatchString(artifact) {
		// Not actually a metadata path: `artifact` is a snapshot
		// version directory, so this is a versioned upload one level
		// deeper than it first appears.
		if len(group) < 1 {
			http.Error(w, "unrecognized deploy path", http.StatusBadRequest)
			return
		}
		realArtifact := group[len(group)-1]
		realGroup := group[:len(group)-1]
		rt.finishVersionedUpload(w, r, account, sess, strings.Join(realGroup, "/"), realArtifact, artifact, filename)
		return
	}

	slashGroup := strings.Join(group, "/")

	if isMetadataSidecar(filename) {
		// Accept with 201 and drop the body (spec §4.7 row 1, sidecar
		// branch); the sidecar for maven-metadata.xml is always
		// server-regenerated at finalization (spec §4.6 step 4).
		if _, err := readBody(r); err != nil {
			writeDeployError(w, deployerrors.Forbidden("read request body: %v", err))
			return
		}
		writeCreated(w, sess, rt.Sessions.Codec)
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeDeployError(w, deployerrors.Forbidden("read request body: %v", err))
		return
	}

	updated, err := rt.Upload.HandleNonVersionedMetadataUpload(r.Context(), account, sess, slashGroup, artifact, body)
	if err != nil {
		rt.reportIfNotValidation(r, account, slashGroup, artifact, "", err)
		writeDeployError(w, err)
		return
	}
	writeCreated(w, updated, rt.Sessions.Codec)
}

// finishVersionedUpload implements spec §4.7 row 2: a PUT under
// /<group>/<artifact>/<version>/<filename>.
func (rt *Router) finishVersionedUpload(
	w http.ResponseWriter, r *http.Request,
	account auth.Account, sess session.Session,
	slashGroup, artifact, version, filename string,
) {
	body, err := readBody(r)
	if err != nil {
		writeDeployError(w, deployerrors.Forbidden("read request body: %v", err))
		return
	}

	updated, err := rt.Upload.HandleVersionedUpload(r.Context(), account, sess, slashGroup, artifact, version, filename, body)
	if err != nil {
		rt.reportIfNotValidation(r, account, slashGroup, artifact, version, err)
		writeDeployError(w, err)
		return
	}
	writeCreated(w, updated, rt.Sessions.Codec)
}

// reportIfNotValidation implements spec §7's policy: validation
// errors are audit-logged once at the point of rejection and never
// reach the error reporter; every other error also reaches it.
func (rt *Router) reportIfNotValidation(r *http.Request, account auth.Account, group, artifact, version string, err error) {
	de := deployerrors.Reclassify(err)
	if de.Validation {
		rt.Audit.DeployRejected(account.Username, group, artifact, version, string(de.Kind), de.Message)
		return
	}
	rt.Reporter.Report(traceIDFromContext(r.Context()), r.Method, r.URL.Path, de)
}

func isMetadataSidecar(filename string) bool {
	return filename == "maven-metadata.xml.md5" || filename == "maven-metadata.xml.sha1"
}

func isArtifactFilename(filename string) bool {
	for _, suffix := range []string{".pom", ".jar", ".sha1", ".md5", ".asc"} {
		if strings.HasSuffix(filename, suffix) {
			return true
		}
	}
	return false
}

func anyDotted(segments []string) bool {
	for _, s := range segments {
		if strings.Contains(s, ".") {
			return true
		}
	}
	return false
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func writeDeployError(w http.ResponseWriter, err error) {
	de := deployerrors.Reclassify(err)
	status := de.Status
	if status == 0 {
		status = http.StatusForbidden
	}
	w.Header().Set("status-message", fmt.Sprintf("%s - %s", http.StatusText(status), de.Message))
	w.WriteHeader(status)
	w.Write([]byte(de.Message))
}

func writeCreated(w http.ResponseWriter, sess session.Session, codec *session.Codec) {
	token, err := codec.Encode(sess)
	if err == nil {
		http.SetCookie(w, &http.Cookie{
			Name:     session.CookieName(),
			Value:    token,
			Path:     "/",
			HttpOnly: true,
		})
	}
	w.WriteHeader(http.StatusCreated)
}

func cookieValue(r *http.Request) string {
	c, err := r.Cookie(session.CookieName())
	if err != nil {
		return ""
	}
	return c.Value
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}
