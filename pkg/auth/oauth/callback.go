package oauth

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/browser"

	"github.com/entralite/entralite/pkg/logger"
	"github.com/entralite/entralite/pkg/networking"
)

// DefaultFlowTimeout bounds how long a system-browser attempt waits for the
// redirect to arrive at the local listener.
const DefaultFlowTimeout = 5 * time.Minute

// BrowserLauncher opens the authorization URL in the user's browser.
type BrowserLauncher interface {
	OpenURL(url string) error
}

// SystemBrowserLauncher launches the OS default browser.
type SystemBrowserLauncher struct{}

// OpenURL opens the URL with the platform's default handler.
func (SystemBrowserLauncher) OpenURL(url string) error {
	return browser.OpenURL(url)
}

// LocalServer runs one system-browser authentication attempt: it binds an
// ephemeral HTTP listener on localhost, sends the user's browser to the
// authorization endpoint, and captures the authorization code from the
// redirect. Each LocalServer serves exactly one attempt.
type LocalServer struct {
	flow     *Flow
	port     int
	launcher BrowserLauncher
	timeout  time.Duration

	resolveOnce sync.Once
	codeChan    chan string
	errorChan   chan error
}

// LocalServerOption configures a LocalServer.
type LocalServerOption func(*LocalServer)

// WithBrowserLauncher overrides how the authorization URL is opened.
func WithBrowserLauncher(launcher BrowserLauncher) LocalServerOption {
	return func(s *LocalServer) {
		s.launcher = launcher
	}
}

// WithFlowTimeout overrides the attempt deadline.
func WithFlowTimeout(timeout time.Duration) LocalServerOption {
	return func(s *LocalServer) {
		s.timeout = timeout
	}
}

// NewLocalServer probes the callback port range, fixes the redirect URI to
// the chosen port, and prepares the flow for one attempt.
func NewLocalServer(config *Config, opts ...LocalServerOption) (*LocalServer, error) {
	if config == nil {
		return nil, errors.New("OAuth config cannot be nil")
	}

	port, err := networking.FindAvailablePort(networking.CallbackPortStart, networking.CallbackPortEnd, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to find a callback port: %w", err)
	}

	cfg := *config
	cfg.RedirectURL = fmt.Sprintf("http://localhost:%d", port)

	flow, err := NewFlow(&cfg)
	if err != nil {
		return nil, err
	}

	server := &LocalServer{
		flow:      flow,
		port:      port,
		launcher:  SystemBrowserLauncher{},
		timeout:   DefaultFlowTimeout,
		codeChan:  make(chan string, 1),
		errorChan: make(chan error, 1),
	}
	for _, opt := range opts {
		opt(server)
	}
	return server, nil
}

// Port returns the callback port chosen for this attempt.
func (s *LocalServer) Port() int {
	return s.port
}

// Flow returns the flow backing this attempt, for the subsequent token
// exchange.
func (s *LocalServer) Flow() *Flow {
	return s.flow
}

// Run opens the browser and blocks until the attempt resolves: a captured
// authorization code, a terminal error, the flow deadline, or context
// cancellation. The listener is shut down on every path.
func (s *LocalServer) Run(ctx context.Context) (string, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleCallback)

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.port))
	if err != nil {
		return "", fmt.Errorf("failed to bind callback listener: %w", err)
	}

	httpServer := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.resolve("", fmt.Errorf("callback server error: %w", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("Failed to shut down callback server: %v", err)
		}
	}()

	authURL := s.flow.AuthCodeURL()
	logger.Infof("Opening browser for authentication (callback on port %d)", s.port)
	if err := s.launcher.OpenURL(authURL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBrowserLaunch, err)
	}

	select {
	case code := <-s.codeChan:
		return code, nil
	case err := <-s.errorChan:
		return "", err
	case <-time.After(s.timeout):
		return "", fmt.Errorf("%w after %s", ErrTimeout, s.timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// handleCallback processes the provider redirect. Stray requests such as
// favicon fetches get a 404 and do not resolve the attempt.
func (s *LocalServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" || len(r.URL.Query()) == 0 {
		http.NotFound(w, r)
		return
	}

	code, err := s.flow.parseCallback(r.URL.Query())
	if err != nil {
		writeErrorPage(w, err)
		s.resolve("", err)
		return
	}

	writeSuccessPage(w)
	s.resolve(code, nil)
}

// resolve delivers the attempt's outcome exactly once; later redirects are
// ignored.
func (s *LocalServer) resolve(code string, err error) {
	s.resolveOnce.Do(func() {
		if err != nil {
			s.errorChan <- err
			return
		}
		s.codeChan <- code
	})
}

func writeSuccessPage(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head><title>Authentication Successful</title></head>
<body>
<h1>Authentication Successful</h1>
<p>You can close this window and return to the application.</p>
<script>setTimeout(function() { window.close(); }, 3000);</script>
</body>
</html>`)
}

func writeErrorPage(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Authentication Failed</title></head>
<body>
<h1>Authentication Failed</h1>
<p>%s</p>
<p>You can close this window.</p>
</body>
</html>`, html.EscapeString(err.Error()))
}
