package oauth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/entralite/entralite/pkg/logger"
)

// Surface is an embedded browser view supplied by the host application. The
// flow drives it by URL and listens to its navigation lifecycle; the surface
// implementation owns all rendering.
//
// Event registration must complete before LoadURL is called. Callbacks may
// arrive from any goroutine.
type Surface interface {
	// LoadURL navigates the surface to the given URL.
	LoadURL(url string) error

	// Close tears the surface down. Closing must not fire the closed event
	// registered through OnClosed.
	Close()

	// OnNavigate registers a callback observing every navigation start,
	// including the redirect back to the application.
	OnNavigate(func(url string))

	// OnRedirect registers a callback observing server-side redirects.
	OnRedirect(func(url string))

	// OnLoadFail registers a callback observing failed page loads.
	OnLoadFail(func(url string, description string))

	// OnClosed registers a callback observing the user closing the surface.
	OnClosed(func())
}

// EmbeddedFlow runs one authentication attempt inside an embedded browser
// surface. It navigates the surface to the authorization endpoint and
// watches its events for the redirect back to the application.
type EmbeddedFlow struct {
	flow    *Flow
	surface Surface

	resolveOnce sync.Once
	codeChan    chan string
	errorChan   chan error
}

// NewEmbeddedFlow prepares one embedded-surface attempt. The config's
// RedirectURL must be the URI registered for the embedded channel.
func NewEmbeddedFlow(config *Config, surface Surface) (*EmbeddedFlow, error) {
	if surface == nil {
		return nil, fmt.Errorf("surface cannot be nil")
	}
	flow, err := NewFlow(config)
	if err != nil {
		return nil, err
	}
	return &EmbeddedFlow{
		flow:      flow,
		surface:   surface,
		codeChan:  make(chan string, 1),
		errorChan: make(chan error, 1),
	}, nil
}

// Flow returns the flow backing this attempt, for the subsequent token
// exchange.
func (e *EmbeddedFlow) Flow() *Flow {
	return e.flow
}

// Run wires the surface events, navigates to the authorization endpoint and
// blocks until the attempt resolves. The surface is closed on every path.
func (e *EmbeddedFlow) Run(ctx context.Context) (string, error) {
	defer e.surface.Close()

	e.surface.OnNavigate(e.observeURL)
	e.surface.OnRedirect(e.observeURL)
	e.surface.OnLoadFail(func(failedURL, description string) {
		// The redirect URI points at the application, not a web server, so
		// its load "failing" is the expected end of the flow. observeURL has
		// already captured the code by then.
		if e.matchesRedirect(failedURL) {
			return
		}
		e.resolve("", fmt.Errorf("%w: %s", ErrBrowserLaunch, description))
	})
	e.surface.OnClosed(func() {
		e.resolve("", ErrUserCancelled)
	})

	authURL := e.flow.AuthCodeURL()
	logger.Debugw("Loading authorization page in embedded surface",
		"redirect_uri", e.flow.RedirectURL())
	if err := e.surface.LoadURL(authURL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBrowserLaunch, err)
	}

	select {
	case code := <-e.codeChan:
		return code, nil
	case err := <-e.errorChan:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// observeURL inspects a navigation target and resolves the attempt when it
// is the redirect back to the application.
func (e *EmbeddedFlow) observeURL(rawURL string) {
	if !e.matchesRedirect(rawURL) {
		return
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		e.resolve("", fmt.Errorf("%w: unparseable redirect URL", ErrProtocolViolation))
		return
	}

	code, err := e.flow.parseCallback(parsed.Query())
	if err != nil {
		e.resolve("", err)
		return
	}
	e.resolve(code, nil)
}

func (e *EmbeddedFlow) matchesRedirect(rawURL string) bool {
	return strings.HasPrefix(rawURL, e.flow.RedirectURL())
}

// resolve delivers the attempt's outcome exactly once.
func (e *EmbeddedFlow) resolve(code string, err error) {
	e.resolveOnce.Do(func() {
		if err != nil {
			e.errorChan <- err
			return
		}
		e.codeChan <- code
	})
}
