package internal

import (
	"io"
	"net/http"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config     *Config
	version    string
	logOutput  io.Writer
	out        io.Writer
	httpClient *http.Client
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}

// WithLogOutput redirects structured logs (stdout by default).
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}

// WithOutput sets where command results are printed (stdout by default).
func WithOutput(w io.Writer) Option {
	return func(a *application) {
		a.out = w
	}
}

// WithHTTPClient overrides the client used for the remote API.
func WithHTTPClient(c *http.Client) Option {
	return func(a *application) {
		a.httpClient = c
	}
}
