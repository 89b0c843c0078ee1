package replicate

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	r8 "github.com/replicate/replicate-go"
	"github.com/rs/zerolog/log"
	"github.com/tendertales/storyteller/internal/models"
)

// DefaultBaseURL is the Replicate HTTP API root.
const DefaultBaseURL = "https://api.replicate.com/v1"

// Modes
const (
	ModePoll = "poll"
	ModeRun  = "run"
)

// Options configures a Client
type Options struct {
	BaseURL      string // e.g. https://api.replicate.com/v1
	Token        string
	Mode         string // poll, run
	Version      string // model version for poll mode
	RunVersion   string // model version for run mode
	PollInterval time.Duration
	MaxPolls     int
	RunWait      time.Duration
	HTTPClient   *http.Client
}

// Client generates illustrations with Replicate predictions.
type Client struct {
	api          *r8.Client
	mode         string
	version      string
	runVersion   string
	pollInterval time.Duration
	maxPolls     int
	runWait      time.Duration
}

// NewClient creates a new Replicate client. A token is required.
func NewClient(opts Options) (*Client, error) {
	if opts.Token == "" {
		return nil, fmt.Errorf("replicate token is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Mode == "" {
		opts.Mode = ModePoll
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.MaxPolls <= 0 {
		opts.MaxPolls = 120
	}
	if opts.RunWait <= 0 {
		opts.RunWait = 60 * time.Second
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	if opts.Mode == ModeRun {
		httpClient = withPreferWait(httpClient, opts.RunWait)
	}

	api, err := r8.NewClient(
		r8.WithToken(opts.Token),
		r8.WithBaseURL(strings.TrimSuffix(opts.BaseURL, "/")),
		r8.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create replicate client: %w", err)
	}

	log.Info().
		Str("base_url", opts.BaseURL).
		Str("mode", opts.Mode).
		Dur("poll_interval", opts.PollInterval).
		Int("max_polls", opts.MaxPolls).
		Msg("Replicate client initialized")

	return &Client{
		api:          api,
		mode:         opts.Mode,
		version:      opts.Version,
		runVersion:   opts.RunVersion,
		pollInterval: opts.PollInterval,
		maxPolls:     opts.MaxPolls,
		runWait:      opts.RunWait,
	}, nil
}

// withPreferWait returns a copy of c whose prediction submissions ask Replicate to hold the
// response until the prediction finishes or wait elapses (Prefer: wait=N).
func withPreferWait(c *http.Client, wait time.Duration) *http.Client {
	next := c.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	wrapped := *c
	wrapped.Transport = &preferWaitRoundTripper{
		value: "wait=" + strconv.Itoa(int(wait.Seconds())),
		next:  next,
	}
	if wrapped.Timeout > 0 && wrapped.Timeout <= wait {
		wrapped.Timeout = wait + 30*time.Second
	}
	return &wrapped
}

// preferWaitRoundTripper sets the Prefer header on POST requests.
type preferWaitRoundTripper struct {
	value string
	next  http.RoundTripper
}

func (p *preferWaitRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodPost || req.Header.Get("Prefer") != "" {
		return p.next.RoundTrip(req)
	}
	req2 := req.Clone(req.Context())
	req2.Header.Set("Prefer", p.value)
	return p.next.RoundTrip(req2)
}

// firstOutput returns the first output URL. Output may be a list of URLs or a single URL.
func firstOutput(p *r8.Prediction) (string, error) {
	switch out := p.Output.(type) {
	case nil:
		return "", fmt.Errorf("prediction %s has no output", p.ID)
	case string:
		if out == "" {
			return "", fmt.Errorf("prediction %s has empty output", p.ID)
		}
		return out, nil
	case []any:
		if len(out) == 0 {
			return "", fmt.Errorf("prediction %s has empty output", p.ID)
		}
		if url, ok := out[0].(string); ok && url != "" {
			return url, nil
		}
		return "", fmt.Errorf("prediction %s has unsupported output item %v", p.ID, out[0])
	case []string:
		if len(out) == 0 || out[0] == "" {
			return "", fmt.Errorf("prediction %s has empty output", p.ID)
		}
		return out[0], nil
	default:
		return "", fmt.Errorf("prediction %s has unsupported output %v", p.ID, out)
	}
}

// errorText returns the prediction's error field as text.
func errorText(p *r8.Prediction) string {
	switch e := p.Error.(type) {
	case nil:
		return "no error detail"
	case string:
		if e == "" {
			return "no error detail"
		}
		return e
	default:
		return fmt.Sprint(e)
	}
}

func imageErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", models.ErrImageGeneration, fmt.Sprintf(format, args...))
}
