package replicate

import (
	"context"
	"time"

	r8 "github.com/replicate/replicate-go"
	"github.com/rs/zerolog/log"
	"github.com/tendertales/storyteller/internal/metrics"
	"github.com/tendertales/storyteller/internal/models"
)

// Prediction statuses
const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// pollInput is the fixed input for the cartoon cover model (poll mode).
func pollInput(prompt string) r8.PredictionInput {
	return r8.PredictionInput{
		"prompt":  prompt,
		"width":   1024,
		"height":  1024,
		"style":   "cute",
		"quality": "standard",
	}
}

// runInput is the fixed SDXL input for run mode.
func runInput(prompt string) r8.PredictionInput {
	return r8.PredictionInput{
		"prompt":              prompt,
		"width":               1024,
		"height":              1024,
		"refine":              "expert_ensemble_refiner",
		"high_noise_frac":     0.8,
		"num_inference_steps": 25,
		"apply_watermark":     false,
	}
}

// Generate produces an illustration for prompt using the configured mode.
// All failures are ErrImageGeneration.
func (c *Client) Generate(ctx context.Context, prompt string) (*models.GeneratedImage, error) {
	start := time.Now()
	var (
		url string
		err error
	)
	if c.mode == ModeRun {
		url, err = c.run(ctx, prompt)
	} else {
		url, err = c.submitAndPoll(ctx, prompt)
	}
	metrics.ObserveUpstream(metrics.UpstreamIllustration, start, err)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("mode", c.mode).
		Dur("duration", time.Since(start)).
		Msg("Illustration generated")

	return &models.GeneratedImage{URL: url}, nil
}

// submitAndPoll submits a prediction and polls it at a fixed interval until it succeeds
// or fails, at most maxPolls status requests. ctx cancellation aborts the wait.
func (c *Client) submitAndPoll(ctx context.Context, prompt string) (string, error) {
	p, err := c.api.CreatePrediction(ctx, c.version, pollInput(prompt), nil, false)
	if err != nil {
		return "", imageErr("submit prediction: %v", err)
	}
	if done, url, err := terminal(p); done {
		return url, err
	}
	if p.ID == "" {
		return "", imageErr("prediction has no id")
	}

	log.Debug().Str("prediction_id", p.ID).Str("status", string(p.Status)).Msg("Prediction submitted")

	id := p.ID
	for polls := 1; polls <= c.maxPolls; polls++ {
		p, err = c.api.GetPrediction(ctx, id)
		if err != nil {
			metrics.ObservePolls(polls)
			return "", imageErr("poll prediction %s: %v", id, err)
		}
		if done, url, err := terminal(p); done {
			metrics.ObservePolls(polls)
			log.Debug().Str("prediction_id", id).Int("polls", polls).Str("status", string(p.Status)).Msg("Prediction finished")
			return url, err
		}
		if polls == c.maxPolls {
			break
		}

		timer := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			metrics.ObservePolls(polls)
			return "", imageErr("prediction %s: %v", id, ctx.Err())
		case <-timer.C:
		}
	}

	metrics.ObservePolls(c.maxPolls)
	return "", imageErr("prediction %s did not finish after %d polls (last status %q)", id, c.maxPolls, string(p.Status))
}

// run submits a prediction that blocks server-side until it completes (Prefer: wait,
// set by the client's transport in run mode).
func (c *Client) run(ctx context.Context, prompt string) (string, error) {
	p, err := c.api.CreatePrediction(ctx, c.runVersion, runInput(prompt), nil, false)
	if err != nil {
		return "", imageErr("run prediction: %v", err)
	}
	if done, url, err := terminal(p); done {
		return url, err
	}
	return "", imageErr("prediction %s still %q after waiting %s", p.ID, string(p.Status), c.runWait)
}

// terminal reports whether p has finished and, if so, its output URL or error.
func terminal(p *r8.Prediction) (bool, string, error) {
	switch string(p.Status) {
	case StatusSucceeded:
		url, err := firstOutput(p)
		if err != nil {
			return true, "", imageErr("%v", err)
		}
		return true, url, nil
	case StatusFailed, StatusCanceled:
		return true, "", imageErr("prediction %s %s: %s", p.ID, string(p.Status), errorText(p))
	default:
		return false, "", nil
	}
}
