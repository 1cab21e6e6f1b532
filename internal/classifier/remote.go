package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/tphakala/fishnet-go/internal/errors"
	"github.com/tphakala/fishnet-go/internal/httpclient"
	"github.com/tphakala/fishnet-go/internal/imageio"
	"github.com/tphakala/fishnet-go/internal/logger"
)

// RemoteClassifier delegates classification to an inference server that
// accepts a multipart "image" upload and answers {"label", "confidence"}.
type RemoteClassifier struct {
	url    string
	client *httpclient.Client
	labels []string
	log    logger.Logger
}

type remoteResponse struct {
	Label      string   `json:"label"`
	Confidence *float64 `json:"confidence"`
}

// NewRemote returns a classifier backed by the server at url.
func NewRemote(url string, client *httpclient.Client, labels []string, log logger.Logger) *RemoteClassifier {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	if client == nil {
		client = httpclient.New(nil)
	}
	return &RemoteClassifier{
		url:    strings.TrimRight(url, "/"),
		client: client,
		labels: labels,
		log:    log.Module("classifier"),
	}
}

// Name implements Classifier.
func (c *RemoteClassifier) Name() string { return "classifier-remote" }

// Labels implements Classifier.
func (c *RemoteClassifier) Labels() []string { return append([]string(nil), c.labels...) }

// Close implements Classifier.
func (c *RemoteClassifier) Close() error {
	c.client.Close()
	return nil
}

// CheckHealth calls <url>/health.
func (c *RemoteClassifier) CheckHealth(ctx context.Context) error {
	resp, err := c.client.Get(ctx, c.url+"/health")
	if err != nil {
		return c.networkError(err, "health")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return errors.Newf("inference server unhealthy: %d", resp.StatusCode).
			Component("classifier").
			Category(errors.CategoryNetwork).
			Build()
	}
	return nil
}

// WarmUp checks that the server is reachable.
func (c *RemoteClassifier) WarmUp(ctx context.Context) error { return c.CheckHealth(ctx) }

// Classify implements Classifier.
func (c *RemoteClassifier) Classify(ctx context.Context, img image.Image) (Classification, error) {
	start := time.Now()

	var buf bytes.Buffer
	if err := imageio.Encode(&buf, "image.jpg", img, imageio.DefaultJPEGQuality); err != nil {
		return Classification{}, err
	}

	resp, err := c.client.PostFile(ctx, c.url+"/classify", "image", "image.jpg", buf.Bytes())
	if err != nil {
		return Classification{}, c.networkError(err, "classify")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Classification{}, errors.Newf("inference server returned status %d", resp.StatusCode).
			Component("classifier").
			Category(errors.CategoryInference).
			Build()
	}

	var result remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Classification{}, errors.New(fmt.Errorf("decode response: %w", err)).
			Component("classifier").
			Category(errors.CategoryInference).
			Build()
	}

	index := slices.Index(c.labels, result.Label)
	if index < 0 || result.Confidence == nil {
		return Classification{}, errors.Newf("inference server returned unknown label %q", result.Label).
			Component("classifier").
			Category(errors.CategoryInference).
			Build()
	}

	out := Classification{
		Label:      result.Label,
		Index:      index,
		Confidence: max(0, min(1, *result.Confidence)),
	}
	c.log.Debug("remote classification complete",
		logger.String("label", out.Label),
		logger.Float64("confidence", out.Confidence),
		logger.Duration("elapsed", time.Since(start)))
	return out, nil
}

func (c *RemoteClassifier) networkError(err error, op string) error {
	category := errors.CategoryNetwork
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		category = errors.CategoryTimeout
	case errors.Is(err, context.Canceled):
		category = errors.CategoryCancellation
	}
	return errors.New(err).
		Component("classifier").
		Category(category).
		Context("operation", op).
		Build()
}
