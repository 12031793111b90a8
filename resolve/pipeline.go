// Package resolve turns a source URL into a single Locator: classify, short-circuit, fetch, re-classify on
// redirect, then run the extraction cascade over the page.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alanbriolat/video-fetcher"
	"github.com/alanbriolat/video-fetcher/classify"
	"github.com/alanbriolat/video-fetcher/provider/youtube"
	"github.com/alanbriolat/video-fetcher/util"
)

const (
	// StrategyClassify names locators that needed no page fetch.
	StrategyClassify = "classify"
	// StrategyRedirect names locators reached by the page redirecting to a video service.
	StrategyRedirect = "redirect"
)

var ErrEmptySource = errors.New("empty source URL")

// PageFetcher is the part of fetch.Fetcher the pipeline needs.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*video_fetcher.Page, error)
}

type Pipeline struct {
	classifier *classify.Classifier
	fetcher    PageFetcher
	registry   *StrategyRegistry
}

// NewPipeline builds a Pipeline with the default strategy cascade.
func NewPipeline(cfg video_fetcher.Config, fetcher PageFetcher) (*Pipeline, error) {
	classifier := classify.New(cfg)
	registry, err := NewRegistry(cfg, classifier)
	if err != nil {
		return nil, err
	}
	return NewPipelineWith(classifier, fetcher, registry), nil
}

func NewPipelineWith(classifier *classify.Classifier, fetcher PageFetcher, registry *StrategyRegistry) *Pipeline {
	return &Pipeline{classifier: classifier, fetcher: fetcher, registry: registry}
}

// Strategies lists the extraction cascade in the order it is tried.
func (p *Pipeline) Strategies() []string {
	return p.registry.List()
}

// Resolve finds the Locator for source. Errors are *video_fetcher.StageError, wrapping ErrNoLocatorFound if the page
// held nothing recognisable.
func (p *Pipeline) Resolve(ctx context.Context, source string) (video_fetcher.Locator, error) {
	log := video_fetcher.Logger(ctx).Sugar()
	source = strings.TrimSpace(source)
	if source == "" {
		return video_fetcher.Locator{}, video_fetcher.AtStage(video_fetcher.StageClassification, ErrEmptySource)
	}

	c := p.classifier.Classify(source)
	log.Debugw("classified source", "url", c.URL, "kind", c.Kind)
	if c.Kind != classify.Opaque {
		return p.finish(c.URL, StrategyClassify), nil
	}

	log.Infow("fetching page", "url", c.URL)
	page, err := p.fetcher.Fetch(ctx, c.URL)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", video_fetcher.ErrCancelled, err)
		}
		return video_fetcher.Locator{}, video_fetcher.AtStage(video_fetcher.StageFetch, err)
	}
	if page.Redirected {
		log.Debugw("page redirected", "url", c.URL, "final_url", page.FinalURL)
		if p.classifier.Classify(page.FinalURL).Kind == classify.AlreadyVideoService {
			return p.finish(page.FinalURL, StrategyRedirect), nil
		}
	}

	candidate, err := p.registry.Match(NewInput(c.URL, page))
	if err != nil {
		log.Debugw("no strategy matched", "url", c.URL, "misses", err)
		return video_fetcher.Locator{}, video_fetcher.AtStage(video_fetcher.StageExtraction, video_fetcher.ErrNoLocatorFound)
	}
	log.Debugw("strategy matched", "strategy", candidate.StrategyName, "candidate", candidate.Value)
	return p.finish(candidate.Value, candidate.StrategyName), nil
}

// finish decides the Locator's kind, and is the only place YouTube URLs are normalised.
func (p *Pipeline) finish(candidate string, strategy string) video_fetcher.Locator {
	c := p.classifier.Classify(candidate)
	loc := video_fetcher.Locator{URL: c.URL, Kind: c.Kind.LocatorKind(), Strategy: strategy}
	if loc.Kind == video_fetcher.KindVideoService {
		if u, err := util.ParseLoose(loc.URL); err == nil && youtube.MatchHost(u.Hostname()) {
			if normalized, err := youtube.Normalize(u); err == nil {
				loc.URL = normalized
			}
		}
	}
	return loc
}
