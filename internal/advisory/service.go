// Package advisory wraps the two external collaborators of the idea
// engine: the continuation detector and the content merger. Both are
// optional; the Service degrades to deterministic behavior when a client
// is missing or unreachable, so a save never fails because advice did.
package advisory

import (
	"context"
	"errors"
	"log"
)

type Service struct {
	detector   *Detector
	merger     *Merger
	cache      *Cache
	separator  string
	donorFirst bool
}

// NewService builds the facade. Either client may be nil.
func NewService(detector *Detector, merger *Merger, cache *Cache, separator string, donorFirst bool) *Service {
	if separator == "" {
		separator = "\n\n---\n\n"
	}
	return &Service{
		detector:   detector,
		merger:     merger,
		cache:      cache,
		separator:  separator,
		donorFirst: donorFirst,
	}
}

// DetectContinuation asks the detector whether the content continues an
// existing idea. Verdicts are cached per user+content. Returns nil when
// no detector is configured, the detector is unreachable, or it found no
// related idea.
func (s *Service) DetectContinuation(ctx context.Context, req DetectRequest) *Continuation {
	if cached := s.cache.Get(ctx, req.UserID, req.Content); cached != nil {
		return cached
	}
	if s.detector == nil {
		return nil
	}
	verdict, err := s.detector.Detect(ctx, req)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			log.Printf("advisory: continuation detector unavailable: %v", err)
		} else {
			log.Printf("advisory: continuation detect failed: %v", err)
		}
		return nil
	}
	if verdict == nil || verdict.RelatedIdeaID == "" {
		return nil
	}
	s.cache.Put(ctx, req.UserID, req.Content, *verdict)
	return verdict
}

// MergeContent combines donor content into target content. When the
// merger is missing or unreachable the result is a plain concatenation
// with Fallback set and no confidence score.
func (s *Service) MergeContent(ctx context.Context, req MergeRequest) MergeResult {
	if s.merger != nil {
		result, err := s.merger.Merge(ctx, req)
		if err == nil {
			if result.Title == "" {
				result.Title = req.TargetTitle
			}
			return result
		}
		log.Printf("advisory: content merger unavailable, using concatenation: %v", err)
	}
	return s.naiveMerge(req)
}

func (s *Service) naiveMerge(req MergeRequest) MergeResult {
	first, second := req.TargetContent, req.DonorContent
	if s.donorFirst {
		first, second = second, first
	}
	return MergeResult{
		Title:    req.TargetTitle,
		Content:  first + s.separator + second,
		Summary:  "Merged by concatenation",
		Fallback: true,
	}
}
