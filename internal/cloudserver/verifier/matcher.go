// Package verifier implements the cloud side of the speculative-decoding
// verification protocol (spec.md §4.8 "Verification protocol"): a
// character-wise longest-common-prefix match between the edge's draft and
// the cloud's own greedy continuation of the same prompt.
package verifier

import (
	"context"
	"strings"

	"inferouter/internal/wire"
)

// Generator is the cloud-owned large-model collaborator: it produces a
// greedy continuation of a prompt. The spec explicitly leaves the large
// model's generation math out of scope; this interface is the contract
// boundary.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Match runs the LCP comparison and builds the full VerifyResponse. draft is
// the edge's best-effort continuation; cloudContinuation is the cloud's own
// greedy (temperature=0) continuation of the same prompt, generated to
// roughly len(draft)+marginTokens in length by the caller.
func Match(prompt, draft, cloudContinuation string) wire.VerifyResponse {
	draftRunes := []rune(draft)
	cloudRunes := []rune(cloudContinuation)

	if len(draftRunes) == 0 {
		return wire.VerifyResponse{
			VerifiedTokens:     nil,
			AcceptedCount:      0,
			TotalCount:         0,
			AcceptanceRate:     1.0,
			CorrectedPositions: nil,
			FinalText:          prompt,
		}
	}

	match := 0
	for match < len(draftRunes) && match < len(cloudRunes) && draftRunes[match] == cloudRunes[match] {
		match++
	}

	acceptedPrefix := string(draftRunes[:match])
	var correction string
	if match < len(cloudRunes) {
		correction = string(cloudRunes[match:])
	}

	finalText := prompt + acceptedPrefix + correction
	acceptanceRate := float64(match) / float64(len(draftRunes))

	var corrected []int
	fullyAccepted := match == len(draftRunes)
	if !fullyAccepted {
		corrected = []int{-1}
	}

	return wire.VerifyResponse{
		VerifiedTokens:     strings.Fields(acceptedPrefix),
		AcceptedCount:      match,
		TotalCount:         len(draftRunes),
		AcceptanceRate:     acceptanceRate,
		CorrectedPositions: corrected,
		FinalText:          finalText,
	}
}

// MarginTokens is the default margin added to the draft length when asking
// the Generator for a continuation, per spec.md §4.8 ("length ~ |draft|+20").
const MarginTokens = 20
