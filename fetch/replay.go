package fetch

import "context"

// ReplayFetcher reads stored per-run artifacts instead of hitting the
// network, for benchmark-scale replays and deterministic tests. Unknown
// URLs return status 404 (§4.4).
type ReplayFetcher struct {
	Artifacts map[string]Result
}

// NewReplayFetcher builds a ReplayFetcher over a fixed url->Result table.
func NewReplayFetcher(artifacts map[string]Result) *ReplayFetcher {
	return &ReplayFetcher{Artifacts: artifacts}
}

func (r *ReplayFetcher) Fetch(ctx context.Context, url, host string) (Result, error) {
	if res, ok := r.Artifacts[url]; ok {
		return res, nil
	}
	return Result{Status: 404}, nil
}

// DryRunFetcher never performs I/O; it returns an empty success result,
// useful for CLI dry-run invocations that only need to exercise the
// pipeline's control flow.
type DryRunFetcher struct{}

func (DryRunFetcher) Fetch(ctx context.Context, url, host string) (Result, error) {
	return Result{Status: 200, Title: "(dry-run)", Telemetry: Telemetry{Mode: ModeDryRun}}, nil
}
