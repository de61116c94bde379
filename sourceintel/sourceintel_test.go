package sourceintel

import "testing"

func TestAggregate_RollsUpAttemptsSuccessesWins(t *testing.T) {
	outcomes := []Outcome{
		{RootDomain: "brand-a.com", Tier: 1, Attempted: true, Succeeded: true, WonConsensus: true},
		{RootDomain: "brand-a.com", Tier: 1, Attempted: true, Succeeded: true, WonConsensus: false},
		{RootDomain: "brand-a.com", Tier: 1, Attempted: true, Succeeded: false},
	}
	stats := Aggregate(outcomes)
	s := stats["brand-a.com"]
	if s.Attempts != 3 || s.Successes != 2 || s.ConsensusWins != 1 {
		t.Fatalf("Aggregate() = %+v, want attempts=3 successes=2 wins=1", s)
	}
}

func TestStats_RatesWithNoAttempts(t *testing.T) {
	s := Stats{}
	if s.SuccessRate() != 0 || s.WinRate() != 0 {
		t.Fatalf("rates with no attempts = (%v, %v), want (0, 0)", s.SuccessRate(), s.WinRate())
	}
}

func TestStats_Rates(t *testing.T) {
	s := Stats{Attempts: 10, Successes: 9, ConsensusWins: 3}
	if got := s.SuccessRate(); got != 0.9 {
		t.Fatalf("SuccessRate() = %v, want 0.9", got)
	}
	if got := s.WinRate(); got != 0.3 {
		t.Fatalf("WinRate() = %v, want 0.3", got)
	}
}

func TestSuggest_SkipsDomainsBelowMinAttempts(t *testing.T) {
	stats := map[string]Stats{
		"new-domain.com": {RootDomain: "new-domain.com", Tier: 2, Attempts: 2, Successes: 2},
	}
	got := Suggest(stats, DefaultThresholds())
	if len(got) != 0 {
		t.Fatalf("Suggest() = %v, want none (below min attempts)", got)
	}
}

func TestSuggest_PromotesHighSuccessNonTier1Domain(t *testing.T) {
	stats := map[string]Stats{
		"retailer.com": {RootDomain: "retailer.com", Tier: 3, Attempts: 10, Successes: 9},
	}
	got := Suggest(stats, DefaultThresholds())
	if len(got) != 1 || got[0].Kind != SuggestPromote {
		t.Fatalf("Suggest() = %v, want one promote suggestion", got)
	}
}

func TestSuggest_NeverPromotesTier1(t *testing.T) {
	stats := map[string]Stats{
		"brand-a.com": {RootDomain: "brand-a.com", Tier: 1, Attempts: 10, Successes: 10},
	}
	got := Suggest(stats, DefaultThresholds())
	if len(got) != 0 {
		t.Fatalf("Suggest() = %v, want none (tier 1 already top)", got)
	}
}

func TestSuggest_DemotesLowSuccessDomain(t *testing.T) {
	stats := map[string]Stats{
		"scraper.example": {RootDomain: "scraper.example", Tier: 4, Attempts: 10, Successes: 1},
	}
	got := Suggest(stats, DefaultThresholds())
	if len(got) != 1 || got[0].Kind != SuggestDemote {
		t.Fatalf("Suggest() = %v, want one demote suggestion", got)
	}
}

func TestSuggest_SortedByDomainName(t *testing.T) {
	stats := map[string]Stats{
		"zzz.com": {RootDomain: "zzz.com", Tier: 3, Attempts: 10, Successes: 9},
		"aaa.com": {RootDomain: "aaa.com", Tier: 3, Attempts: 10, Successes: 9},
	}
	got := Suggest(stats, DefaultThresholds())
	if len(got) != 2 || got[0].RootDomain != "aaa.com" || got[1].RootDomain != "zzz.com" {
		t.Fatalf("Suggest() = %v, want sorted [aaa.com, zzz.com]", got)
	}
}
