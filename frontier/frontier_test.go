package frontier

import "testing"

func TestResolveDeepeningTier_StandardNeverExceedsTier2(t *testing.T) {
	summary := Summary{CriticalFieldsBelowPassTarget: []string{"sensor"}}
	if got := ResolveDeepeningTier(5, ModeStandard, summary, 5); got != Tier2 {
		t.Fatalf("ResolveDeepeningTier(standard) = %v, want tier2", got)
	}
}

func TestResolveDeepeningTier_FirstRoundIsTier1(t *testing.T) {
	if got := ResolveDeepeningTier(1, ModeStandard, Summary{}, 0); got != Tier1 {
		t.Fatalf("ResolveDeepeningTier(round 1) = %v, want tier1", got)
	}
}

func TestResolveDeepeningTier_UberEscalatesToTier3AfterTwoStalledRounds(t *testing.T) {
	summary := Summary{CriticalFieldsBelowPassTarget: []string{"dpi"}}
	if got := ResolveDeepeningTier(3, ModeUberAggressive, summary, 2); got != Tier3 {
		t.Fatalf("ResolveDeepeningTier(uber, stalled=2) = %v, want tier3", got)
	}
}

func TestResolveDeepeningTier_UberStaysTier2BeforeStallThreshold(t *testing.T) {
	summary := Summary{CriticalFieldsBelowPassTarget: []string{"dpi"}}
	if got := ResolveDeepeningTier(3, ModeUberAggressive, summary, 1); got != Tier2 {
		t.Fatalf("ResolveDeepeningTier(uber, stalled=1) = %v, want tier2", got)
	}
}

func TestUberStopDecision_StopsWhenRequiredAndCriticalSatisfied(t *testing.T) {
	summary := Summary{}
	if got := UberStopDecision(summary, 2, 0, 0); got != StopRequiredAndCriticalSatisfied {
		t.Fatalf("UberStopDecision() = %q, want required_and_critical_satisfied", got)
	}
}

func TestUberStopDecision_StopsOnDiminishingReturns(t *testing.T) {
	summary := Summary{MissingRequiredFields: []string{"weight"}}
	if got := UberStopDecision(summary, 4, 2, 2); got != StopDiminishingReturns {
		t.Fatalf("UberStopDecision() = %q, want diminishing_returns", got)
	}
}

func TestUberStopDecision_ContinuesOtherwise(t *testing.T) {
	summary := Summary{MissingRequiredFields: []string{"weight"}}
	if got := UberStopDecision(summary, 2, 1, 0); got != StopContinue {
		t.Fatalf("UberStopDecision() = %q, want continue", got)
	}
}

func TestNextNoProgressRounds_ResetsOnNewField(t *testing.T) {
	if got := NextNoProgressRounds(3, Summary{NewFieldsThisRound: 1}); got != 0 {
		t.Fatalf("NextNoProgressRounds(new field) = %d, want 0", got)
	}
}

func TestNextNoProgressRounds_IncrementsWithoutProgress(t *testing.T) {
	if got := NextNoProgressRounds(3, Summary{}); got != 4 {
		t.Fatalf("NextNoProgressRounds(no progress) = %d, want 4", got)
	}
}

func TestNextNoNewHighYieldRounds_ResetsOnHighYield(t *testing.T) {
	if got := NextNoNewHighYieldRounds(2, Summary{HighYieldThisRound: true}); got != 0 {
		t.Fatalf("NextNoNewHighYieldRounds(high yield) = %d, want 0", got)
	}
}

func TestNextNoNewHighYieldRounds_IncrementsOtherwise(t *testing.T) {
	if got := NextNoNewHighYieldRounds(2, Summary{}); got != 3 {
		t.Fatalf("NextNoNewHighYieldRounds(no yield) = %d, want 3", got)
	}
}
