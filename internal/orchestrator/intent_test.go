package orchestrator

import "testing"

func TestDetectIntent(t *testing.T) {
	router := NewIntentRouter()

	cases := []struct {
		name  string
		query string
		want  Intent
	}{
		{"top cash", "Which households have the highest cash balance?", IntentTopCash},
		{"crm notes", "Show me recent client notes and meeting notes", IntentCRMPOI},
		{"rmd", "Who has an RMD deadline in the next 90 days?", IntentRMD},
		{"beneficiary", "Which accounts have a missing beneficiary?", IntentMissingBen},
		{"allocation drift", "Any portfolio drift against the target allocation?", IntentRecon},
		{"performance", "What were the YTD returns?", IntentPerfSummary},
		{"custodial", "Which custodial accounts turned 18 this quarter?", IntentCustodial18},
		{"ira", "Who made no contributions toward the IRA contribution limit?", IntentIRAReminder},
		{"general fallback", "Tell me something interesting", IntentExecSummary},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := router.Detect(tc.query); got != tc.want {
				t.Fatalf("intent: want=%s got=%s", tc.want, got)
			}
		})
	}
}

func TestRouteCoversEveryIntent(t *testing.T) {
	router := NewIntentRouter()
	intents := []Intent{
		IntentTopCash, IntentCRMPOI, IntentCustodial18, IntentRecon,
		IntentExecSummary, IntentMissingBen, IntentRMD, IntentIRAReminder,
		IntentPerfSummary,
	}
	for _, intent := range intents {
		if agents := router.Route(intent); len(agents) == 0 {
			t.Fatalf("no routing for intent %s", intent)
		}
	}
	if agents := router.Route(Intent("unknown")); len(agents) != 1 || agents[0] != AgentNL2SQL {
		t.Fatalf("unknown intent routing: want=[nl2sql] got=%v", agents)
	}
}

func TestDetectIntentIsDeterministic(t *testing.T) {
	router := NewIntentRouter()
	first := router.Detect("summary of the household summary")
	for i := 0; i < 50; i++ {
		if got := router.Detect("summary of the household summary"); got != first {
			t.Fatalf("nondeterministic detection: first=%s got=%s", first, got)
		}
	}
}
