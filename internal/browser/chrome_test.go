package browser

import (
	"strings"
	"testing"
)

func TestFindScript_EmbedsLowercasedPatterns(t *testing.T) {
	js := findScript([]string{"Unsubscribe", `say "yes"`})
	if !strings.Contains(js, `["unsubscribe","say \"yes\""]`) {
		t.Fatalf("patterns not embedded as JSON: %s", js)
	}
	if !strings.Contains(js, refAttr) {
		t.Fatalf("script does not tag the match")
	}
}

func TestCheckScript_OnlyTicksMatchingBoxes(t *testing.T) {
	js := checkScript([]string{"Unsubscribe", "Opt Out"})
	if !strings.Contains(js, `["unsubscribe","opt out"]`) {
		t.Fatalf("patterns not embedded as JSON: %s", js)
	}
	if !strings.Contains(js, "input[type=checkbox]") || !strings.Contains(js, "el.checked") {
		t.Fatalf("script does not skip ticked boxes: %s", js)
	}
}

func TestRefSelector(t *testing.T) {
	if got := refSelector("r1-0"); got != `[data-inboxsweep-ref="r1-0"]` {
		t.Fatalf("refSelector = %s", got)
	}
}
