package service

import (
	"math/rand/v2"
	"net/url"
	"slices"

	"github.com/getmockd/mockfleet/internal/matching"
	"github.com/getmockd/mockfleet/pkg/definition"
	"github.com/getmockd/mockfleet/pkg/template"
)

// resolveScenario returns the responses that apply to x and the name of the
// scenario they came from ("" for the endpoint defaults or an unnamed
// scenario).
func (i *Instance) resolveScenario(ep *endpoint, x *exchange) (map[int]definition.ResponseDefinition, string) {
	scenarios := ep.def.Scenarios
	if len(scenarios) == 0 {
		return ep.def.Responses, ""
	}

	if active, ok := i.scenarios.Active(); ok {
		for _, sc := range scenarios {
			if sc.Name == active && conditionsHold(sc, x) {
				return sc.Responses, sc.Name
			}
		}
	}

	var rotation []definition.ScenarioDefinition
	for _, sc := range scenarios {
		if sc.Name != "" {
			continue
		}
		if !sc.HasConditions() {
			rotation = append(rotation, sc)
			continue
		}
		if conditionsHold(sc, x) {
			return sc.Responses, ""
		}
	}
	if len(rotation) == 0 {
		return ep.def.Responses, ""
	}

	var pick int
	if rotation[0].Strategy == definition.StrategyRandom {
		pick = rand.IntN(len(rotation)) //nolint:gosec // response rotation does not need crypto randomness
	} else {
		pick = int((ep.rotation.Add(1) - 1) % uint64(len(rotation)))
	}
	return rotation[pick].Responses, ""
}

func conditionsHold(sc definition.ScenarioDefinition, x *exchange) bool {
	c := sc.Conditions
	if c == nil {
		return true
	}
	if !matching.MatchQuery(c.Query, x.r.URL.Query()) {
		return false
	}
	if !matching.MatchHeadersExact(c.Headers, x.r.Header) {
		return false
	}
	if len(c.Body) > 0 && !matching.MatchBody(c.Body, x.body) {
		return false
	}
	return true
}

// selectResponse picks the lowest status whose condition holds, falling
// back to the lowest status without a condition.
func (i *Instance) selectResponse(responses map[int]definition.ResponseDefinition, data map[string]any) (int, definition.ResponseDefinition, bool) {
	statuses := make([]int, 0, len(responses))
	for status := range responses {
		statuses = append(statuses, status)
	}
	slices.Sort(statuses)

	fallback := 0
	for _, status := range statuses {
		resp := responses[status]
		if resp.Condition == "" {
			if fallback == 0 {
				fallback = status
			}
			continue
		}
		out, err := i.renderer.Render(template.WrapExpression(resp.Condition), data)
		if err != nil {
			i.log.Debug("condition failed to render", "status", status, "error", err)
			continue
		}
		if template.IsTruthy(out) {
			return status, resp, true
		}
	}
	if fallback == 0 {
		return 0, definition.ResponseDefinition{}, false
	}
	return fallback, responses[fallback], true
}

// renderContext builds the data a template sees.
func (i *Instance) renderContext(x *exchange, params map[string]string, st snapshot) map[string]any {
	var scenario any
	if name, ok := i.scenarios.Active(); ok {
		scenario = name
	}
	return map[string]any{
		"request": map[string]any{
			"method":  x.r.Method,
			"path":    x.r.URL.Path,
			"query":   firstValues(x.r.URL.Query()),
			"headers": lowerHeaders(x.r.Header),
			"body":    x.body,
		},
		"params":   params,
		"fixtures": st.fixtures,
		"bucket":   st.bucket,
		"runtime":  st.runtime,
		"service":  i.def.Name,
		"scenario": scenario,
	}
}

func firstValues(v url.Values) map[string]string {
	out := make(map[string]string, len(v))
	for k, values := range v {
		if len(values) > 0 {
			out[k] = values[0]
		}
	}
	return out
}
