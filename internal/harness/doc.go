// Package harness runs scripted scenarios against a store and records what
// subscribers see.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	store:                       # or config: path/to/store.cue
//	  mediateDataConflicts: true
//	  data:
//	    - { id: "1", v: 1 }
//	views:
//	  - name: active
//	    filter: "item.v > 1"
//	    sort: { path: /v }
//	    track: true
//	steps:
//	  - add: [{ id: "2", v: 2 }]
//	    expect: { successful: ["2"], version: 1 }
//	  - patch:
//	      - id: "2"
//	        ops: [{ op: replace, path: /v, value: 0 }]
//	  - delete: ["1"]
//	final:
//	  root: ["2"]
//	  views: { active: [] }
//
// Unknown fields are rejected so typos surface as errors.
//
// # Trace
//
// A run produces a trace of three kinds of entries, each tagged with the
// step that caused it (-1 for the priming entries):
//
//   - result: the settled action of a step (op, round, ids, error code,
//     root version)
//   - event: a root mutation round as Observe delivers it
//   - view: a tracked view update as ObserveTracked delivers it
//
// Within a step, the result comes first, then root events, then view
// updates in view declaration order. Traces render as canonical JSON and
// are compared against golden files with goldie.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/tracked.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
