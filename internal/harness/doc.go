// Package harness runs scheduler scenarios as executable tests.
//
// A scenario builds a real engine from a config, queues work, steps the
// engine and checks the outcome tick by tick. The same trace can be pinned
// as a golden file, so any change to allocation, gating or dequeue order
// shows up as a diff.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	config_file: ../configs/small.toml   # or an inline config: block
//	submissions:
//	  - category: Cost
//	    count: 40
//	  - category: Growth
//	    count: 2
//	    lane: 3
//	    weight: 0.5
//	ticks:
//	  - mass: 1000
//	    expect:
//	      scheduled: { Cost: 4, Revenue: 0 }
//	      backlog: { Cost: 36 }
//	  - mass: 1000
//	    repeat: 5
//	    lanes:
//	      - { category: Cost, lane: 0, active: false }
//	  - mass: -1
//	    expect:
//	      error: INVALID_MASS
//	assertions:
//	  - type: scheduled_total
//	    category: Cost
//	    count: 12
//	  - type: final_backlog
//	    expect: { Revenue: 30 }
//	  - type: capacity_respected
//	  - type: fifo
//
// With neither config nor config_file the 4x8 reference topology is used.
//
// # Assertion Types
//
//   - scheduled_total: items dequeued over the run, optionally for one category
//   - final_backlog: backlog per listed category after the last tick
//   - capacity_respected: pulled weight never exceeds capacity in any tick
//   - fifo: every lane dequeues in submission order
//
// # Deterministic Testing
//
// Item IDs come from testutil.SequentialIDs ("<prefix>-0001", ...), the
// oscillator has no randomness and tick indices start at 1, so the same
// scenario always yields the same trace and fingerprints.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/backpressure.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
